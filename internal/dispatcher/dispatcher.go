// Package dispatcher fans a notification out to every registered device of a
// set of recipients, prunes registrations the delivery network reports as
// gone, and aggregates the per-attempt outcomes.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hearthkeep/go-push-service/pkg/push"
)

// KeySource loads the VAPID signing key pair from the configuration store.
// It is consulted once per dispatch invocation.
type KeySource interface {
	SigningKeys(ctx context.Context) (push.SigningKeyPair, error)
}

type Dispatcher struct {
	store     push.SubscriptionStore
	transport push.Transport
	keys      KeySource
	logger    *slog.Logger
}

func New(store push.SubscriptionStore, transport push.Transport, keys KeySource, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		transport: transport,
		keys:      keys,
		logger:    logger.With("component", "Dispatcher"),
	}
}

// Dispatch delivers the request to every subscription of every listed
// recipient. Deliveries run concurrently and are isolated from each other: one
// endpoint failing, hanging, or reporting gone never aborts or delays its
// siblings. The only outright failure is the signing key pair not loading;
// everything else is scoped to a single subscription and reflected in the
// aggregate counts.
func (d *Dispatcher) Dispatch(ctx context.Context, req push.DispatchRequest) (*push.DispatchResult, error) {
	keys, err := d.keys.SigningKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", push.ErrKeyFetchFailure, err)
	}

	subs, err := d.store.FindByRecipients(ctx, req.RecipientIDs)
	if err != nil {
		return nil, fmt.Errorf("subscription lookup failed: %w", err)
	}

	result := &push.DispatchResult{
		Total:   len(subs),
		Results: make([]push.AttemptResult, len(subs)),
	}
	if len(subs) == 0 {
		// No registered devices is a valid outcome, not an error.
		return result, nil
	}

	payload, err := buildPayload(req)
	if err != nil {
		return nil, fmt.Errorf("payload marshal failed: %w", err)
	}

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub push.Subscription) {
			defer wg.Done()
			result.Results[i] = d.attempt(ctx, sub, keys, payload)
		}(i, sub)
	}
	wg.Wait()

	for _, attempt := range result.Results {
		switch attempt.Outcome {
		case push.OutcomeDelivered:
			result.Successful++
		case push.OutcomeExpired:
			result.Expired++
		}
	}

	d.logger.Info("Dispatch complete",
		"total", result.Total,
		"successful", result.Successful,
		"expired", result.Expired,
	)
	return result, nil
}

// attempt performs one delivery and, when the network reports the endpoint
// gone, prunes the dead row. Pruning is idempotent and its failure is logged
// rather than propagated; the row will be reaped on the next dispatch.
func (d *Dispatcher) attempt(ctx context.Context, sub push.Subscription, keys push.SigningKeyPair, payload []byte) push.AttemptResult {
	outcome, statusCode, err := d.transport.Deliver(ctx, sub, keys, payload)
	if err != nil {
		d.logger.Error("Delivery attempt unusable", "endpoint", sub.Endpoint, "err", err)
		outcome = push.OutcomeTransientFailure
	}

	if outcome == push.OutcomeExpired {
		d.logger.Info("Pruning expired subscription", "recipient_id", sub.RecipientID, "endpoint", sub.Endpoint)
		if pruneErr := d.store.DeleteByRecipient(ctx, sub.RecipientID, sub.Endpoint); pruneErr != nil {
			d.logger.Warn("Failed to prune expired subscription", "endpoint", sub.Endpoint, "err", pruneErr)
		}
	}

	return push.AttemptResult{
		RecipientID: sub.RecipientID,
		Endpoint:    sub.Endpoint,
		Outcome:     outcome,
		Success:     outcome == push.OutcomeDelivered,
		StatusCode:  statusCode,
	}
}

// buildPayload produces the flat JSON the worker handler understands:
// title and body at the top level, metadata fields alongside them.
func buildPayload(req push.DispatchRequest) ([]byte, error) {
	fields := map[string]string{
		"title": req.Title,
		"body":  req.Body,
	}
	for k, v := range req.Metadata {
		if k == "title" || k == "body" {
			continue
		}
		fields[k] = v
	}
	return json.Marshal(fields)
}
