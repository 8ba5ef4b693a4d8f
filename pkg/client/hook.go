package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hearthkeep/go-push-service/pkg/push"
)

// AggregateState is the derived subscribed state for a set of recipients
// controlled by one UI toggle.
type AggregateState string

const (
	NoneSubscribed AggregateState = "none"
	SomeSubscribed AggregateState = "some"
	AllSubscribed  AggregateState = "all"
)

// Hook derives an observable subscribed state for 1..N recipients by
// combining the manager's live device state with a status query against the
// store. The state is re-derived after every individual operation, not just
// at construction, so a bulk run shows partial progress.
type Hook struct {
	manager    *Manager
	recipients []string
	logger     *slog.Logger

	// onChange, when set, observes every re-derived state.
	onChange func(AggregateState)

	state AggregateState
}

func NewHook(manager *Manager, recipients []string, logger *slog.Logger) *Hook {
	return &Hook{
		manager:    manager,
		recipients: recipients,
		logger:     logger.With("component", "ReconciliationHook"),
		state:      NoneSubscribed,
	}
}

// OnChange registers the state observer. The UI toggle re-renders from it.
func (h *Hook) OnChange(fn func(AggregateState)) {
	h.onChange = fn
}

// State returns the last derived aggregate state.
func (h *Hook) State() AggregateState {
	return h.state
}

// Refresh re-derives the aggregate: a recipient counts as subscribed only
// when the store has a row AND this device still holds a live browser-level
// subscription.
func (h *Hook) Refresh(ctx context.Context) (AggregateState, error) {
	deviceLive, err := h.manager.DeviceSubscribed(ctx)
	if err != nil {
		return h.state, err
	}

	subscribed := 0
	if deviceLive {
		for _, recipientID := range h.recipients {
			ok, err := h.manager.store.Exists(ctx, recipientID)
			if err != nil {
				return h.state, err
			}
			if ok {
				subscribed++
			}
		}
	}

	switch {
	case subscribed == 0:
		h.setState(NoneSubscribed)
	case subscribed == len(h.recipients):
		h.setState(AllSubscribed)
	default:
		h.setState(SomeSubscribed)
	}
	return h.state, nil
}

// Subscribe opts one recipient in. Returns false with the failure logged when
// the attempt did not stick.
func (h *Hook) Subscribe(ctx context.Context, recipientID string) bool {
	err := h.manager.Subscribe(ctx, recipientID)
	if err != nil {
		h.logger.Warn("Subscribe failed", "recipient_id", recipientID, "err", err)
	}
	if _, refreshErr := h.Refresh(ctx); refreshErr != nil {
		h.logger.Warn("State refresh failed", "err", refreshErr)
	}
	return err == nil
}

// Unsubscribe opts one recipient out.
func (h *Hook) Unsubscribe(ctx context.Context, recipientID string) bool {
	err := h.manager.Unsubscribe(ctx, recipientID)
	if err != nil {
		h.logger.Warn("Unsubscribe failed", "recipient_id", recipientID, "err", err)
	}
	if _, refreshErr := h.Refresh(ctx); refreshErr != nil {
		h.logger.Warn("State refresh failed", "err", refreshErr)
	}
	return err == nil
}

// CheckStatus reports whether the store holds a row for the recipient. A
// failed lookup reads as not subscribed; the toggle then offers re-subscribe
// rather than a dead end.
func (h *Hook) CheckStatus(ctx context.Context, recipientID string) bool {
	ok, err := h.manager.store.Exists(ctx, recipientID)
	if err != nil {
		h.logger.Warn("Status check failed", "recipient_id", recipientID, "err", err)
		return false
	}
	return ok
}

// SubscribeAll opts every recipient in, each independently: one recipient's
// denied permission leaves the others subscribed, and the aggregate lands on
// SomeSubscribed. Returns the final aggregate and the per-recipient failures.
func (h *Hook) SubscribeAll(ctx context.Context) (AggregateState, []error) {
	var failures []error
	for _, recipientID := range h.recipients {
		if err := h.manager.Subscribe(ctx, recipientID); err != nil {
			h.logger.Warn("Bulk subscribe: recipient failed", "recipient_id", recipientID, "err", err)
			failures = append(failures, err)
		}
		// Partial progress is observable: re-derive after each recipient.
		if _, err := h.Refresh(ctx); err != nil {
			failures = append(failures, err)
		}
	}
	return h.state, failures
}

// UnsubscribeAll opts every recipient out, each independently.
func (h *Hook) UnsubscribeAll(ctx context.Context) (AggregateState, []error) {
	var failures []error
	for _, recipientID := range h.recipients {
		if err := h.manager.Unsubscribe(ctx, recipientID); err != nil && !errors.Is(err, push.ErrSubscribeInFlight) {
			h.logger.Warn("Bulk unsubscribe: recipient failed", "recipient_id", recipientID, "err", err)
			failures = append(failures, err)
		}
		if _, err := h.Refresh(ctx); err != nil {
			failures = append(failures, err)
		}
	}
	return h.state, failures
}

func (h *Hook) setState(next AggregateState) {
	if next == h.state {
		return
	}
	h.state = next
	if h.onChange != nil {
		h.onChange(next)
	}
}
