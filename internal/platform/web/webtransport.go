// Package web implements the delivery transport on the Web Push protocol
// using VAPID-signed requests.
package web

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/hearthkeep/go-push-service/internal/keycodec"
	"github.com/hearthkeep/go-push-service/pkg/push"
)

// notificationTTL is how long the push service may buffer an undelivered
// message for an offline device, in seconds.
const notificationTTL = 60

// Transport sends one payload to one subscription endpoint and classifies the
// outcome. It implements push.Transport.
type Transport struct {
	logger     *slog.Logger
	httpClient *http.Client
}

func NewTransport(logger *slog.Logger) *Transport {
	return &Transport{
		logger:     logger.With("component", "WebPushTransport"),
		httpClient: &http.Client{},
	}
}

// Deliver attempts a single delivery. Expired and transient failures are
// classifications, not errors; the error return is reserved for key material
// that cannot be decoded into a sendable subscription.
func (t *Transport) Deliver(
	ctx context.Context,
	sub push.Subscription,
	keys push.SigningKeyPair,
	payload []byte,
) (push.Outcome, string, error) {

	// Stored keys are standard base64; the library wants them URL-safe raw.
	p256dh, err := keycodec.DecodeSubscriptionKey(sub.P256dh)
	if err != nil {
		return "", "", fmt.Errorf("p256dh key unusable for %s: %w", sub.Endpoint, err)
	}
	auth, err := keycodec.DecodeSubscriptionKey(sub.Auth)
	if err != nil {
		return "", "", fmt.Errorf("auth secret unusable for %s: %w", sub.Endpoint, err)
	}

	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(p256dh),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}

	resp, err := webpush.SendNotification(payload, s, &webpush.Options{
		Subscriber:      keys.Subscriber,
		VAPIDPublicKey:  keys.PublicKey,
		VAPIDPrivateKey: keys.PrivateKey,
		TTL:             notificationTTL,
		Urgency:         webpush.UrgencyNormal,
		HTTPClient:      t.httpClient,
	})
	if err != nil {
		// Transport error (DNS, timeout) - the endpoint may still be alive.
		t.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
		return push.OutcomeTransientFailure, "", nil
	}
	defer resp.Body.Close()

	statusCode := strconv.Itoa(resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusCreated:
		return push.OutcomeDelivered, statusCode, nil
	case http.StatusGone, http.StatusNotFound:
		// 410 Gone / 404 Not Found -> registration is dead, caller prunes it.
		return push.OutcomeExpired, statusCode, nil
	default:
		t.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		return push.OutcomeTransientFailure, statusCode, nil
	}
}
