package push

import "context"

// SubscriptionStore defines the contract for durable subscription persistence.
// It lets the service remember "where" to send notifications for a recipient.
type SubscriptionStore interface {
	// Upsert inserts the subscription if (recipientID, endpoint) is absent,
	// otherwise updates its keys. Repeated calls with identical data are a no-op.
	Upsert(ctx context.Context, sub Subscription) error

	// DeleteByRecipient deletes one row when endpoint is non-empty, otherwise
	// every row for the recipient. Deleting an absent row is not an error.
	DeleteByRecipient(ctx context.Context, recipientID, endpoint string) error

	// FindByRecipients is the bulk read used for dispatch fan-out.
	FindByRecipients(ctx context.Context, recipientIDs []string) ([]Subscription, error)

	// ExistsFor reports whether the recipient has at least one registered device.
	ExistsFor(ctx context.Context, recipientID string) (bool, error)

	// ExistsForEndpoint reports whether any recipient still holds a row for the
	// endpoint. Used by shared-device unsubscribe to decide whether the
	// browser-level subscription can be torn down.
	ExistsForEndpoint(ctx context.Context, endpoint string) (bool, error)
}

// Transport delivers an encrypted payload to a single subscription's endpoint.
type Transport interface {
	// Deliver attempts one delivery and classifies the result. A classification
	// of OutcomeExpired or OutcomeTransientFailure is a result, not an error;
	// the error return is reserved for payload construction problems.
	Deliver(ctx context.Context, sub Subscription, keys SigningKeyPair, payload []byte) (Outcome, string, error)
}
