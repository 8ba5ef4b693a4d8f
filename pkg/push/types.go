// Package push contains the public interfaces and domain models for the
// push-notification subscription and delivery subsystem.
package push

import "time"

// Subscription is one device's registration to receive pushes for a recipient.
// Uniqueness is on (RecipientID, Endpoint): a recipient may hold many devices,
// but re-subscribing the same device must update the row, never duplicate it.
type Subscription struct {
	ID          string    `json:"id" firestore:"id"`
	RecipientID string    `json:"recipient_id" firestore:"recipient_id"`
	Endpoint    string    `json:"endpoint" firestore:"endpoint"`
	P256dh      string    `json:"p256dh" firestore:"p256dh"`
	Auth        string    `json:"auth" firestore:"auth"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" firestore:"updated_at"`
}

// SigningKeyPair is the VAPID key pair used to authenticate outgoing messages
// to the delivery network. Loaded once per dispatch invocation and never
// mutated at runtime; rotating it simply makes old endpoints fail delivery,
// after which they are pruned on the next dispatch attempt.
type SigningKeyPair struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
}

// DispatchRequest is the input to one fan-out attempt. Transient, never persisted.
type DispatchRequest struct {
	RecipientIDs []string          `json:"recipient_ids"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Outcome classifies one delivery attempt to one subscription.
type Outcome string

const (
	OutcomeDelivered        Outcome = "delivered"
	OutcomeExpired          Outcome = "expired"
	OutcomeTransientFailure Outcome = "transient_failure"
)

// AttemptResult is the per-subscription result of one dispatch attempt.
type AttemptResult struct {
	RecipientID string  `json:"recipient_id"`
	Endpoint    string  `json:"-"`
	Outcome     Outcome `json:"-"`
	Success     bool    `json:"success"`
	StatusCode  string  `json:"status_code,omitempty"`
}

// DispatchResult aggregates one fan-out attempt across all matched subscriptions.
type DispatchResult struct {
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Expired    int             `json:"expired"`
	Results    []AttemptResult `json:"results"`
}
