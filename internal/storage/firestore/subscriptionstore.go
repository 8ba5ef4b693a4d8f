// Package firestore implements the durable SubscriptionStore on Google Cloud
// Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hearthkeep/go-push-service/pkg/push"
)

const subscriptionsCollection = "subscriptions"

// Store implements push.SubscriptionStore using Firestore.
// Layout: recipients/{recipientID}/subscriptions/{sha256(endpoint)}.
// Hashing the endpoint into the doc ID enforces the (recipient, endpoint)
// uniqueness invariant and avoids hot-spotting on the long endpoint URLs.
type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

// subscriptionRecord is the internal DB representation.
type subscriptionRecord struct {
	ID          string    `firestore:"id"`
	RecipientID string    `firestore:"recipient_id"`
	Endpoint    string    `firestore:"endpoint"`
	P256dh      string    `firestore:"p256dh"`
	Auth        string    `firestore:"auth"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

// Upsert inserts or refreshes the row for (recipientID, endpoint). The doc ID
// is derived from the endpoint, so a re-subscribe of the same device lands on
// the same document and updates it in place. CreatedAt survives updates.
func (s *Store) Upsert(ctx context.Context, sub push.Subscription) error {
	ref := s.subscriptionRef(sub.RecipientID, sub.Endpoint)
	now := time.Now().UTC()

	record := subscriptionRecord{
		ID:          sub.ID,
		RecipientID: sub.RecipientID,
		Endpoint:    sub.Endpoint,
		P256dh:      sub.P256dh,
		Auth:        sub.Auth,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	existing, err := ref.Get(ctx)
	switch {
	case err == nil:
		var prev subscriptionRecord
		if decodeErr := existing.DataTo(&prev); decodeErr == nil {
			record.ID = prev.ID
			record.CreatedAt = prev.CreatedAt
		}
	case status.Code(err) != codes.NotFound:
		return fmt.Errorf("firestore lookup failed: %w", err)
	}

	if _, err := ref.Set(ctx, record); err != nil {
		return fmt.Errorf("firestore upsert failed: %w", err)
	}
	return nil
}

// DeleteByRecipient removes one row when endpoint is given, otherwise all rows
// for the recipient. Deleting absent rows is a no-op, which makes pruning
// after an expired delivery idempotent.
func (s *Store) DeleteByRecipient(ctx context.Context, recipientID, endpoint string) error {
	if endpoint != "" {
		if _, err := s.subscriptionRef(recipientID, endpoint).Delete(ctx); err != nil {
			return fmt.Errorf("firestore delete failed: %w", err)
		}
		return nil
	}

	iter := s.recipientCollection(recipientID).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("firestore iteration failed: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("firestore delete failed: %w", err)
		}
	}
	return nil
}

// FindByRecipients is the bulk read for dispatch fan-out.
func (s *Store) FindByRecipients(ctx context.Context, recipientIDs []string) ([]push.Subscription, error) {
	subs := make([]push.Subscription, 0)

	for _, recipientID := range recipientIDs {
		iter := s.recipientCollection(recipientID).Documents(ctx)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return nil, fmt.Errorf("firestore iteration failed: %w", err)
			}

			var record subscriptionRecord
			if err := doc.DataTo(&record); err != nil {
				// Corrupt rows are skipped rather than failing the fan-out.
				continue
			}
			subs = append(subs, recordToSubscription(record))
		}
		iter.Stop()
	}

	return subs, nil
}

// ExistsFor reports whether the recipient has at least one registered device.
func (s *Store) ExistsFor(ctx context.Context, recipientID string) (bool, error) {
	iter := s.recipientCollection(recipientID).Limit(1).Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("firestore iteration failed: %w", err)
	}
	return true, nil
}

// ExistsForEndpoint checks across every recipient whether the endpoint still
// has a row. Collection-group query over all subscriptions subcollections.
func (s *Store) ExistsForEndpoint(ctx context.Context, endpoint string) (bool, error) {
	iter := s.client.CollectionGroup(subscriptionsCollection).
		Where("endpoint", "==", endpoint).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	_, err := iter.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("firestore iteration failed: %w", err)
	}
	return true, nil
}

// --- Helpers ---

func (s *Store) subscriptionRef(recipientID, endpoint string) *firestore.DocumentRef {
	return s.recipientCollection(recipientID).Doc(hashEndpoint(endpoint))
}

func (s *Store) recipientCollection(recipientID string) *firestore.CollectionRef {
	return s.client.Collection("recipients").Doc(recipientID).Collection(subscriptionsCollection)
}

func recordToSubscription(record subscriptionRecord) push.Subscription {
	return push.Subscription{
		ID:          record.ID,
		RecipientID: record.RecipientID,
		Endpoint:    record.Endpoint,
		P256dh:      record.P256dh,
		Auth:        record.Auth,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func hashEndpoint(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:])
}
