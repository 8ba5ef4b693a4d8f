// Package cache adds a Redis read-aside layer on top of the durable
// subscription store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthkeep/go-push-service/pkg/push"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or a specific error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedSubscriptionStore is a Decorator that adds Read-Aside caching to any
// SubscriptionStore. Reads for dispatch fan-out hit Redis first; every write
// invalidates the recipient's key so an opt-out stops notifications
// immediately rather than at TTL expiry.
type CachedSubscriptionStore struct {
	realStore push.SubscriptionStore
	cache     CacheClient
	ttl       time.Duration
}

// NewCachedSubscriptionStore creates the decorator.
func NewCachedSubscriptionStore(realStore push.SubscriptionStore, cache CacheClient, ttl time.Duration) *CachedSubscriptionStore {
	return &CachedSubscriptionStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATHS (Read-Aside) ---

// FindByRecipients assembles the fan-out list one recipient at a time so each
// recipient's device list caches (and invalidates) independently.
func (s *CachedSubscriptionStore) FindByRecipients(ctx context.Context, recipientIDs []string) ([]push.Subscription, error) {
	all := make([]push.Subscription, 0)

	for _, recipientID := range recipientIDs {
		subs, err := s.findOne(ctx, recipientID)
		if err != nil {
			return nil, err
		}
		all = append(all, subs...)
	}
	return all, nil
}

func (s *CachedSubscriptionStore) findOne(ctx context.Context, recipientID string) ([]push.Subscription, error) {
	key := s.cacheKey(recipientID)

	var cached []push.Subscription
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.FindByRecipients(ctx, []string{recipientID})
	if err != nil {
		return nil, err
	}

	// Populate cache fire-and-forget: caching is an optimization, not a
	// transaction. If Redis is down we just serve from the real store.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)

	return fresh, nil
}

// ExistsFor serves status checks from the same per-recipient cache entry.
func (s *CachedSubscriptionStore) ExistsFor(ctx context.Context, recipientID string) (bool, error) {
	subs, err := s.findOne(ctx, recipientID)
	if err != nil {
		return false, err
	}
	return len(subs) > 0, nil
}

// ExistsForEndpoint is a cross-recipient probe; it always goes to the real store.
func (s *CachedSubscriptionStore) ExistsForEndpoint(ctx context.Context, endpoint string) (bool, error) {
	return s.realStore.ExistsForEndpoint(ctx, endpoint)
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedSubscriptionStore) Upsert(ctx context.Context, sub push.Subscription) error {
	if err := s.realStore.Upsert(ctx, sub); err != nil {
		return err
	}
	return s.invalidate(ctx, sub.RecipientID)
}

// DeleteByRecipient must clear the cache even though the DB write succeeded,
// so a "disable notifications" action takes effect immediately.
func (s *CachedSubscriptionStore) DeleteByRecipient(ctx context.Context, recipientID, endpoint string) error {
	if err := s.realStore.DeleteByRecipient(ctx, recipientID, endpoint); err != nil {
		return err
	}
	return s.invalidate(ctx, recipientID)
}

// --- Helpers ---

func (s *CachedSubscriptionStore) invalidate(ctx context.Context, recipientID string) error {
	// Delete the key; the next read is forced back to the real store.
	return s.cache.Del(ctx, s.cacheKey(recipientID))
}

func (s *CachedSubscriptionStore) cacheKey(recipientID string) string {
	return fmt.Sprintf("push:subs:%s", recipientID)
}
