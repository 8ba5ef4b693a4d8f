package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hearthkeep/go-push-service/internal/keycodec"
	"github.com/hearthkeep/go-push-service/pkg/push"
)

// KeySource fetches the server's public signing key for the subscribe
// handshake.
type KeySource interface {
	PublicSigningKey(ctx context.Context) (string, error)
}

// StoreClient is the persistence surface the manager writes registrations
// through, typically backed by the subscription HTTP API.
type StoreClient interface {
	Upsert(ctx context.Context, sub push.Subscription) error
	Delete(ctx context.Context, recipientID, endpoint string) error
	Exists(ctx context.Context, recipientID string) (bool, error)
	// EndpointActive reports whether any recipient still holds a row for the
	// endpoint, across the whole store.
	EndpointActive(ctx context.Context, endpoint string) (bool, error)
}

// Manager hides the two-step dance of "ensure a background worker is active"
// and "ensure it holds a live push subscription", keeping at most one
// subscription per device. Its lifetime matches the application session; it is
// passed explicitly rather than read from ambient globals.
type Manager struct {
	runtime Runtime
	keys    KeySource
	store   StoreClient
	logger  *slog.Logger

	mu           sync.Mutex
	registration WorkerRegistration
	inFlight     map[string]bool
}

func NewManager(runtime Runtime, keys KeySource, store StoreClient, logger *slog.Logger) *Manager {
	return &Manager{
		runtime:  runtime,
		keys:     keys,
		store:    store,
		logger:   logger.With("component", "RegistrationManager"),
		inFlight: make(map[string]bool),
	}
}

// EnsureWorkerReady registers the background worker, reusing an existing
// registration on repeat calls.
func (m *Manager) EnsureWorkerReady(ctx context.Context) (WorkerRegistration, error) {
	if !m.runtime.SupportsPush() {
		return nil, push.ErrUnsupportedPlatform
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registration != nil {
		return m.registration, nil
	}

	reg, err := m.runtime.RegisterWorker(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", push.ErrRegistrationFailure, err)
	}
	m.registration = reg
	return reg, nil
}

// CurrentPermissionState is a read-only probe callers use to decide whether to
// present a permission affordance before attempting Subscribe.
func (m *Manager) CurrentPermissionState() PermissionState {
	if !m.runtime.SupportsPush() {
		return PermissionDenied
	}
	return m.runtime.Permission()
}

// Subscribe registers this device to receive pushes for the recipient:
// worker ready, fetch and decode the server key, replace any stale
// browser-level subscription, then persist the new one keyed by
// (recipient, endpoint).
//
// A second Subscribe for the same recipient while one is in flight is
// rejected with ErrSubscribeInFlight; two interleaved browser-level subscribe
// calls could otherwise mint two different endpoints for one registration.
//
// When persistence fails the live browser-level subscription is left intact:
// the user now holds it, and silently rolling it back would strand the next
// retry. The caller surfaces ErrPersistFailure and may simply retry.
func (m *Manager) Subscribe(ctx context.Context, recipientID string) error {
	if err := m.acquire(recipientID); err != nil {
		return err
	}
	defer m.release(recipientID)

	reg, err := m.EnsureWorkerReady(ctx)
	if err != nil {
		return err
	}

	if m.runtime.Permission() == PermissionDenied {
		return push.ErrPermissionDenied
	}

	encodedKey, err := m.keys.PublicSigningKey(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", push.ErrKeyFetchFailure, err)
	}
	serverKey, err := keycodec.DecodeServerKey(encodedKey)
	if err != nil {
		return err
	}

	// Replace, never stack: an existing browser-level subscription carries
	// keys the server may no longer hold, so drop it before re-subscribing.
	existing, err := reg.Subscription(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", push.ErrSubscribeFailure, err)
	}
	staleEndpoint := ""
	if existing != nil {
		staleEndpoint = existing.Endpoint()
		if err := existing.Unsubscribe(ctx); err != nil {
			return fmt.Errorf("%w: stale subscription teardown: %v", push.ErrSubscribeFailure, err)
		}
	}

	sub, err := reg.Subscribe(ctx, serverKey)
	if err != nil {
		return fmt.Errorf("%w: %v", push.ErrSubscribeFailure, err)
	}

	// A re-subscribe may mint a fresh endpoint; the recipient's row for the
	// old one is now unreachable and can go. Best effort, it would be pruned
	// at dispatch anyway.
	if staleEndpoint != "" && staleEndpoint != sub.Endpoint() {
		if err := m.store.Delete(ctx, recipientID, staleEndpoint); err != nil {
			m.logger.Warn("Stale row cleanup failed", "endpoint", staleEndpoint, "err", err)
		}
	}

	p256dh, auth := sub.Keys()
	record := push.Subscription{
		RecipientID: recipientID,
		Endpoint:    sub.Endpoint(),
		P256dh:      keycodec.EncodeSubscriptionKey(p256dh),
		Auth:        keycodec.EncodeSubscriptionKey(auth),
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		m.logger.Error("Subscription persist failed; browser subscription kept", "recipient_id", recipientID, "err", err)
		return fmt.Errorf("%w: %v", push.ErrPersistFailure, err)
	}

	m.logger.Info("Subscribed", "recipient_id", recipientID, "endpoint", record.Endpoint)
	return nil
}

// Unsubscribe removes this device's registration for the recipient. The
// browser-level subscription is shared infrastructure on a shared device: it
// is only torn down once no recipient anywhere still holds a row for its
// endpoint.
func (m *Manager) Unsubscribe(ctx context.Context, recipientID string) error {
	if err := m.acquire(recipientID); err != nil {
		return err
	}
	defer m.release(recipientID)

	reg, err := m.EnsureWorkerReady(ctx)
	if err != nil {
		return err
	}

	sub, err := reg.Subscription(ctx)
	if err != nil {
		return fmt.Errorf("subscription lookup failed: %w", err)
	}
	if sub == nil {
		// No live device subscription; clear any server rows for the recipient.
		if err := m.store.Delete(ctx, recipientID, ""); err != nil {
			return fmt.Errorf("%w: %v", push.ErrPersistFailure, err)
		}
		return nil
	}

	endpoint := sub.Endpoint()
	if err := m.store.Delete(ctx, recipientID, endpoint); err != nil {
		return fmt.Errorf("%w: %v", push.ErrPersistFailure, err)
	}

	active, err := m.store.EndpointActive(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("endpoint status check failed: %w", err)
	}
	if !active {
		if err := sub.Unsubscribe(ctx); err != nil {
			return fmt.Errorf("browser unsubscribe failed: %w", err)
		}
		m.logger.Info("Device subscription torn down", "endpoint", endpoint)
	}

	m.logger.Info("Unsubscribed", "recipient_id", recipientID, "endpoint", endpoint)
	return nil
}

// DeviceSubscribed reports whether this device currently holds a live
// browser-level subscription.
func (m *Manager) DeviceSubscribed(ctx context.Context) (bool, error) {
	reg, err := m.EnsureWorkerReady(ctx)
	if err != nil {
		return false, err
	}
	sub, err := reg.Subscription(ctx)
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

// --- In-flight guard ---

func (m *Manager) acquire(recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[recipientID] {
		return push.ErrSubscribeInFlight
	}
	m.inFlight[recipientID] = true
	return nil
}

func (m *Manager) release(recipientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, recipientID)
}
