package client_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthkeep/go-push-service/pkg/client"
	"github.com/hearthkeep/go-push-service/pkg/push"
)

// --- Fake browser runtime ---

type fakeSubscription struct {
	endpoint string
	p256dh   []byte
	auth     []byte
	reg      *fakeRegistration
}

func (s *fakeSubscription) Endpoint() string            { return s.endpoint }
func (s *fakeSubscription) Keys() (p256dh, auth []byte) { return s.p256dh, s.auth }
func (s *fakeSubscription) Unsubscribe(context.Context) error {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if s.reg.current == s {
		s.reg.current = nil
	}
	return nil
}

type fakeRegistration struct {
	mu             sync.Mutex
	current        *fakeSubscription
	subscribeCalls int
	subscribeErr   error
	// stableEndpoint makes the platform hand back the same endpoint on
	// re-subscribe, which real push services do for an unchanged install.
	stableEndpoint string
}

func (r *fakeRegistration) Subscription(context.Context) (client.PushSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil, nil
	}
	return r.current, nil
}

func (r *fakeRegistration) Subscribe(_ context.Context, serverKey []byte) (client.PushSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeCalls++
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	if len(serverKey) != 65 {
		return nil, errors.New("applicationServerKey is not a P-256 point")
	}

	endpoint := r.stableEndpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://push.example.net/send/ep-%d", r.subscribeCalls)
	}

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		return nil, err
	}

	r.current = &fakeSubscription{
		endpoint: endpoint,
		p256dh:   priv.PublicKey().Bytes(),
		auth:     auth,
		reg:      r,
	}
	return r.current, nil
}

type fakeRuntime struct {
	supported   bool
	permission  client.PermissionState
	reg         *fakeRegistration
	registerErr error
}

func (rt *fakeRuntime) SupportsPush() bool                 { return rt.supported }
func (rt *fakeRuntime) Permission() client.PermissionState { return rt.permission }
func (rt *fakeRuntime) RegisterWorker(context.Context) (client.WorkerRegistration, error) {
	if rt.registerErr != nil {
		return nil, rt.registerErr
	}
	return rt.reg, nil
}

// --- Fake store client ---

type fakeStoreClient struct {
	mu        sync.Mutex
	rows      map[string]map[string]push.Subscription // recipientID -> endpoint -> sub
	upsertErr error
	existsErr error
	denyFor   map[string]bool
}

func newFakeStoreClient() *fakeStoreClient {
	return &fakeStoreClient{rows: make(map[string]map[string]push.Subscription)}
}

func (s *fakeStoreClient) Upsert(_ context.Context, sub push.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if s.denyFor[sub.RecipientID] {
		return errors.New("writes denied for recipient")
	}
	if s.rows[sub.RecipientID] == nil {
		s.rows[sub.RecipientID] = make(map[string]push.Subscription)
	}
	s.rows[sub.RecipientID][sub.Endpoint] = sub
	return nil
}

func (s *fakeStoreClient) Delete(_ context.Context, recipientID, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if endpoint == "" {
		delete(s.rows, recipientID)
		return nil
	}
	delete(s.rows[recipientID], endpoint)
	return nil
}

func (s *fakeStoreClient) Exists(_ context.Context, recipientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return len(s.rows[recipientID]) > 0, nil
}

func (s *fakeStoreClient) EndpointActive(_ context.Context, endpoint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byEndpoint := range s.rows {
		if _, ok := byEndpoint[endpoint]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStoreClient) rowCount(recipientID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[recipientID])
}

// --- Fake key source ---

type fakeKeySource struct {
	key string
	err error
}

func (k *fakeKeySource) PublicSigningKey(context.Context) (string, error) {
	return k.key, k.err
}

// validServerKey produces a genuine base64url-encoded uncompressed P-256
// public key, the format the configuration store serves.
func validServerKey(t *testing.T) string {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
