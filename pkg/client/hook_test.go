package client_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthkeep/go-push-service/pkg/client"
)

func newHookUnderTest(t *testing.T, recipients ...string) (*client.Hook, *fakeRuntime, *fakeStoreClient) {
	t.Helper()
	rt := &fakeRuntime{
		supported:  true,
		permission: client.PermissionGranted,
		reg:        &fakeRegistration{stableEndpoint: "https://push.example.net/send/device-1"},
	}
	store := newFakeStoreClient()
	mgr := client.NewManager(rt, &fakeKeySource{key: validServerKey(t)}, store, testLogger())
	return client.NewHook(mgr, recipients, testLogger()), rt, store
}

func TestHook_InitialStateIsNone(t *testing.T) {
	hook, _, _ := newHookUnderTest(t, "recipient-a")

	assert.Equal(t, client.NoneSubscribed, hook.State())

	state, err := hook.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.NoneSubscribed, state)
}

func TestHook_SubscribeDrivesAggregate(t *testing.T) {
	hook, _, _ := newHookUnderTest(t, "recipient-a", "recipient-b")
	ctx := context.Background()

	assert.True(t, hook.Subscribe(ctx, "recipient-a"))
	assert.Equal(t, client.SomeSubscribed, hook.State())

	assert.True(t, hook.Subscribe(ctx, "recipient-b"))
	assert.Equal(t, client.AllSubscribed, hook.State())

	assert.True(t, hook.Unsubscribe(ctx, "recipient-a"))
	assert.Equal(t, client.SomeSubscribed, hook.State())

	assert.True(t, hook.Unsubscribe(ctx, "recipient-b"))
	assert.Equal(t, client.NoneSubscribed, hook.State())
}

func TestHook_SubscribeAll_PartialFailure(t *testing.T) {
	hook, _, store := newHookUnderTest(t, "recipient-a", "recipient-b")
	store.denyFor = map[string]bool{"recipient-b": true}
	ctx := context.Background()

	state, failures := hook.SubscribeAll(ctx)

	// One recipient's failure does not undo the other's subscription.
	assert.Equal(t, client.SomeSubscribed, state)
	assert.Len(t, failures, 1)
	assert.Equal(t, 1, store.rowCount("recipient-a"))
	assert.Equal(t, 0, store.rowCount("recipient-b"))
	assert.True(t, hook.CheckStatus(ctx, "recipient-a"))
	assert.False(t, hook.CheckStatus(ctx, "recipient-b"))
}

func TestHook_SubscribeAll_ObservesPartialProgress(t *testing.T) {
	hook, _, _ := newHookUnderTest(t, "recipient-a", "recipient-b")

	var observed []client.AggregateState
	hook.OnChange(func(s client.AggregateState) { observed = append(observed, s) })

	state, failures := hook.SubscribeAll(context.Background())

	require.Empty(t, failures)
	assert.Equal(t, client.AllSubscribed, state)
	// The state was re-derived after each recipient, not once at the end.
	assert.Equal(t, []client.AggregateState{client.SomeSubscribed, client.AllSubscribed}, observed)
}

func TestHook_UnsubscribeAll(t *testing.T) {
	hook, _, store := newHookUnderTest(t, "recipient-a", "recipient-b")
	ctx := context.Background()

	_, failures := hook.SubscribeAll(ctx)
	require.Empty(t, failures)

	state, failures := hook.UnsubscribeAll(ctx)

	assert.Empty(t, failures)
	assert.Equal(t, client.NoneSubscribed, state)
	assert.Equal(t, 0, store.rowCount("recipient-a"))
	assert.Equal(t, 0, store.rowCount("recipient-b"))
}

func TestHook_RefreshRequiresLiveDeviceSubscription(t *testing.T) {
	hook, rt, _ := newHookUnderTest(t, "recipient-a")
	ctx := context.Background()

	require.True(t, hook.Subscribe(ctx, "recipient-a"))
	require.Equal(t, client.AllSubscribed, hook.State())

	// The browser subscription dies out from under us (user cleared site
	// data). The store row alone no longer counts as subscribed.
	rt.reg.mu.Lock()
	rt.reg.current = nil
	rt.reg.mu.Unlock()

	state, err := hook.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.NoneSubscribed, state)
}

func TestHook_CheckStatusFailureReadsAsUnsubscribed(t *testing.T) {
	hook, _, store := newHookUnderTest(t, "recipient-a")
	ctx := context.Background()

	require.True(t, hook.Subscribe(ctx, "recipient-a"))

	store.existsErr = assert.AnError
	assert.False(t, hook.CheckStatus(ctx, "recipient-a"))
}
