package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthkeep/go-push-service/pkg/worker"
)

// --- Fake host runtime ---

type fakeWindow struct {
	route   string
	focused int
}

func (w *fakeWindow) Focus(context.Context) error {
	w.focused++
	return nil
}

type fakeHost struct {
	skipWaitingCalls int
	claimCalls       int
	clearCalls       int

	shown   []worker.Notification
	showErr error

	windows    []worker.Window
	windowsErr error
	opened     []*fakeWindow
}

func (h *fakeHost) SkipWaiting(context.Context) error { h.skipWaitingCalls++; return nil }
func (h *fakeHost) ClaimClients(context.Context) error { h.claimCalls++; return nil }

func (h *fakeHost) ShowNotification(_ context.Context, n worker.Notification) error {
	if h.showErr != nil {
		return h.showErr
	}
	h.shown = append(h.shown, n)
	return nil
}

func (h *fakeHost) Windows(context.Context) ([]worker.Window, error) {
	return h.windows, h.windowsErr
}

func (h *fakeHost) OpenWindow(_ context.Context, route string) (worker.Window, error) {
	w := &fakeWindow{route: route}
	h.opened = append(h.opened, w)
	return w, nil
}

func (h *fakeHost) ClearCaches(context.Context) error { h.clearCalls++; return nil }

type fakeDisplayed struct {
	closed int
}

func (d *fakeDisplayed) Close(context.Context) error { d.closed++; return nil }

func newHandlerUnderTest() (*worker.Handler, *fakeHost) {
	host := &fakeHost{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return worker.NewHandler(host, logger), host
}

// --- Lifecycle ---

func TestLifecycle(t *testing.T) {
	h, host := newHandlerUnderTest()
	ctx := context.Background()

	require.NoError(t, h.HandleInstall(ctx))
	assert.Equal(t, 1, host.skipWaitingCalls)

	require.NoError(t, h.HandleActivate(ctx))
	assert.Equal(t, 1, host.claimCalls)
}

// --- Push display ---

func TestHandlePush_DisplaysPayload(t *testing.T) {
	h, host := newHandlerUnderTest()

	payload := []byte(`{"title":"Medication","body":"Take the blue one","userId":"u1","extraneous":42}`)
	require.NoError(t, h.HandlePush(context.Background(), payload))

	require.Len(t, host.shown, 1)
	n := host.shown[0]
	assert.Equal(t, "Medication", n.Title)
	assert.Equal(t, "Take the blue one", n.Body)
	assert.Equal(t, "u1", n.Data["userId"])
	assert.NotEmpty(t, n.Icon)
	assert.NotEmpty(t, n.Badge)

	require.Len(t, n.Actions, 2)
	assert.Equal(t, worker.ActionOpen, n.Actions[0].ID)
	assert.Equal(t, worker.ActionDismiss, n.Actions[1].ID)
}

func TestHandlePush_FallsBackOnBadPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("pure garbage")},
		{"empty", nil},
		{"json without fields", []byte(`{"unrelated":true}`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, host := newHandlerUnderTest()

			require.NoError(t, h.HandlePush(context.Background(), tc.payload))

			// A push is never swallowed: the fallback notification shows.
			require.Len(t, host.shown, 1)
			assert.Equal(t, "Reminder", host.shown[0].Title)
			assert.Equal(t, "Time for your reminder!", host.shown[0].Body)
		})
	}
}

func TestHandlePush_DisplayFailureSurfaces(t *testing.T) {
	h, host := newHandlerUnderTest()
	host.showErr = errors.New("quota exceeded")

	err := h.HandlePush(context.Background(), []byte(`{"title":"t"}`))
	assert.Error(t, err)
}

// --- Click routing ---

func TestHandleClick_FocusesExistingWindow(t *testing.T) {
	h, host := newHandlerUnderTest()
	open := &fakeWindow{route: "/reminders"}
	host.windows = []worker.Window{open}
	displayed := &fakeDisplayed{}

	require.NoError(t, h.HandleClick(context.Background(), worker.Click{
		Action:       worker.ActionOpen,
		Notification: displayed,
	}))

	assert.Equal(t, 1, displayed.closed)
	assert.Equal(t, 1, open.focused)
	assert.Empty(t, host.opened, "no new window when one exists")
}

func TestHandleClick_OpensExactlyOneWindow(t *testing.T) {
	h, host := newHandlerUnderTest()
	displayed := &fakeDisplayed{}

	require.NoError(t, h.HandleClick(context.Background(), worker.Click{
		Notification: displayed, // body tap, no action
	}))

	assert.Equal(t, 1, displayed.closed)
	require.Len(t, host.opened, 1)
	assert.Equal(t, worker.RemindersRoute, host.opened[0].route)
}

func TestHandleClick_DismissStops(t *testing.T) {
	h, host := newHandlerUnderTest()
	displayed := &fakeDisplayed{}

	require.NoError(t, h.HandleClick(context.Background(), worker.Click{
		Action:       worker.ActionDismiss,
		Notification: displayed,
	}))

	assert.Equal(t, 1, displayed.closed)
	assert.Empty(t, host.opened)
}

// --- Control messages ---

func TestHandleMessage(t *testing.T) {
	t.Run("skip waiting", func(t *testing.T) {
		h, host := newHandlerUnderTest()
		require.NoError(t, h.HandleMessage(context.Background(), []byte(`{"type":"SKIP_WAITING"}`), nil))
		assert.Equal(t, 1, host.skipWaitingCalls)
	})

	t.Run("clear caches acknowledges after completion", func(t *testing.T) {
		h, host := newHandlerUnderTest()
		acked := false
		require.NoError(t, h.HandleMessage(context.Background(), []byte(`{"type":"CLEAR_CACHES"}`), func() {
			acked = true
			assert.Equal(t, 1, host.clearCalls, "ack fires only after the clear completed")
		}))
		assert.True(t, acked)
	})

	t.Run("unknown type ignored", func(t *testing.T) {
		h, host := newHandlerUnderTest()
		require.NoError(t, h.HandleMessage(context.Background(), []byte(`{"type":"NAVIGATE"}`), nil))
		assert.Zero(t, host.skipWaitingCalls)
		assert.Zero(t, host.clearCalls)
	})

	t.Run("garbage ignored", func(t *testing.T) {
		h, _ := newHandlerUnderTest()
		require.NoError(t, h.HandleMessage(context.Background(), []byte("%%"), nil))
	})
}
