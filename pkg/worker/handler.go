package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const (
	// ActionOpen focuses or opens the application; ActionDismiss just closes.
	ActionOpen    = "open"
	ActionDismiss = "dismiss"

	// RemindersRoute is where a click lands when no window is open.
	RemindersRoute = "/reminders"

	defaultIcon  = "/icons/icon-192x192.png"
	defaultBadge = "/icons/badge-72x72.png"

	defaultTitle = "Reminder"
	defaultBody  = "Time for your reminder!"
)

// Control message types delivered by pages to the worker.
const (
	MsgSkipWaiting = "SKIP_WAITING"
	MsgClearCaches = "CLEAR_CACHES"
)

// pushPayload is the recognized shape of an incoming push message.
// Unrecognized fields are ignored.
type pushPayload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	UserID string `json:"userId"`
}

// Handler owns the worker's event handling.
type Handler struct {
	host   Host
	logger *slog.Logger
}

func NewHandler(host Host, logger *slog.Logger) *Handler {
	return &Handler{
		host:   host,
		logger: logger.With("component", "WorkerHandler"),
	}
}

// HandleInstall activates the new worker version eagerly so new logic takes
// effect without every tab closing first.
func (h *Handler) HandleInstall(ctx context.Context) error {
	h.logger.Info("Worker installing")
	return h.host.SkipWaiting(ctx)
}

// HandleActivate takes control of pages that were already open.
func (h *Handler) HandleActivate(ctx context.Context) error {
	h.logger.Info("Worker activated")
	return h.host.ClaimClients(ctx)
}

// HandlePush displays a notification for the delivered payload. A push is
// never silently swallowed: an unparseable payload falls back to a generic
// reminder. The call returns only once the display has settled; returning
// earlier risks the host runtime tearing the worker down mid-display.
func (h *Handler) HandlePush(ctx context.Context, payload []byte) error {
	var parsed pushPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		h.logger.Warn("Push payload unparseable, using fallback", "err", err)
		parsed = pushPayload{}
	}
	if parsed.Title == "" {
		parsed.Title = defaultTitle
	}
	if parsed.Body == "" {
		parsed.Body = defaultBody
	}

	n := Notification{
		Title: parsed.Title,
		Body:  parsed.Body,
		Icon:  defaultIcon,
		Badge: defaultBadge,
		Actions: []Action{
			{ID: ActionOpen, Title: "Open"},
			{ID: ActionDismiss, Title: "Dismiss"},
		},
	}
	if parsed.UserID != "" {
		n.Data = map[string]string{"userId": parsed.UserID}
	}

	if err := h.host.ShowNotification(ctx, n); err != nil {
		return fmt.Errorf("notification display failed: %w", err)
	}
	return nil
}

// HandleClick closes the notification and routes the interaction: dismiss
// stops there, anything else focuses an existing application window or opens
// exactly one new one at the reminders route.
func (h *Handler) HandleClick(ctx context.Context, click Click) error {
	if err := click.Notification.Close(ctx); err != nil {
		h.logger.Warn("Notification close failed", "err", err)
	}
	if click.Action == ActionDismiss {
		return nil
	}

	windows, err := h.host.Windows(ctx)
	if err != nil {
		return fmt.Errorf("window lookup failed: %w", err)
	}
	if len(windows) > 0 {
		return windows[0].Focus(ctx)
	}
	if _, err := h.host.OpenWindow(ctx, RemindersRoute); err != nil {
		return fmt.Errorf("window open failed: %w", err)
	}
	return nil
}

// controlMessage is the page -> worker message envelope.
type controlMessage struct {
	Type string `json:"type"`
}

// HandleMessage processes a control message from a page. ack, when non-nil,
// is invoked after CLEAR_CACHES completes so the requester can proceed.
// Unknown message types are ignored.
func (h *Handler) HandleMessage(ctx context.Context, raw []byte, ack func()) error {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Warn("Control message unparseable", "err", err)
		return nil
	}

	switch msg.Type {
	case MsgSkipWaiting:
		return h.host.SkipWaiting(ctx)
	case MsgClearCaches:
		if err := h.host.ClearCaches(ctx); err != nil {
			return fmt.Errorf("cache clear failed: %w", err)
		}
		if ack != nil {
			ack()
		}
		return nil
	default:
		return nil
	}
}
