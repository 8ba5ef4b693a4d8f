package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/hearthkeep/go-push-service/pkg/push"
)

// SubscriptionAPI exposes the registration surface the client-side
// registration manager persists through.
type SubscriptionAPI struct {
	Store  push.SubscriptionStore
	Logger *slog.Logger
}

func NewSubscriptionAPI(store push.SubscriptionStore, logger *slog.Logger) *SubscriptionAPI {
	return &SubscriptionAPI{
		Store:  store,
		Logger: logger,
	}
}

type subscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// RegisterRequest carries one device registration for one recipient.
type RegisterRequest struct {
	RecipientID string           `json:"recipient_id"`
	Endpoint    string           `json:"endpoint"`
	Keys        subscriptionKeys `json:"keys"`
}

// Register upserts the (recipient, endpoint) row. Re-subscribing the same
// device updates the keys in place.
func (api *SubscriptionAPI) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Logger.Error("Register: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid subscription json")
		return
	}

	if req.RecipientID == "" || req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		api.Logger.Warn("Register: validation failed", "reason", "missing fields")
		response.WriteJSONError(w, http.StatusBadRequest, "incomplete subscription object")
		return
	}

	sub := push.Subscription{
		ID:          uuid.NewString(),
		RecipientID: req.RecipientID,
		Endpoint:    req.Endpoint,
		P256dh:      req.Keys.P256dh,
		Auth:        req.Keys.Auth,
	}
	if err := api.Store.Upsert(ctx, sub); err != nil {
		api.Logger.Error("failed to register subscription", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Register: subscription stored", "recipient_id", req.RecipientID, "endpoint", req.Endpoint)

	w.WriteHeader(http.StatusNoContent)
}

// UnregisterRequest identifies the rows to delete. An empty endpoint removes
// every device of the recipient.
type UnregisterRequest struct {
	RecipientID string `json:"recipient_id"`
	Endpoint    string `json:"endpoint,omitempty"`
}

func (api *SubscriptionAPI) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UnregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.RecipientID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing recipient_id")
		return
	}

	// Idempotency is preferred for unregister; deleting nothing is fine.
	if err := api.Store.DeleteByRecipient(ctx, req.RecipientID, req.Endpoint); err != nil {
		api.Logger.Warn("failed to unregister subscription", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to unregister")
		return
	}
	api.Logger.Info("Unregister: subscription removed", "recipient_id", req.RecipientID, "endpoint", req.Endpoint)

	w.WriteHeader(http.StatusNoContent)
}

// StatusResponse reports whether a recipient has any registered device.
type StatusResponse struct {
	Subscribed bool `json:"subscribed"`
}

// Status answers the reconciliation hook's quick per-recipient check.
func (api *SubscriptionAPI) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	recipientID := r.URL.Query().Get("recipient_id")
	if recipientID == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing recipient_id")
		return
	}

	exists, err := api.Store.ExistsFor(ctx, recipientID)
	if err != nil {
		api.Logger.Error("status check failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "status check failed")
		return
	}

	api.writeJSON(w, StatusResponse{Subscribed: exists})
}

// EndpointStatusResponse reports whether any recipient still holds the endpoint.
type EndpointStatusResponse struct {
	Active bool `json:"active"`
}

// EndpointStatus supports the shared-device unsubscribe decision: the browser
// subscription is only torn down once no recipient references its endpoint.
func (api *SubscriptionAPI) EndpointStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing endpoint")
		return
	}

	active, err := api.Store.ExistsForEndpoint(ctx, endpoint)
	if err != nil {
		api.Logger.Error("endpoint status check failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "status check failed")
		return
	}

	api.writeJSON(w, EndpointStatusResponse{Active: active})
}

func (api *SubscriptionAPI) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.Logger.Error("response encode failed", "err", err)
	}
}
