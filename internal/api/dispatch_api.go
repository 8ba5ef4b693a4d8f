package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/hearthkeep/go-push-service/internal/pipeline"
	"github.com/hearthkeep/go-push-service/pkg/push"
)

// DispatchAPI is the direct server-function entry point for fan-out, used by
// in-process triggers and trusted callers that do not go through Pub/Sub.
type DispatchAPI struct {
	Deliverer pipeline.Deliverer
	Logger    *slog.Logger
}

func NewDispatchAPI(deliverer pipeline.Deliverer, logger *slog.Logger) *DispatchAPI {
	return &DispatchAPI{
		Deliverer: deliverer,
		Logger:    logger,
	}
}

// Dispatch accepts {recipient_ids, title, body, metadata?} and returns the
// aggregate {total, successful, expired, results}. Per-endpoint failures are
// reflected in the aggregate, never as an HTTP error; only a signing-key load
// failure makes the call fail outright.
func (api *DispatchAPI) Dispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req push.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.RecipientIDs) == 0 {
		response.WriteJSONError(w, http.StatusBadRequest, "missing recipient_ids")
		return
	}

	result, err := api.Deliverer.Dispatch(ctx, req)
	if err != nil {
		api.Logger.Error("dispatch failed", "err", err)
		if errors.Is(err, push.ErrKeyFetchFailure) {
			response.WriteJSONError(w, http.StatusServiceUnavailable, "signing keys unavailable")
			return
		}
		response.WriteJSONError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		api.Logger.Error("response encode failed", "err", err)
	}
}

// PublicKeyResponse carries the VAPID public key for the client handshake.
type PublicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

// PublicKeyHandler serves the server's signing public key to clients about to
// run the browser-level subscribe. The route carries no auth; the key is not
// a secret.
func PublicKeyHandler(publicKey string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(PublicKeyResponse{PublicKey: publicKey}); err != nil {
			logger.Error("response encode failed", "err", err)
		}
	}
}
