package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/hearthkeep/go-push-service/pkg/push"
)

// Deliverer is the dispatch fan-out the processor hands each request to.
type Deliverer interface {
	Dispatch(ctx context.Context, req push.DispatchRequest) (*push.DispatchResult, error)
}

// NewProcessor creates the pipeline stage that hands each decoded dispatch
// request to the fan-out. A dispatch error is returned so the pipeline can
// Nack and retry the message; per-endpoint failures are already absorbed into
// the aggregate result and never bounce the message.
func NewProcessor(deliverer Deliverer, logger *slog.Logger) messagepipeline.StreamProcessor[push.DispatchRequest] {
	return func(ctx context.Context, original messagepipeline.Message, req *push.DispatchRequest) error {
		procLogger := logger.With(
			"recipient_ids", strings.Join(req.RecipientIDs, ","),
			"pubsub_msg_id", original.ID,
		)

		result, err := deliverer.Dispatch(ctx, *req)
		if err != nil {
			procLogger.Error("Dispatch failed", "err", err)
			return err // Retryable
		}

		if result.Total == 0 {
			procLogger.Info("No devices registered for recipients; dropping notification.")
			return nil
		}

		procLogger.Info("Dispatched",
			"total", result.Total,
			"successful", result.Successful,
			"expired", result.Expired,
		)
		return nil
	}
}
