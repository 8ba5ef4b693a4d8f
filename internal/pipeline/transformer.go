// Package pipeline contains the message processing components that turn
// Pub/Sub dispatch requests into deliveries.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/hearthkeep/go-push-service/pkg/push"
)

// DispatchRequestTransformer is a dataflow Transformer that safely unmarshals
// and validates a raw message payload into a structured push.DispatchRequest.
//
// A payload that does not parse, or that names no recipients, returns an error
// with skip=true so the StreamingService can route the message to the DLQ
// instead of wedging a worker on a poison pill.
func DispatchRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*push.DispatchRequest, bool, error) {
	var req push.DispatchRequest

	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal dispatch request from message %s: %w", msg.ID, err)
	}

	if len(req.RecipientIDs) == 0 {
		return nil, true, fmt.Errorf("dispatch request %s names no recipients", msg.ID)
	}

	return &req, false, nil
}
