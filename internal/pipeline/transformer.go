// Package pipeline contains the message processing stages that feed the
// dispatcher from the ingestion subscription.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// PushRequestTransformer is a dataflow Transformer that safely unmarshals
// and validates a raw message payload into a structured dispatch.Request.
//
// A malformed payload returns an error with skip=true so the
// StreamingService can handle the Nack/DLQ logic.
func PushRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*dispatch.Request, bool, error) {
	var req dispatch.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal push request from message %s: %w", msg.ID, err)
	}

	if req.EventID == "" {
		return nil, true, fmt.Errorf("push request %s has no event_id", msg.ID)
	}
	if (req.UserID == "") == (req.DeviceID == "") {
		return nil, true, fmt.Errorf("push request %s must target exactly one of user_id or device_id", msg.ID)
	}

	return &req, false, nil
}
