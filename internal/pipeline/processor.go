package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// Sender is the slice of the Dispatcher the processor needs. It is an
// interface so tests can observe routing without a real store.
type Sender interface {
	SendToDevice(ctx context.Context, deviceID, eventID string, msg dispatch.Message, opts *dispatch.Options) error
	SendToUser(ctx context.Context, userID, eventID string, msg dispatch.Message, opts *dispatch.Options) error
}

// NewProcessor creates the stage that routes a validated request to the
// dispatcher: device-targeted requests go straight to one device,
// user-targeted requests fan out.
func NewProcessor(sender Sender, logger *slog.Logger) messagepipeline.StreamProcessor[dispatch.Request] {
	return func(ctx context.Context, original messagepipeline.Message, request *dispatch.Request) error {
		procLogger := logger.With(
			"event_id", request.EventID,
			"pubsub_msg_id", original.ID,
		)

		var err error
		if request.DeviceID != "" {
			err = sender.SendToDevice(ctx, request.DeviceID, request.EventID, request.Message, request.Options)
		} else {
			err = sender.SendToUser(ctx, request.UserID, request.EventID, request.Message, request.Options)
		}

		if err != nil {
			var fanErr *dispatch.FanOutError
			if errors.As(err, &fanErr) {
				// Partial failure: every device was attempted and every
				// attempt is already in the transaction log. Redelivering
				// the message would duplicate the successful sends, so we
				// log the outcome and ack.
				procLogger.Error("Fan-out completed with failures",
					"attempted", fanErr.Attempted, "err", err)
				return nil
			}
			procLogger.Error("Dispatch failed", "err", err)
			return err // Retryable
		}

		procLogger.Info("Dispatched")
		return nil
	}
}
