// Package fcm provides the Firebase Cloud Messaging transport. The
// delivery key is the FCM registration token.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

type Transport struct {
	client MessagingClient
	logger *slog.Logger
}

// NewTransport accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
func NewTransport(client MessagingClient, logger *slog.Logger) *Transport {
	return &Transport{
		client: client,
		logger: logger.With("component", "FCMTransport"),
	}
}

// Send delivers one message to one registration token. All failures,
// including a token FCM rejects as garbage, surface through the returned
// error; cleanup of dead tokens is the caller's policy, not ours.
func (t *Transport) Send(ctx context.Context, deliveryKey string, msg dispatch.Message, opts *dispatch.Options) error {
	fcmMsg := &messaging.Message{
		Token: deliveryKey,
		Data:  opts.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	}

	if opts.TTL > 0 || opts.Priority != "" || opts.CollapseKey != "" {
		android := &messaging.AndroidConfig{
			Priority:    opts.Priority,
			CollapseKey: opts.CollapseKey,
		}
		if opts.TTL > 0 {
			ttl := opts.TTL
			android.TTL = &ttl
		}
		fcmMsg.Android = android
	}

	messageID, err := t.client.Send(ctx, fcmMsg)
	if err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) {
			return fmt.Errorf("fcm token no longer registered: %w", err)
		}
		if messaging.IsInvalidArgument(err) {
			return fmt.Errorf("fcm rejected message as invalid: %w", err)
		}
		return fmt.Errorf("fcm transport failed: %w", err)
	}

	t.logger.Debug("FCM message sent", "message_id", messageID)
	return nil
}
