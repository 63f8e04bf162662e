// Package apns provides the Apple Push Notification Service transport.
// The delivery key is the APNs device token.
package apns

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Transport struct {
	client APNSClient
	topic  string // The App Bundle ID (e.g. com.tinywide.messenger)
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
}

// NewTransport creates a configured APNs transport. It parses the P8 key
// immediately to fail fast on startup if credentials are bad.
func NewTransport(cfg Config, logger *slog.Logger) (*Transport, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	// Token-based auth goes through the production endpoint; it routes to
	// sandbox devices as needed.
	client := apns2.NewTokenClient(tokenSource)

	return &Transport{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSTransport"),
	}, nil
}

// Send delivers one notification to one device token over the unary
// APNs HTTP/2 API.
func (t *Transport) Send(ctx context.Context, deliveryKey string, msg dispatch.Message, opts *dispatch.Options) error {
	builder := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertBody(msg.Body)

	if opts.Sound != "" {
		builder.Sound(opts.Sound)
	}
	for k, v := range opts.Data {
		builder.Custom(k, v)
	}

	n := &apns2.Notification{
		DeviceToken: deliveryKey,
		Topic:       t.topic,
		Payload:     builder,
	}
	if opts.TTL > 0 {
		n.Expiration = time.Now().Add(opts.TTL)
	}
	switch opts.Priority {
	case "high":
		n.Priority = apns2.PriorityHigh
	case "normal":
		n.Priority = apns2.PriorityLow
	}

	res, err := t.client.PushWithContext(ctx, n)
	if err != nil {
		return fmt.Errorf("apns transport failed: %w", err)
	}

	if !res.Sent() {
		// See: https://developer.apple.com/documentation/usernotifications/setting_up_a_remote_notification_server/handling_notification_responses_from_apns
		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			return fmt.Errorf("apns token dead (%s)", res.Reason)
		default:
			return fmt.Errorf("apns rejected notification: %s (status %d)", res.Reason, res.StatusCode)
		}
	}

	t.logger.Debug("APNs notification sent", "apns_id", res.ApnsID)
	return nil
}
