// Package web provides the VAPID Web Push transport. The delivery key is
// the JSON-serialized push subscription the browser handed out, e.g.
//
//	{"endpoint":"https://...","keys":{"p256dh":"...","auth":"..."}}
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// Config holds the VAPID signing material.
type Config struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type Transport struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewTransport(cfg Config, logger *slog.Logger) *Transport {
	return &Transport{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushTransport"),
		httpClient: &http.Client{},
	}
}

// Send decodes the subscription out of the delivery key and pushes one
// message to it.
func (t *Transport) Send(ctx context.Context, deliveryKey string, msg dispatch.Message, opts *dispatch.Options) error {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(deliveryKey), &sub); err != nil {
		return fmt.Errorf("malformed web push delivery key: %w", err)
	}
	if sub.Endpoint == "" {
		return fmt.Errorf("web push delivery key has no endpoint")
	}

	payloadBytes, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{
			"title": msg.Title,
			"body":  msg.Body,
		},
		"data": opts.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ttl := 60
	if opts.TTL > 0 {
		ttl = int(opts.TTL.Seconds())
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payloadBytes, &sub, &webpush.Options{
		Subscriber:      t.subscriber,
		VAPIDPublicKey:  t.publicKey,
		VAPIDPrivateKey: t.privateKey,
		TTL:             ttl,
		Urgency:         urgencyFor(opts.Priority),
		HTTPClient:      t.httpClient,
	})
	if err != nil {
		return fmt.Errorf("web push transport failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		t.logger.Debug("Web push sent", "endpoint", sub.Endpoint)
		return nil
	case http.StatusGone, http.StatusNotFound:
		// 410 Gone / 404 Not Found: the subscription is dead.
		return fmt.Errorf("web push subscription gone (status %d)", resp.StatusCode)
	default:
		return fmt.Errorf("web push rejected (status %d)", resp.StatusCode)
	}
}

func urgencyFor(priority string) webpush.Urgency {
	switch priority {
	case "high":
		return webpush.UrgencyHigh
	case "normal":
		return webpush.UrgencyNormal
	default:
		return webpush.UrgencyNormal
	}
}
