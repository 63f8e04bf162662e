// Package dispatch contains the push-dispatch core: the domain model, the
// transport registry, and the dispatcher that fans a logical send out to
// the concrete delivery transports.
package dispatch

import "time"

// Device is a registered delivery endpoint. The DeliveryKey is opaque to
// the core; only the transport named by TransportID knows how to read it
// (an FCM registration token, an APNs device token, a serialized web-push
// subscription, ...).
type Device struct {
	ID          string `json:"id" firestore:"-"`
	TransportID string `json:"transport_id" firestore:"transport_id"`
	DeliveryKey string `json:"delivery_key" firestore:"delivery_key"`
}

// Transaction is the audit record of one attempted delivery of one event
// to one device. Transactions are written before the transport is invoked
// and are never updated or deleted.
type Transaction struct {
	ID        string    `json:"id" firestore:"-"`
	EventID   string    `json:"event_id" firestore:"event_id"`
	DeviceID  string    `json:"device_id" firestore:"device_id"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
}

// Message is the user-visible notification content.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Options carries transport-specific delivery hints. Every field is
// optional; transports ignore the fields they don't recognize. A nil
// *Options is equivalent to the zero value.
type Options struct {
	// Data is an opaque key/value payload delivered alongside the message.
	Data map[string]string `json:"data,omitempty"`
	// TTL is how long the transport may buffer an undeliverable message.
	TTL time.Duration `json:"ttl,omitempty"`
	// Priority is "high" or "normal" where the transport distinguishes.
	Priority string `json:"priority,omitempty"`
	// Sound names the notification sound (APNs).
	Sound string `json:"sound,omitempty"`
	// CollapseKey groups messages that replace each other (FCM).
	CollapseKey string `json:"collapse_key,omitempty"`
}

// Request is the targeting envelope used by the HTTP API and the
// ingestion pipeline. Exactly one of UserID or DeviceID must be set.
type Request struct {
	UserID   string   `json:"user_id,omitempty"`
	DeviceID string   `json:"device_id,omitempty"`
	EventID  string   `json:"event_id"`
	Message  Message  `json:"message"`
	Options  *Options `json:"options,omitempty"`
}
