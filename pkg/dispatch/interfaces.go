package dispatch

import "context"

// Transport is a single delivery channel (e.g. FCM, APNs, Web Push). A
// transport must report expected operational failures through the
// returned error, never by panicking, so the dispatcher's propagation
// path stays uniform.
type Transport interface {
	// Send delivers the message to the endpoint named by deliveryKey.
	// opts is never nil; transports ignore fields they don't recognize.
	Send(ctx context.Context, deliveryKey string, msg Message, opts *Options) error
}

// BackingStore is the persistence contract the dispatcher depends on:
// devices, user→device associations, and the append-only transaction log.
// Implementations must be safe for concurrent use; the dispatcher issues
// overlapping calls without serialization.
type BackingStore interface {
	// AddDevice creates or fully overwrites a device record
	// (last-write-wins, no merge).
	AddDevice(ctx context.Context, deviceID, transportID, deliveryKey string) error

	// FetchDevice returns the device record, or an error satisfying
	// errors.Is(err, ErrDeviceNotFound) when the ID is unknown.
	FetchDevice(ctx context.Context, deviceID string) (Device, error)

	// AssociateDevice adds the device to the user's set, creating the user
	// on first use.
	AssociateDevice(ctx context.Context, deviceID, userID string) error

	// DissociateDevice removes the device from the user's set. Removing an
	// absent association is not an error.
	DissociateDevice(ctx context.Context, deviceID, userID string) error

	// FetchDevicesForUser returns the device records associated with the
	// user; an unknown user yields an empty slice, not an error.
	FetchDevicesForUser(ctx context.Context, userID string) ([]Device, error)

	// CreateTransaction appends an audit record for one attempted delivery
	// and returns its generated ID. IDs are unique per store instance.
	CreateTransaction(ctx context.Context, eventID, deviceID string) (string, error)

	// FetchTransactionsForEvent returns every transaction recorded for the
	// event, in no particular order.
	FetchTransactionsForEvent(ctx context.Context, eventID string) ([]Transaction, error)
}
