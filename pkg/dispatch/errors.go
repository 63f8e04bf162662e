package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransportID is returned when a transport is registered
	// under an empty identifier.
	ErrInvalidTransportID = errors.New("transport identifier must be non-empty")

	// ErrTransportRegistered is returned when an identifier is registered
	// twice. The first registration stays in place.
	ErrTransportRegistered = errors.New("transport already registered")

	// ErrUnsupportedTransport is returned when a dispatch names an
	// identifier with no registered transport.
	ErrUnsupportedTransport = errors.New("unsupported transport")

	// ErrDeviceNotFound is returned by backing stores when a device ID has
	// no record.
	ErrDeviceNotFound = errors.New("device not found")
)

// DeliveryOutcome is the per-device result of a fan-out. Err is nil for a
// successful delivery.
type DeliveryOutcome struct {
	DeviceID string
	Err      error
}

// FanOutError reports a user-wide send where at least one device delivery
// failed. The wrapped error is the first failure in completion order;
// because per-device sends run concurrently, which failure completes
// first is not deterministic. Outcomes lists every attempted device, so
// callers that need specifics can inspect it, but the primary contract is
// only "some failed".
type FanOutError struct {
	UserID    string
	EventID   string
	Attempted int
	Outcomes  []DeliveryOutcome

	first error
}

func (e *FanOutError) Error() string {
	failed := 0
	for _, o := range e.Outcomes {
		if o.Err != nil {
			failed++
		}
	}
	return fmt.Sprintf("send to user %s: %d of %d deliveries failed: %v",
		e.UserID, failed, e.Attempted, e.first)
}

func (e *FanOutError) Unwrap() error { return e.first }
