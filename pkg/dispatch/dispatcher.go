package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Config tunes a Dispatcher.
type Config struct {
	// MaxInFlight bounds concurrent per-device sends within one SendToUser
	// call. Zero means unbounded, which is fine at the scale of a single
	// user's device set; deployments with large fan-outs can set it.
	MaxInFlight int
}

// Dispatcher is the single entry point of the push subsystem. It resolves
// a logical target (a device, or every device of a user) into transport
// deliveries, records an audit transaction per attempt, and aggregates
// per-device outcomes for user-wide sends.
//
// The dispatcher performs no retries and no cleanup: collaborator errors
// are forwarded unchanged, and transactions persist even when the send
// they record ultimately fails.
type Dispatcher struct {
	store    BackingStore
	registry *Registry
	logger   *slog.Logger
	cfg      Config
}

// New assembles a dispatcher over the given store and registry.
func New(cfg Config, store BackingStore, registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		registry: registry,
		logger:   logger.With("component", "Dispatcher"),
		cfg:      cfg,
	}
}

// RegisterTransport exposes registry registration through the dispatcher
// so callers need only one handle.
func (d *Dispatcher) RegisterTransport(identifier string, transport Transport) error {
	return d.registry.Register(identifier, transport)
}

// AddDevice, AssociateDevice and DissociateDevice forward to the backing
// store unchanged; they exist so the dispatcher is the subsystem's single
// entry point.

func (d *Dispatcher) AddDevice(ctx context.Context, deviceID, transportID, deliveryKey string) error {
	return d.store.AddDevice(ctx, deviceID, transportID, deliveryKey)
}

func (d *Dispatcher) AssociateDevice(ctx context.Context, deviceID, userID string) error {
	return d.store.AssociateDevice(ctx, deviceID, userID)
}

func (d *Dispatcher) DissociateDevice(ctx context.Context, deviceID, userID string) error {
	return d.store.DissociateDevice(ctx, deviceID, userID)
}

// TransactionsForEvent returns the audit log for one event: every
// delivery that was attempted for it.
func (d *Dispatcher) TransactionsForEvent(ctx context.Context, eventID string) ([]Transaction, error) {
	return d.store.FetchTransactionsForEvent(ctx, eventID)
}

// Dispatch performs one transport invocation: resolve the transport,
// substitute empty options when nil, and forward the transport's outcome
// unchanged. A missing transport surfaces through the same error channel
// as a transport-level failure, distinguishable only via
// errors.Is(err, ErrUnsupportedTransport).
func (d *Dispatcher) Dispatch(ctx context.Context, transportID, deliveryKey string, msg Message, opts *Options) error {
	transport, err := d.registry.Resolve(transportID)
	if err != nil {
		return err
	}
	if opts == nil {
		opts = &Options{}
	}
	return transport.Send(ctx, deliveryKey, msg, opts)
}

// SendToDevice delivers one event to one device.
//
// The transaction is created before the device is resolved so that even a
// "device vanished between association and send" race leaves an auditable
// record. A transaction therefore records an attempt, not a success, and
// is never rolled back.
func (d *Dispatcher) SendToDevice(ctx context.Context, deviceID, eventID string, msg Message, opts *Options) error {
	txID, err := d.store.CreateTransaction(ctx, eventID, deviceID)
	if err != nil {
		return fmt.Errorf("create transaction for event %s: %w", eventID, err)
	}

	device, err := d.store.FetchDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	if err := d.Dispatch(ctx, device.TransportID, device.DeliveryKey, msg, opts); err != nil {
		d.logger.Warn("Delivery failed",
			"device_id", deviceID,
			"event_id", eventID,
			"transaction_id", txID,
			"transport", device.TransportID,
			"err", err,
		)
		return err
	}

	d.logger.Debug("Delivered",
		"device_id", deviceID,
		"event_id", eventID,
		"transaction_id", txID,
		"transport", device.TransportID,
	)
	return nil
}

// SendToUser fans one event out to every device associated with userID.
// Per-device sends run concurrently and every device is always attempted;
// a failure does not cancel the siblings. All-success (including the
// empty device set) reports nil. Otherwise the returned error is a
// *FanOutError wrapping the first failure in completion order.
func (d *Dispatcher) SendToUser(ctx context.Context, userID, eventID string, msg Message, opts *Options) error {
	devices, err := d.store.FetchDevicesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch devices for user %s: %w", userID, err)
	}
	if len(devices) == 0 {
		d.logger.Info("No devices registered for user; nothing to send.",
			"user_id", userID, "event_id", eventID)
		return nil
	}

	var sem chan struct{}
	if d.cfg.MaxInFlight > 0 {
		sem = make(chan struct{}, d.cfg.MaxInFlight)
	}

	results := make(chan DeliveryOutcome, len(devices))
	var wg sync.WaitGroup
	for _, device := range devices {
		wg.Add(1)
		go func(deviceID string) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results <- DeliveryOutcome{
				DeviceID: deviceID,
				Err:      d.SendToDevice(ctx, deviceID, eventID, msg, opts),
			}
		}(device.ID)
	}
	wg.Wait()
	close(results)

	fanErr := &FanOutError{
		UserID:    userID,
		EventID:   eventID,
		Attempted: len(devices),
	}
	// Outcomes arrive in completion order; the first failed one becomes
	// the representative error.
	for outcome := range results {
		fanErr.Outcomes = append(fanErr.Outcomes, outcome)
		if outcome.Err != nil && fanErr.first == nil {
			fanErr.first = outcome.Err
		}
	}
	if fanErr.first == nil {
		return nil
	}
	return fanErr
}
