// Package memory provides the reference in-memory BackingStore. It is the
// default store for tests and single-process deployments; anything that
// needs durability uses the Firestore store instead.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// Store keeps devices, user associations and the transaction log in
// RWMutex-guarded maps. All methods are safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	devices      map[string]dispatch.Device
	users        map[string]map[string]struct{}
	transactions map[string]dispatch.Transaction
}

// New creates an empty store.
func New() *Store {
	return &Store{
		devices:      make(map[string]dispatch.Device),
		users:        make(map[string]map[string]struct{}),
		transactions: make(map[string]dispatch.Transaction),
	}
}

// AddDevice creates or fully overwrites the device record.
func (s *Store) AddDevice(_ context.Context, deviceID, transportID, deliveryKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[deviceID] = dispatch.Device{
		ID:          deviceID,
		TransportID: transportID,
		DeliveryKey: deliveryKey,
	}
	return nil
}

func (s *Store) FetchDevice(_ context.Context, deviceID string) (dispatch.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[deviceID]
	if !ok {
		return dispatch.Device{}, fmt.Errorf("device %q: %w", deviceID, dispatch.ErrDeviceNotFound)
	}
	return device, nil
}

// AssociateDevice creates the user's device set on first use.
func (s *Store) AssociateDevice(_ context.Context, deviceID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices, ok := s.users[userID]
	if !ok {
		devices = make(map[string]struct{})
		s.users[userID] = devices
	}
	devices[deviceID] = struct{}{}
	return nil
}

// DissociateDevice is idempotent: removing an absent association, or from
// an unknown user, succeeds. The user entry is kept even when its device
// set becomes empty.
func (s *Store) DissociateDevice(_ context.Context, deviceID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if devices, ok := s.users[userID]; ok {
		delete(devices, deviceID)
	}
	return nil
}

// FetchDevicesForUser returns the device records for the user's set; an
// unknown user yields an empty slice.
func (s *Store) FetchDevicesForUser(_ context.Context, userID string) ([]dispatch.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]dispatch.Device, 0, len(s.users[userID]))
	for deviceID := range s.users[userID] {
		if device, ok := s.devices[deviceID]; ok {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

// CreateTransaction appends an audit record and returns its generated ID.
func (s *Store) CreateTransaction(_ context.Context, eventID, deviceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txID := uuid.NewString()
	s.transactions[txID] = dispatch.Transaction{
		ID:        txID,
		EventID:   eventID,
		DeviceID:  deviceID,
		CreatedAt: time.Now().UTC(),
	}
	return txID, nil
}

func (s *Store) FetchTransactionsForEvent(_ context.Context, eventID string) ([]dispatch.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var transactions []dispatch.Transaction
	for _, tx := range s.transactions {
		if tx.EventID == eventID {
			transactions = append(transactions, tx)
		}
	}
	return transactions, nil
}
