// Package firestore implements the dispatch.BackingStore on Google Cloud
// Firestore.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// Store persists devices, user associations and transactions in three
// collections:
//
//	devices/{deviceID}
//	users/{userID}/devices/{deviceID}
//	transactions/{transactionID}
//
// Transactions are append-only; nothing here ever updates or deletes one.
type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

// deviceRecord is the devices/{id} document shape.
type deviceRecord struct {
	TransportID string    `firestore:"transport_id"`
	DeliveryKey string    `firestore:"delivery_key"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

// associationRecord is the users/{id}/devices/{id} document shape. The
// device ID is duplicated into the document so fan-out reads don't need
// to parse document paths.
type associationRecord struct {
	DeviceID string    `firestore:"device_id"`
	AddedAt  time.Time `firestore:"added_at"`
}

// transactionRecord is the transactions/{id} document shape.
type transactionRecord struct {
	EventID   string    `firestore:"event_id"`
	DeviceID  string    `firestore:"device_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

// AddDevice creates or fully overwrites the device document
// (last-write-wins, matching the contract).
func (s *Store) AddDevice(ctx context.Context, deviceID, transportID, deliveryKey string) error {
	record := deviceRecord{
		TransportID: transportID,
		DeliveryKey: deliveryKey,
		UpdatedAt:   time.Now().UTC(),
	}
	_, err := s.deviceRef(deviceID).Set(ctx, record)
	return err
}

func (s *Store) FetchDevice(ctx context.Context, deviceID string) (dispatch.Device, error) {
	doc, err := s.deviceRef(deviceID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return dispatch.Device{}, fmt.Errorf("device %q: %w", deviceID, dispatch.ErrDeviceNotFound)
		}
		return dispatch.Device{}, fmt.Errorf("fetch device %q: %w", deviceID, err)
	}

	var record deviceRecord
	if err := doc.DataTo(&record); err != nil {
		return dispatch.Device{}, fmt.Errorf("decode device %q: %w", deviceID, err)
	}
	return dispatch.Device{
		ID:          deviceID,
		TransportID: record.TransportID,
		DeliveryKey: record.DeliveryKey,
	}, nil
}

func (s *Store) AssociateDevice(ctx context.Context, deviceID, userID string) error {
	record := associationRecord{
		DeviceID: deviceID,
		AddedAt:  time.Now().UTC(),
	}
	_, err := s.associationRef(userID, deviceID).Set(ctx, record)
	return err
}

// DissociateDevice is idempotent: Firestore Delete succeeds whether or
// not the document exists.
func (s *Store) DissociateDevice(ctx context.Context, deviceID, userID string) error {
	_, err := s.associationRef(userID, deviceID).Delete(ctx)
	return err
}

func (s *Store) FetchDevicesForUser(ctx context.Context, userID string) ([]dispatch.Device, error) {
	iter := s.client.Collection("users").Doc(userID).Collection("devices").Documents(ctx)
	defer iter.Stop()

	devices := make([]dispatch.Device, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate devices for user %q: %w", userID, err)
		}

		var assoc associationRecord
		if err := doc.DataTo(&assoc); err != nil {
			// Skip corrupt association rows rather than failing the fan-out.
			continue
		}

		device, err := s.FetchDevice(ctx, assoc.DeviceID)
		if err != nil {
			// An association may outlive its device record; that device
			// simply drops out of the fan-out set.
			continue
		}
		devices = append(devices, device)
	}
	return devices, nil
}

// CreateTransaction appends the audit record. Create (not Set) makes a
// UUID collision an error instead of a silent overwrite.
func (s *Store) CreateTransaction(ctx context.Context, eventID, deviceID string) (string, error) {
	txID := uuid.NewString()
	record := transactionRecord{
		EventID:   eventID,
		DeviceID:  deviceID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.client.Collection("transactions").Doc(txID).Create(ctx, record); err != nil {
		return "", fmt.Errorf("create transaction for event %q: %w", eventID, err)
	}
	return txID, nil
}

func (s *Store) FetchTransactionsForEvent(ctx context.Context, eventID string) ([]dispatch.Transaction, error) {
	iter := s.client.Collection("transactions").Where("event_id", "==", eventID).Documents(ctx)
	defer iter.Stop()

	var transactions []dispatch.Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate transactions for event %q: %w", eventID, err)
		}

		var record transactionRecord
		if err := doc.DataTo(&record); err != nil {
			continue
		}
		transactions = append(transactions, dispatch.Transaction{
			ID:        doc.Ref.ID,
			EventID:   record.EventID,
			DeviceID:  record.DeviceID,
			CreatedAt: record.CreatedAt,
		})
	}
	return transactions, nil
}

// --- Helpers ---

func (s *Store) deviceRef(deviceID string) *firestore.DocumentRef {
	return s.client.Collection("devices").Doc(deviceID)
}

func (s *Store) associationRef(userID, deviceID string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(userID).Collection("devices").Doc(deviceID)
}
