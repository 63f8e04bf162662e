//go:build integration

package firestore_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsStore "github.com/tinywideclouds/go-push-dispatch/internal/storage/firestore"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

func TestStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	projectID := "test-project-store"
	conn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	client, err := firestore.NewClient(ctx, projectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := fsStore.NewStore(client)

	t.Run("Device round-trip and overwrite", func(t *testing.T) {
		deviceID := "d-" + uuid.NewString()

		require.NoError(t, store.AddDevice(ctx, deviceID, "fcm", "token-1"))

		device, err := store.FetchDevice(ctx, deviceID)
		require.NoError(t, err)
		assert.Equal(t, deviceID, device.ID)
		assert.Equal(t, "fcm", device.TransportID)
		assert.Equal(t, "token-1", device.DeliveryKey)

		// Re-registering the same ID replaces the record wholesale.
		require.NoError(t, store.AddDevice(ctx, deviceID, "apns", "token-2"))

		device, err = store.FetchDevice(ctx, deviceID)
		require.NoError(t, err)
		assert.Equal(t, "apns", device.TransportID)
		assert.Equal(t, "token-2", device.DeliveryKey)
	})

	t.Run("FetchDevice returns ErrDeviceNotFound for unknown ID", func(t *testing.T) {
		_, err := store.FetchDevice(ctx, "d-missing-"+uuid.NewString())

		require.Error(t, err)
		assert.ErrorIs(t, err, dispatch.ErrDeviceNotFound)
	})

	t.Run("Associations drive user fan-out set", func(t *testing.T) {
		userID := "u-" + uuid.NewString()
		deviceA := "d-" + uuid.NewString()
		deviceB := "d-" + uuid.NewString()

		require.NoError(t, store.AddDevice(ctx, deviceA, "fcm", "key-a"))
		require.NoError(t, store.AddDevice(ctx, deviceB, "web", "key-b"))
		require.NoError(t, store.AssociateDevice(ctx, deviceA, userID))
		require.NoError(t, store.AssociateDevice(ctx, deviceB, userID))

		devices, err := store.FetchDevicesForUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, devices, 2)

		keys := []string{devices[0].DeliveryKey, devices[1].DeliveryKey}
		assert.ElementsMatch(t, []string{"key-a", "key-b"}, keys)

		// Dissociating removes the device from the set.
		require.NoError(t, store.DissociateDevice(ctx, deviceA, userID))

		devices, err = store.FetchDevicesForUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, "key-b", devices[0].DeliveryKey)

		// Dissociating again is a no-op, not an error.
		require.NoError(t, store.DissociateDevice(ctx, deviceA, userID))
	})

	t.Run("Dangling association drops out of fan-out", func(t *testing.T) {
		userID := "u-" + uuid.NewString()
		deviceID := "d-" + uuid.NewString()

		// Association without a backing device record.
		require.NoError(t, store.AssociateDevice(ctx, deviceID, userID))

		devices, err := store.FetchDevicesForUser(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, devices)
	})

	t.Run("Unknown user yields empty set", func(t *testing.T) {
		devices, err := store.FetchDevicesForUser(ctx, "u-missing-"+uuid.NewString())

		require.NoError(t, err)
		assert.Empty(t, devices)
	})

	t.Run("Transactions are append-only per event", func(t *testing.T) {
		eventID := "ev-" + uuid.NewString()

		txA, err := store.CreateTransaction(ctx, eventID, "d-1")
		require.NoError(t, err)
		txB, err := store.CreateTransaction(ctx, eventID, "d-2")
		require.NoError(t, err)
		assert.NotEqual(t, txA, txB)

		// A transaction for a different event stays out of the result.
		_, err = store.CreateTransaction(ctx, "ev-other-"+uuid.NewString(), "d-3")
		require.NoError(t, err)

		transactions, err := store.FetchTransactionsForEvent(ctx, eventID)
		require.NoError(t, err)
		require.Len(t, transactions, 2)

		ids := []string{transactions[0].ID, transactions[1].ID}
		assert.ElementsMatch(t, []string{txA, txB}, ids)
		for _, tx := range transactions {
			assert.Equal(t, eventID, tx.EventID)
			assert.False(t, tx.CreatedAt.IsZero())
		}
	})

	t.Run("Unknown event yields no transactions", func(t *testing.T) {
		transactions, err := store.FetchTransactionsForEvent(ctx, "ev-missing-"+uuid.NewString())

		require.NoError(t, err)
		assert.Empty(t, transactions)
	})
}
