package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch/internal/storage/memory"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

func TestStore_Devices(t *testing.T) {
	ctx := context.Background()

	t.Run("Fetch returns what Add stored", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, store.AddDevice(ctx, "d1", "fcm", "token-1"))

		device, err := store.FetchDevice(ctx, "d1")

		require.NoError(t, err)
		assert.Equal(t, dispatch.Device{ID: "d1", TransportID: "fcm", DeliveryKey: "token-1"}, device)
	})

	t.Run("Re-adding a device overwrites it completely", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, store.AddDevice(ctx, "d1", "fcm", "token-1"))
		require.NoError(t, store.AddDevice(ctx, "d1", "apns", "token-2"))

		device, err := store.FetchDevice(ctx, "d1")

		require.NoError(t, err)
		assert.Equal(t, "apns", device.TransportID)
		assert.Equal(t, "token-2", device.DeliveryKey)
	})

	t.Run("Unknown device", func(t *testing.T) {
		store := memory.New()

		_, err := store.FetchDevice(ctx, "ghost")

		require.Error(t, err)
		assert.ErrorIs(t, err, dispatch.ErrDeviceNotFound)
	})
}

func TestStore_Associations(t *testing.T) {
	ctx := context.Background()

	t.Run("Round trip: associate, fetch, dissociate", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, store.AddDevice(ctx, "d1", "fcm", "token-1"))
		require.NoError(t, store.AssociateDevice(ctx, "d1", "u1"))

		devices, err := store.FetchDevicesForUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, "d1", devices[0].ID)

		require.NoError(t, store.DissociateDevice(ctx, "d1", "u1"))

		devices, err = store.FetchDevicesForUser(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, devices)
	})

	t.Run("Associating twice keeps a single entry", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, store.AddDevice(ctx, "d1", "fcm", "token-1"))
		require.NoError(t, store.AssociateDevice(ctx, "d1", "u1"))
		require.NoError(t, store.AssociateDevice(ctx, "d1", "u1"))

		devices, err := store.FetchDevicesForUser(ctx, "u1")

		require.NoError(t, err)
		assert.Len(t, devices, 1)
	})

	t.Run("Dissociating an absent association succeeds", func(t *testing.T) {
		store := memory.New()

		assert.NoError(t, store.DissociateDevice(ctx, "d1", "nobody"))
	})

	t.Run("Unknown user yields an empty set", func(t *testing.T) {
		store := memory.New()

		devices, err := store.FetchDevicesForUser(ctx, "nobody")

		require.NoError(t, err)
		assert.Empty(t, devices)
	})
}

func TestStore_Transactions(t *testing.T) {
	ctx := context.Background()

	t.Run("IDs are unique and records are queryable by event", func(t *testing.T) {
		store := memory.New()

		tx1, err := store.CreateTransaction(ctx, "ev-1", "d1")
		require.NoError(t, err)
		tx2, err := store.CreateTransaction(ctx, "ev-1", "d2")
		require.NoError(t, err)
		_, err = store.CreateTransaction(ctx, "ev-2", "d1")
		require.NoError(t, err)

		assert.NotEqual(t, tx1, tx2)

		transactions, err := store.FetchTransactionsForEvent(ctx, "ev-1")
		require.NoError(t, err)
		require.Len(t, transactions, 2)

		deviceIDs := []string{transactions[0].DeviceID, transactions[1].DeviceID}
		assert.ElementsMatch(t, []string{"d1", "d2"}, deviceIDs)
		for _, tx := range transactions {
			assert.Equal(t, "ev-1", tx.EventID)
			assert.False(t, tx.CreatedAt.IsZero())
		}
	})

	t.Run("Unknown event yields no transactions", func(t *testing.T) {
		store := memory.New()

		transactions, err := store.FetchTransactionsForEvent(ctx, "ev-none")

		require.NoError(t, err)
		assert.Empty(t, transactions)
	})
}
