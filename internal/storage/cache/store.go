// Package cache adds a Redis read-aside layer in front of a real
// BackingStore.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or a specific error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedStore is a Decorator that adds read-aside caching to any
// BackingStore. Device records are cached by ID; per-user lists cache
// only device IDs and resolve each record through the device key, so
// invalidating a device on AddDevice takes effect for user fan-outs
// immediately. Transaction operations pass straight through (the log is
// append-only, there is nothing worth caching).
type CachedStore struct {
	realStore dispatch.BackingStore
	cache     CacheClient
	ttl       time.Duration
}

// NewCachedStore creates the decorator.
func NewCachedStore(realStore dispatch.BackingStore, cache CacheClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATHS (Read-Aside) ---

func (s *CachedStore) FetchDevice(ctx context.Context, deviceID string) (dispatch.Device, error) {
	key := s.deviceKey(deviceID)
	var cached dispatch.Device

	// 1. Try Cache
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	// 2. Fallback to Real Store. A NotFound passes through uncached so a
	// later AddDevice becomes visible immediately.
	device, err := s.realStore.FetchDevice(ctx, deviceID)
	if err != nil {
		return dispatch.Device{}, err
	}

	// 3. Populate Cache (Fire and Forget)
	// Caching is an optimization, not a transaction. If Redis is down we
	// just serve from the real store.
	_ = s.cache.Set(ctx, key, device, s.ttl)

	return device, nil
}

func (s *CachedStore) FetchDevicesForUser(ctx context.Context, userID string) ([]dispatch.Device, error) {
	var cachedIDs []string

	if err := s.cache.Get(ctx, s.userKey(userID), &cachedIDs); err == nil {
		devices := make([]dispatch.Device, 0, len(cachedIDs))
		for _, deviceID := range cachedIDs {
			device, err := s.FetchDevice(ctx, deviceID)
			if err != nil {
				// The device record disappeared since the list was
				// cached; rebuild from the real store.
				return s.refreshDevicesForUser(ctx, userID)
			}
			devices = append(devices, device)
		}
		return devices, nil
	}

	return s.refreshDevicesForUser(ctx, userID)
}

func (s *CachedStore) refreshDevicesForUser(ctx context.Context, userID string) ([]dispatch.Device, error) {
	devices, err := s.realStore.FetchDevicesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(devices))
	for _, device := range devices {
		ids = append(ids, device.ID)
	}
	_ = s.cache.Set(ctx, s.userKey(userID), ids, s.ttl)
	return devices, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedStore) AddDevice(ctx context.Context, deviceID, transportID, deliveryKey string) error {
	// 1. Write to Source of Truth
	if err := s.realStore.AddDevice(ctx, deviceID, transportID, deliveryKey); err != nil {
		return err
	}
	// 2. Invalidate Cache. User lists hold only device IDs, so dropping
	// the device key is enough for a rotated delivery key to take effect
	// immediately, fan-out reads included.
	return s.cache.Del(ctx, s.deviceKey(deviceID))
}

func (s *CachedStore) AssociateDevice(ctx context.Context, deviceID, userID string) error {
	if err := s.realStore.AssociateDevice(ctx, deviceID, userID); err != nil {
		return err
	}
	return s.cache.Del(ctx, s.userKey(userID))
}

// DissociateDevice must clear the cached list even though the store write
// is idempotent: a "disable notifications" action has to stop deliveries
// immediately, not at TTL expiry.
func (s *CachedStore) DissociateDevice(ctx context.Context, deviceID, userID string) error {
	if err := s.realStore.DissociateDevice(ctx, deviceID, userID); err != nil {
		return err
	}
	return s.cache.Del(ctx, s.userKey(userID))
}

// --- TRANSACTIONS (Pass-Through) ---

func (s *CachedStore) CreateTransaction(ctx context.Context, eventID, deviceID string) (string, error) {
	return s.realStore.CreateTransaction(ctx, eventID, deviceID)
}

func (s *CachedStore) FetchTransactionsForEvent(ctx context.Context, eventID string) ([]dispatch.Transaction, error) {
	return s.realStore.FetchTransactionsForEvent(ctx, eventID)
}

// --- Helpers ---

func (s *CachedStore) deviceKey(deviceID string) string {
	return fmt.Sprintf("dispatch:device:%s", deviceID)
}

func (s *CachedStore) userKey(userID string) string {
	return fmt.Sprintf("dispatch:user:%s:devices", userID)
}
