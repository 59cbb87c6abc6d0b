// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package protection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// # In-Memory Token Store

// memoryEntry pairs a record with its eviction timer so Delete can cancel
// the pending callback.
type memoryEntry struct {
	record *TokenRecord
	timer  *time.Timer
}

// MemoryTokenStore implements [TokenStore] with a mutex-guarded map and
// per-token deferred eviction timers.
//
// # Scaling Boundary
//
// State lives in one process: a restart invalidates all outstanding tokens
// (acceptable — tokens live minutes, not hours) and replicas cannot see each
// other's tokens. Multi-instance deployments must use [RedisTokenStore].
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	// Observability counters
	issued  atomic.Int64
	evicted atomic.Int64
}

// MemoryTokenStoreStats provides observability metrics for the stats endpoint.
type MemoryTokenStoreStats struct {
	Issued  int64 `json:"issued"`
	Evicted int64 `json:"evicted"`
	Active  int   `json:"active"`
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		entries: make(map[string]*memoryEntry),
	}
}

// Put stores a record and schedules its eviction after ttl.
func (store *MemoryTokenStore) Put(_ context.Context, token string, record *TokenRecord, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	// Replace any stale entry for the same token string.
	if existing, found := store.entries[token]; found {
		existing.timer.Stop()
	}

	entry := &memoryEntry{record: record}
	entry.timer = time.AfterFunc(ttl, func() {
		store.evict(token)
	})
	store.entries[token] = entry

	store.issued.Add(1)
	return nil
}

// Get returns the live record for an exact token string.
func (store *MemoryTokenStore) Get(_ context.Context, token string) (*TokenRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, found := store.entries[token]
	if !found {
		return nil, ErrTokenNotFound
	}

	// Copy so callers never mutate shared state outside Update.
	record := *entry.record
	return &record, nil
}

// Consume spends one use under the store lock, so concurrent verifications
// serialize on the increment. Spending the last use removes the entry.
func (store *MemoryTokenStore) Consume(_ context.Context, token string) (*TokenRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, found := store.entries[token]
	if !found {
		return nil, ErrTokenNotFound
	}
	if entry.record.UsedCount >= entry.record.MaxUses {
		entry.timer.Stop()
		delete(store.entries, token)
		return nil, ErrTokenExhausted
	}

	entry.record.UsedCount++
	if entry.record.UsedCount >= entry.record.MaxUses {
		entry.timer.Stop()
		delete(store.entries, token)
	}

	record := *entry.record
	return &record, nil
}

// Delete removes a record and cancels its eviction timer.
func (store *MemoryTokenStore) Delete(_ context.Context, token string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if entry, found := store.entries[token]; found {
		entry.timer.Stop()
		delete(store.entries, token)
	}
	return nil
}

// Count reports the number of live records.
func (store *MemoryTokenStore) Count(_ context.Context) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.entries), nil
}

// Stats returns lifetime counters for the operator stats endpoint.
func (store *MemoryTokenStore) Stats() MemoryTokenStoreStats {
	store.mu.Lock()
	active := len(store.entries)
	store.mu.Unlock()

	return MemoryTokenStoreStats{
		Issued:  store.issued.Load(),
		Evicted: store.evicted.Load(),
		Active:  active,
	}
}

// evict is the timer callback removing an expired entry.
func (store *MemoryTokenStore) evict(token string) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, found := store.entries[token]; found {
		delete(store.entries, token)
		store.evicted.Add(1)
	}
}
