// Package store provides in-memory implementations of the entitlement
// collaborator interfaces, for testing and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/meridian/deploy-assistant/entitlement"
)

// =============================================================================
// MEMORY STORE - In-memory snapshot store + expiration cache
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	snapshots map[entitlement.AccountID][]entitlement.Snapshot
	cache     map[cacheKey]entitlement.CachedExpirations
}

type cacheKey struct {
	AccountID  entitlement.AccountID
	WindowDays int
}

func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[entitlement.AccountID][]entitlement.Snapshot),
		cache:     make(map[cacheKey]entitlement.CachedExpirations),
	}
}

// SaveSnapshot inserts a snapshot keeping per-account chronological order.
func (m *Memory) SaveSnapshot(_ context.Context, snap entitlement.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := m.snapshots[snap.AccountID]

	// Binary search for the insertion point keeps reads sort-free.
	i := sort.Search(len(snaps), func(i int) bool {
		if !snaps[i].Timestamp.Equal(snap.Timestamp) {
			return snaps[i].Timestamp.After(snap.Timestamp)
		}
		return snaps[i].RequestID > snap.RequestID
	})

	snaps = append(snaps, entitlement.Snapshot{})
	copy(snaps[i+1:], snaps[i:])
	snaps[i] = snap
	m.snapshots[snap.AccountID] = snaps
	return nil
}

func (m *Memory) GetSnapshotsForAccount(_ context.Context, accountID entitlement.AccountID) ([]entitlement.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entitlement.Snapshot, len(m.snapshots[accountID]))
	copy(result, m.snapshots[accountID])
	return result, nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]entitlement.AccountID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]entitlement.AccountID, 0, len(m.snapshots))
	for id := range m.snapshots {
		accounts = append(accounts, id)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
	return accounts, nil
}

// =============================================================================
// EXPIRATION CACHE
// =============================================================================

func (m *Memory) PutExpirations(_ context.Context, entry entitlement.CachedExpirations) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[cacheKey{AccountID: entry.AccountID, WindowDays: entry.WindowDays}] = entry
	return nil
}

func (m *Memory) GetExpirations(_ context.Context, accountID entitlement.AccountID, windowDays int) (*entitlement.CachedExpirations, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.cache[cacheKey{AccountID: accountID, WindowDays: windowDays}]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *Memory) InvalidateExpirations(_ context.Context, accountID entitlement.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.cache {
		if k.AccountID == accountID {
			delete(m.cache, k)
		}
	}
	return nil
}

// Compile-time interface checks.
var (
	_ entitlement.SnapshotStore   = (*Memory)(nil)
	_ entitlement.ExpirationCache = (*Memory)(nil)
)
