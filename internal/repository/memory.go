package repository

import (
	"context"
	"sync"
	"time"
)

type lockKey struct {
	tripID int64
	seat   string
}

type lockEntry struct {
	holderID  string
	expiresAt time.Time
}

// MemorySeatLockStore keeps seat holds in process memory. It is correct for a
// single instance only.
type MemorySeatLockStore struct {
	mu    sync.Mutex
	locks map[lockKey]lockEntry
	now   func() time.Time
}

func NewMemorySeatLockStore() *MemorySeatLockStore {
	return &MemorySeatLockStore{
		locks: make(map[lockKey]lockEntry),
		now:   time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *MemorySeatLockStore) WithClock(now func() time.Time) *MemorySeatLockStore {
	s.now = now
	return s
}

func (s *MemorySeatLockStore) TryLock(_ context.Context, tripID int64, seatCode, holderID string, ttl time.Duration) (bool, error) {
	key := lockKey{tripID: tripID, seat: seatCode}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, ok := s.locks[key]; ok && now.Before(entry.expiresAt) && entry.holderID != holderID {
		return false, nil
	}

	s.locks[key] = lockEntry{holderID: holderID, expiresAt: now.Add(ttl)}
	return true, nil
}

// Unlock removes the hold only when holderID owns it.
func (s *MemorySeatLockStore) Unlock(_ context.Context, tripID int64, seatCode, holderID string) error {
	key := lockKey{tripID: tripID, seat: seatCode}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.locks[key]; ok && entry.holderID == holderID {
		delete(s.locks, key)
	}
	return nil
}

func (s *MemorySeatLockStore) List(_ context.Context, tripID int64) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	result := make(map[string]string)
	for key, entry := range s.locks {
		if key.tripID == tripID && now.Before(entry.expiresAt) {
			result[key.seat] = entry.holderID
		}
	}
	return result, nil
}

// Purge drops holds that expired at or before now and reports how many were removed.
func (s *MemorySeatLockStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.locks {
		if !now.Before(entry.expiresAt) {
			delete(s.locks, key)
			removed++
		}
	}
	return removed
}

func (s *MemorySeatLockStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
