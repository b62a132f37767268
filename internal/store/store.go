// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package store implements the shared, concurrent keyspace: a map of keys
// to entries with optional TTL expiration driven by a background task, and
// a per-channel publish/subscribe broker. All mutation of the keyspace,
// the expiration index, and the channel table funnels through a single
// exclusive lock; the lock is never held across a suspension point.
package store

import (
	"sync"
	"time"
)

// Entry is a stored value together with its expiration metadata.
// InsertionID orders entries inside the expiration index and disambiguates
// re-inserts of the same key.
type Entry struct {
	Value       []byte
	ExpiresAt   time.Time // zero value means no expiration
	InsertionID uint64
}

func (e Entry) hasExpiry() bool { return !e.ExpiresAt.IsZero() }

func (e Entry) expired(now time.Time) bool {
	return e.hasExpiry() && !e.ExpiresAt.After(now)
}

// Store is the shared database: keyspace, expiration index, and
// publish/subscribe channel table, all guarded by one mutex.
type Store struct {
	mu sync.Mutex

	entries  map[string]Entry
	index    expiryIndex
	channels map[string]*channelState

	nextInsertionID uint64

	// wake is a single-slot, non-blocking notify used to wake the
	// background expiration task whenever a sooner expiration is
	// scheduled than whatever it is currently sleeping on.
	wake chan struct{}
}

// New creates an empty Store. Callers must start the background
// expiration loop separately via RunExpiryLoop.
func New() *Store {
	return &Store{
		entries:  make(map[string]Entry),
		channels: make(map[string]*channelState),
		wake:     make(chan struct{}, 1),
	}
}

// signalWake wakes the expiration task without blocking. It may be called
// with or without mu held — it only ever touches the channel, never
// shared maps, so it is safe either way.
func (s *Store) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Get returns the value for key, or (nil, false) if the key is absent or
// its entry has expired but has not yet been reaped by the background
// task — expired-but-not-yet-reaped entries are always treated as absent.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	return e.Value, true
}

// Set stores value under key, replacing any prior entry. A zero ttl means
// the entry never expires. Any previously scheduled expiration for key is
// removed from the index regardless of whether the new entry carries one
// (re-SET without TTL drops the old TTL; see DESIGN.md for the resolved
// Open Question).
func (s *Store) Set(key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextInsertionID++
	id := s.nextInsertionID

	if old, ok := s.entries[key]; ok && old.hasExpiry() {
		s.index.remove(expiryTriple{expiresAt: old.ExpiresAt, insertionID: old.InsertionID, key: key})
	}

	entry := Entry{Value: value, InsertionID: id}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
		triple := expiryTriple{expiresAt: entry.ExpiresAt, insertionID: id, key: key}
		becameEarliest := s.index.insert(triple)
		if becameEarliest {
			s.signalWake()
		}
	}
	s.entries[key] = entry
}

// DBSize reports the number of live (non-expired) keys.
func (s *Store) DBSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Expire sets key's time-to-live to the given number of seconds from now.
// A zero or negative value deletes the key immediately. Returns false if
// the key does not exist (or is already logically expired).
func (s *Store) Expire(key string, seconds int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		return false
	}

	if e.hasExpiry() {
		s.index.remove(expiryTriple{expiresAt: e.ExpiresAt, insertionID: e.InsertionID, key: key})
	}

	if seconds <= 0 {
		delete(s.entries, key)
		return true
	}

	e.ExpiresAt = time.Now().Add(time.Duration(seconds) * time.Second)
	s.entries[key] = e
	triple := expiryTriple{expiresAt: e.ExpiresAt, insertionID: e.InsertionID, key: key}
	if s.index.insert(triple) {
		s.signalWake()
	}
	return true
}

// TTL returns the remaining time-to-live for key. ok is false if the key
// does not exist; hasExpiry is false if the key exists but never expires.
func (s *Store) TTL(key string) (ttl time.Duration, hasExpiry bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || e.expired(time.Now()) {
		return 0, false, false
	}
	if !e.hasExpiry() {
		return 0, false, true
	}
	return time.Until(e.ExpiresAt), true, true
}

// Persist removes key's expiration, if any. Returns true if an expiration
// was actually removed.
func (s *Store) Persist(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) || !e.hasExpiry() {
		return false
	}

	s.index.remove(expiryTriple{expiresAt: e.ExpiresAt, insertionID: e.InsertionID, key: key})
	e.ExpiresAt = time.Time{}
	s.entries[key] = e
	return true
}

