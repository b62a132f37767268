// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import "time"

// SnapshotEntry is one live key as reported by Snapshot: a point-in-time
// copy, not a reference into the keyspace, so callers may take as long as
// they like to consume it without holding the store's lock.
type SnapshotEntry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time // zero means no expiration
}

// Snapshot returns every live (non-expired) key as of now, for callers
// such as the dump exporter that need a consistent, point-in-time view of
// the whole keyspace. The store's lock is held only long enough to copy
// the entries out; nothing is held across disk I/O.
func (s *Store) Snapshot() []SnapshotEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]SnapshotEntry, 0, len(s.entries))
	for key, e := range s.entries {
		if e.expired(now) {
			continue
		}
		out = append(out, SnapshotEntry{Key: key, Value: e.Value, ExpiresAt: e.ExpiresAt})
	}
	return out
}

// Stats is a read-only summary of keyspace shape, reported by the
// periodic housekeeping sweep.
type Stats struct {
	KeyCount       int
	KeysWithExpiry int
	NextExpiryIn   time.Duration // zero (with KeysWithExpiry == 0) means nothing is scheduled to expire
	ChannelCount   int
}

// Stats reports keyspace size and expiration shape without mutating
// anything, for the housekeeping sweep to log.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	st := Stats{ChannelCount: len(s.channels)}
	for _, e := range s.entries {
		if e.expired(now) {
			continue
		}
		st.KeyCount++
		if e.hasExpiry() {
			st.KeysWithExpiry++
		}
	}
	if earliest, ok := s.index.peekEarliest(); ok {
		if d := time.Until(earliest.expiresAt); d > 0 {
			st.NextExpiryIn = d
		}
	}
	return st
}
