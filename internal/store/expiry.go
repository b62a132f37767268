// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import (
	"sort"
	"time"

	"github.com/nishisan-dev/burrow/internal/shutdown"
)

// expiryTriple is one entry in the expiration index: the moment a key
// expires, the insertion id that placed it there (breaking ties between
// keys scheduled for the exact same instant), and the key itself.
type expiryTriple struct {
	expiresAt   time.Time
	insertionID uint64
	key         string
}

func (a expiryTriple) less(b expiryTriple) bool {
	if !a.expiresAt.Equal(b.expiresAt) {
		return a.expiresAt.Before(b.expiresAt)
	}
	if a.insertionID != b.insertionID {
		return a.insertionID < b.insertionID
	}
	return a.key < b.key
}

// expiryIndex is a slice of triples kept sorted ascending by
// (expiresAt, insertionID, key), giving O(log n) lookup of the next
// expiration and O(n) insert/remove — adequate at the scale this service
// targets, and simple enough that the ordering invariant is easy to audit.
type expiryIndex struct {
	triples []expiryTriple
}

// insert adds t to the index and reports whether t is now the earliest
// entry, which means the background expiration task may need waking.
func (idx *expiryIndex) insert(t expiryTriple) bool {
	i := sort.Search(len(idx.triples), func(i int) bool { return t.less(idx.triples[i]) })
	idx.triples = append(idx.triples, expiryTriple{})
	copy(idx.triples[i+1:], idx.triples[i:])
	idx.triples[i] = t
	return i == 0
}

// remove deletes t from the index, if present.
func (idx *expiryIndex) remove(t expiryTriple) {
	i := sort.Search(len(idx.triples), func(i int) bool { return !idx.triples[i].less(t) })
	if i < len(idx.triples) && idx.triples[i] == t {
		idx.triples = append(idx.triples[:i], idx.triples[i+1:]...)
	}
}

// peekEarliest returns the earliest scheduled triple without removing it.
func (idx *expiryIndex) peekEarliest() (expiryTriple, bool) {
	if len(idx.triples) == 0 {
		return expiryTriple{}, false
	}
	return idx.triples[0], true
}

// popExpired removes and returns every triple whose expiresAt is at or
// before now, in ascending order.
func (idx *expiryIndex) popExpired(now time.Time) []expiryTriple {
	n := 0
	for n < len(idx.triples) && !idx.triples[n].expiresAt.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}
	due := make([]expiryTriple, n)
	copy(due, idx.triples[:n])
	idx.triples = idx.triples[n:]
	return due
}

// RunExpiryLoop reaps expired keys until sig fires. It never holds the
// store's lock while sleeping: each iteration locks just long enough to
// reap due entries and read the next deadline, then sleeps outside the
// lock either until that deadline, until a fresher deadline wakes it early
// through s.wake, or until shutdown is signaled.
func (s *Store) RunExpiryLoop(sig shutdown.Signal) {
	for {
		now := time.Now()

		s.mu.Lock()
		due := s.index.popExpired(now)
		for _, t := range due {
			if e, ok := s.entries[t.key]; ok && e.InsertionID == t.insertionID {
				delete(s.entries, t.key)
			}
		}
		next, hasNext := s.index.peekEarliest()
		s.mu.Unlock()

		if !hasNext {
			select {
			case <-s.wake:
			case <-sig.Done():
				return
			}
			continue
		}

		wait := time.Until(next.expiresAt)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		case <-sig.Done():
			timer.Stop()
			return
		}
	}
}
