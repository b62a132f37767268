// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import (
	"testing"
	"time"

	"github.com/nishisan-dev/burrow/internal/shutdown"
)

func TestExpiryIndex_OrderingAndEarliestWake(t *testing.T) {
	var idx expiryIndex

	t0 := time.Now()
	became1 := idx.insert(expiryTriple{expiresAt: t0.Add(2 * time.Second), insertionID: 1, key: "a"})
	became2 := idx.insert(expiryTriple{expiresAt: t0.Add(1 * time.Second), insertionID: 2, key: "b"})
	became3 := idx.insert(expiryTriple{expiresAt: t0.Add(3 * time.Second), insertionID: 3, key: "c"})

	if !became1 || !became2 || became3 {
		t.Fatalf("expected earliest flags true,true,false; got %v,%v,%v", became1, became2, became3)
	}

	next, ok := idx.peekEarliest()
	if !ok || next.key != "b" {
		t.Fatalf("expected b to be earliest, got %+v", next)
	}
}

func TestExpiryIndex_PopExpired(t *testing.T) {
	var idx expiryIndex
	now := time.Now()
	idx.insert(expiryTriple{expiresAt: now.Add(-time.Second), insertionID: 1, key: "past1"})
	idx.insert(expiryTriple{expiresAt: now.Add(-time.Millisecond), insertionID: 2, key: "past2"})
	idx.insert(expiryTriple{expiresAt: now.Add(time.Hour), insertionID: 3, key: "future"})

	due := idx.popExpired(now)
	if len(due) != 2 {
		t.Fatalf("expected 2 due entries, got %d", len(due))
	}
	if due[0].key != "past1" || due[1].key != "past2" {
		t.Fatalf("expected ascending order past1,past2; got %+v", due)
	}

	next, ok := idx.peekEarliest()
	if !ok || next.key != "future" {
		t.Fatalf("expected future to remain, got %+v ok=%v", next, ok)
	}
}

func TestExpiryIndex_Remove(t *testing.T) {
	var idx expiryIndex
	triple := expiryTriple{expiresAt: time.Now().Add(time.Second), insertionID: 1, key: "a"}
	idx.insert(triple)
	idx.remove(triple)
	if _, ok := idx.peekEarliest(); ok {
		t.Fatal("expected index to be empty after remove")
	}
}

func TestRunExpiryLoop_ReapsAndStopsOnShutdown(t *testing.T) {
	s := New()
	s.Set("short", []byte("v"), 5*time.Millisecond)
	s.Set("long", []byte("v"), time.Hour)

	sig := shutdown.New()
	done := make(chan struct{})
	go func() {
		s.RunExpiryLoop(sig)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if _, ok := s.Get("short"); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("short key was never reaped")
		case <-time.After(time.Millisecond):
		}
	}

	if _, ok := s.Get("long"); !ok {
		t.Fatal("long-lived key should not have been reaped")
	}

	sig.Trigger()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expiry loop did not stop after shutdown signal")
	}
}
