// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package shutdown provides a one-shot, multi-receiver "please stop"
// broadcast shared by the accept loop, every connection handler, and the
// background expiration and housekeeping tasks.
package shutdown

import "sync"

// Signal is a one-shot broadcast: Trigger may be called any number of
// times but only the first call has effect, and every receiver observes
// readiness exactly once, forever after. The zero value is not usable;
// construct with New.
type Signal struct {
	ch   chan struct{}
	once *sync.Once
}

// New creates a Signal ready to be triggered once and observed by many.
func New() Signal {
	return Signal{ch: make(chan struct{}), once: &sync.Once{}}
}

// Trigger fires the signal. Safe to call concurrently and more than once;
// only the first call has effect.
func (s Signal) Trigger() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns a channel that is closed once Trigger has been called.
// Receivers are cheap to obtain: Signal is a small value type that may be
// copied freely (the underlying channel and once are shared by reference).
func (s Signal) Done() <-chan struct{} {
	return s.ch
}

// Triggered reports whether Trigger has already fired, without blocking.
func (s Signal) Triggered() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
