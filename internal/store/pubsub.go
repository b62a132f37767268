// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

// subscriberBacklog bounds how many undelivered events a single
// subscription holds before the broker starts dropping the oldest ones in
// favor of a lag marker.
const subscriberBacklog = 32

// EventKind distinguishes a delivered message from a lag notice.
type EventKind int

const (
	// EventMessage carries a published payload.
	EventMessage EventKind = iota
	// EventLagged reports that this subscription fell behind and one or
	// more messages were dropped to make room for newer ones.
	EventLagged
)

// Event is what a Subscription receives: either a message on its channel
// or a lag notice standing in for messages that were dropped.
type Event struct {
	Kind    EventKind
	Channel string
	Payload []byte
}

// channelState is the broker's bookkeeping for one channel name: the set
// of connections currently subscribed to it.
type channelState struct {
	subs map[*Subscription]struct{}
}

// Subscription is a single connection's membership in one channel. Reads
// come from C(); Close removes the subscription from the broker.
type Subscription struct {
	store   *Store
	channel string
	ch      chan Event
}

// C returns the channel events for this subscription arrive on.
func (sub *Subscription) C() <-chan Event { return sub.ch }

// Channel reports which channel this subscription is for.
func (sub *Subscription) Channel() string { return sub.channel }

// Close removes the subscription from its channel. Safe to call more than
// once.
func (sub *Subscription) Close() {
	sub.store.unsubscribe(sub)
}

// Subscribe registers a new subscription on channel and returns it. The
// caller is responsible for calling Close when done (normally via
// Unsubscribe handling or connection teardown).
func (s *Store) Subscribe(channel string) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.channels[channel]
	if !ok {
		cs = &channelState{subs: make(map[*Subscription]struct{})}
		s.channels[channel] = cs
	}

	sub := &Subscription{store: s, channel: channel, ch: make(chan Event, subscriberBacklog)}
	cs.subs[sub] = struct{}{}
	return sub
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.channels[sub.channel]
	if !ok {
		return
	}
	if _, present := cs.subs[sub]; !present {
		return
	}
	delete(cs.subs, sub)
	if len(cs.subs) == 0 {
		delete(s.channels, sub.channel)
	}
}

// Publish delivers message to every current subscriber of channel and
// returns how many subscribers the channel had at that moment, counting
// any that were handed a lag marker instead. Sends happen under the
// store's lock and never block: a subscriber whose backlog is full has
// its oldest pending event dropped to make room, and is handed an
// EventLagged marker instead of the new message so it can notice it fell
// behind without the connection being torn down.
func (s *Store) Publish(channel string, message []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.channels[channel]
	if !ok {
		return 0
	}

	for sub := range cs.subs {
		deliver(sub.ch, Event{Kind: EventMessage, Channel: channel, Payload: message})
	}
	return len(cs.subs)
}

// deliver attempts a non-blocking send of ev. If the channel is full, it
// drops the oldest queued event, enqueues a lag marker in its place, and
// retries ev once more — best effort, never blocking the publisher.
func deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}
	select {
	case ch <- Event{Kind: EventLagged, Channel: ev.Channel}:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
