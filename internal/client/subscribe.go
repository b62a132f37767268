// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package client

import (
	"fmt"

	"github.com/nishisan-dev/burrow/internal/protocol"
)

// Message is one event delivered to a subscribed connection: a published
// payload, or a notice that this subscription fell behind and some
// messages were dropped (Lagged, Payload nil).
type Message struct {
	Channel string
	Payload []byte
	Lagged  bool
}

// Subscription is a connection that has entered subscribe mode. Per the
// server's sticky subscribe-mode design, once a Client subscribes it can
// never go back to issuing ordinary commands on the same connection; open
// a second Client for that.
type Subscription struct {
	cl       *Client
	channels map[string]struct{}
}

// Subscribe issues SUBSCRIBE for the given channels and consumes their
// acknowledgement frames before returning.
func (cl *Client) Subscribe(channels ...string) (*Subscription, error) {
	args := [][]byte{[]byte("SUBSCRIBE")}
	for _, ch := range channels {
		args = append(args, []byte(ch))
	}
	if err := cl.c.WriteFrame(protocol.ArrayFrame(bulkFrames(args)...)); err != nil {
		return nil, err
	}
	for range channels {
		f, err := cl.c.ReadFrame()
		if err != nil {
			return nil, err
		}
		if err := asError(f); err != nil {
			return nil, err
		}
	}

	s := &Subscription{cl: cl, channels: make(map[string]struct{}, len(channels))}
	for _, ch := range channels {
		s.channels[ch] = struct{}{}
	}
	return s, nil
}

// Next blocks for the next message or lag notice on this subscription.
func (s *Subscription) Next() (Message, error) {
	f, err := s.cl.c.ReadFrame()
	if err != nil {
		return Message{}, err
	}
	if f.Tag != protocol.TagArray || len(f.Array) != 3 {
		return Message{}, fmt.Errorf("client: unexpected subscribe frame %v", f)
	}
	kind := string(f.Array[0].Bulk)
	channel := string(f.Array[1].Bulk)
	switch kind {
	case "message":
		return Message{Channel: channel, Payload: f.Array[2].Bulk}, nil
	case "lagged":
		return Message{Channel: channel, Lagged: true}, nil
	default:
		return Message{}, fmt.Errorf("client: unexpected subscribe event %q", kind)
	}
}

// Unsubscribe removes channels from this subscription, or every channel
// currently subscribed if none are given, and consumes their
// acknowledgement frames. The server sends one ack per channel named in
// the request, so this always resolves "no channels given" against what
// Subscribe was told and names those channels explicitly, rather than
// guessing a fixed count.
func (s *Subscription) Unsubscribe(channels ...string) error {
	if len(channels) == 0 {
		channels = make([]string, 0, len(s.channels))
		for ch := range s.channels {
			channels = append(channels, ch)
		}
	}

	args := [][]byte{[]byte("UNSUBSCRIBE")}
	for _, ch := range channels {
		args = append(args, []byte(ch))
	}
	if err := s.cl.c.WriteFrame(protocol.ArrayFrame(bulkFrames(args)...)); err != nil {
		return err
	}
	for range channels {
		f, err := s.cl.c.ReadFrame()
		if err != nil {
			return err
		}
		if err := asError(f); err != nil {
			return err
		}
	}
	for _, ch := range channels {
		delete(s.channels, ch)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Subscription) Close() error { return s.cl.Close() }

func bulkFrames(args [][]byte) []protocol.Frame {
	elems := make([]protocol.Frame, len(args))
	for i, a := range args {
		elems[i] = protocol.BulkFrame(a)
	}
	return elems
}
