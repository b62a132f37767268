// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package client is a minimal synchronous client for the burrow wire
// protocol, shared by cmd/burrow-cli and by integration tests that want
// to drive a real connection rather than calling internal/store directly.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/nishisan-dev/burrow/internal/conn"
	"github.com/nishisan-dev/burrow/internal/protocol"
	"github.com/nishisan-dev/burrow/internal/store"
)

// Client is one connection to a burrow server. It is not safe for
// concurrent use by multiple goroutines. Once Subscribe has been called,
// the returned Subscription owns the connection exclusively.
type Client struct {
	c *conn.Conn
}

// Dial connects to addr (host:port). If tlsCfg is non-nil the connection
// is upgraded to TLS before any frames are exchanged.
func Dial(ctx context.Context, addr string, tlsCfg *tls.Config) (*Client, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	if tlsCfg != nil {
		raw = tls.Client(raw, tlsCfg)
	}
	return &Client{c: conn.New(ctx, raw, 0)}, nil
}

// Close closes the underlying connection.
func (cl *Client) Close() error { return cl.c.Close() }

// call sends one command built from bulk-string arguments and returns the
// server's reply frame.
func (cl *Client) call(args ...[]byte) (protocol.Frame, error) {
	elems := make([]protocol.Frame, len(args))
	for i, a := range args {
		elems[i] = protocol.BulkFrame(a)
	}
	if err := cl.c.WriteFrame(protocol.ArrayFrame(elems...)); err != nil {
		return protocol.Frame{}, err
	}
	return cl.c.ReadFrame()
}

func asError(f protocol.Frame) error {
	if f.Tag == protocol.TagError {
		return fmt.Errorf("%s", f.Simple)
	}
	return nil
}

// Ping sends PING, optionally echoing msg, and returns the reply payload.
func (cl *Client) Ping(msg []byte) ([]byte, error) {
	args := [][]byte{[]byte("PING")}
	if msg != nil {
		args = append(args, msg)
	}
	f, err := cl.call(args...)
	if err != nil {
		return nil, err
	}
	if err := asError(f); err != nil {
		return nil, err
	}
	if f.Tag == protocol.TagSimple {
		return []byte(f.Simple), nil
	}
	return f.Bulk, nil
}

// Get retrieves key. exists is false if the key is absent or expired.
func (cl *Client) Get(key string) (value []byte, exists bool, err error) {
	f, err := cl.call([]byte("GET"), []byte(key))
	if err != nil {
		return nil, false, err
	}
	if err := asError(f); err != nil {
		return nil, false, err
	}
	if f.IsNull() {
		return nil, false, nil
	}
	return f.Bulk, true, nil
}

// Set stores value under key. A zero ttl means no expiration.
func (cl *Client) Set(key string, value []byte, ttl time.Duration) error {
	args := [][]byte{[]byte("SET"), []byte(key), value}
	if ttl > 0 {
		args = append(args, []byte("PX"), []byte(fmt.Sprintf("%d", ttl.Milliseconds())))
	}
	f, err := cl.call(args...)
	if err != nil {
		return err
	}
	return asError(f)
}

// Publish sends message to channel and returns the number of subscribers
// that received it.
func (cl *Client) Publish(channel string, message []byte) (int64, error) {
	f, err := cl.call([]byte("PUBLISH"), []byte(channel), message)
	if err != nil {
		return 0, err
	}
	if err := asError(f); err != nil {
		return 0, err
	}
	return f.Integer, nil
}

// DBSize returns the number of live keys.
func (cl *Client) DBSize() (int64, error) {
	f, err := cl.call([]byte("DBSIZE"))
	if err != nil {
		return 0, err
	}
	if err := asError(f); err != nil {
		return 0, err
	}
	return f.Integer, nil
}

// Expire sets key's remaining time-to-live. existed reports whether key
// was present beforehand.
func (cl *Client) Expire(key string, seconds int64) (existed bool, err error) {
	f, err := cl.call([]byte("EXPIRE"), []byte(key), []byte(fmt.Sprintf("%d", seconds)))
	if err != nil {
		return false, err
	}
	if err := asError(f); err != nil {
		return false, err
	}
	return f.Integer == 1, nil
}

// TTL reports key's remaining time-to-live. exists is false if the key is
// absent; hasExpiry is false if it exists but never expires.
func (cl *Client) TTL(key string) (ttl time.Duration, hasExpiry, exists bool, err error) {
	f, err := cl.call([]byte("TTL"), []byte(key))
	if err != nil {
		return 0, false, false, err
	}
	if err := asError(f); err != nil {
		return 0, false, false, err
	}
	switch f.Integer {
	case -2:
		return 0, false, false, nil
	case -1:
		return 0, false, true, nil
	default:
		return time.Duration(f.Integer) * time.Second, true, true, nil
	}
}

// Persist removes key's expiration, if any.
func (cl *Client) Persist(key string) (removed bool, err error) {
	f, err := cl.call([]byte("PERSIST"), []byte(key))
	if err != nil {
		return false, err
	}
	if err := asError(f); err != nil {
		return false, err
	}
	return f.Integer == 1, nil
}

// Dump retrieves every live key from the server, for building a local dump
// file from a (possibly remote) server's keyspace. There is no partial or
// streaming variant: the whole keyspace is read into memory, the same
// tradeoff internal/dump.Export makes for a local store.
func (cl *Client) Dump() ([]store.SnapshotEntry, error) {
	args := [][]byte{[]byte("DUMP")}
	elems := make([]protocol.Frame, len(args))
	for i, a := range args {
		elems[i] = protocol.BulkFrame(a)
	}
	if err := cl.c.WriteFrame(protocol.ArrayFrame(elems...)); err != nil {
		return nil, err
	}

	countFrame, err := cl.c.ReadFrame()
	if err != nil {
		return nil, err
	}
	if err := asError(countFrame); err != nil {
		return nil, err
	}
	count := countFrame.Integer

	entries := make([]store.SnapshotEntry, 0, count)
	for i := int64(0); i < count; i++ {
		f, err := cl.c.ReadFrame()
		if err != nil {
			return nil, err
		}
		if f.Tag != protocol.TagArray || len(f.Array) != 3 {
			return nil, fmt.Errorf("client: unexpected dump entry frame %v", f)
		}
		entry := store.SnapshotEntry{
			Key:   string(f.Array[0].Bulk),
			Value: f.Array[1].Bulk,
		}
		if ns := f.Array[2].Integer; ns != 0 {
			entry.ExpiresAt = time.Unix(0, ns)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Info returns the server's INFO report as plain text.
func (cl *Client) Info(section string) (string, error) {
	args := [][]byte{[]byte("INFO")}
	if section != "" {
		args = append(args, []byte(section))
	}
	f, err := cl.call(args...)
	if err != nil {
		return "", err
	}
	if err := asError(f); err != nil {
		return "", err
	}
	return string(f.Bulk), nil
}
