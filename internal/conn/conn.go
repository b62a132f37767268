// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package conn wraps a raw net.Conn with frame-at-a-time reading and
// writing on top of the protocol package's check-then-parse decoder, plus
// an optional per-connection write rate limit.
package conn

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	"golang.org/x/time/rate"

	"github.com/nishisan-dev/burrow/internal/protocol"
)

// initialReadBufSize is the starting capacity of a connection's read
// buffer; it grows as needed to hold one in-flight frame.
const initialReadBufSize = 4096

// maxThrottleBurst caps how many bytes a single throttled write may burst,
// mirroring the cap the teacher's agent pipeline applies to its own
// 256KB write buffer.
const maxThrottleBurst = 256 * 1024

// ErrClosed is returned by ReadFrame when the peer closed the connection
// cleanly with no partial frame pending.
var ErrClosed = errors.New("conn: connection closed")

// Conn is a single client connection: a growable read buffer feeding the
// protocol decoder, and a buffered, optionally rate-limited writer.
type Conn struct {
	raw net.Conn
	r   *bufio.Reader
	w   io.Writer
	bw  *bufio.Writer

	buf    []byte // bytes read but not yet consumed as a complete frame
	closed bool
}

// New wraps raw for frame-based I/O. bytesPerSec throttles writes to that
// many bytes per second; zero or negative disables throttling.
func New(ctx context.Context, raw net.Conn, bytesPerSec int64) *Conn {
	var w io.Writer = raw
	if bytesPerSec > 0 {
		burst := int(bytesPerSec)
		if burst > maxThrottleBurst {
			burst = maxThrottleBurst
		}
		w = &throttledWriter{w: raw, limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst), ctx: ctx}
	}

	c := &Conn{
		raw: raw,
		r:   bufio.NewReaderSize(raw, initialReadBufSize),
		w:   w,
	}
	c.bw = bufio.NewWriter(w)
	return c
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.closed = true
	return c.raw.Close()
}

// ReadFrame reads exactly one complete frame, growing the internal buffer
// as needed. It may read more bytes than the frame holds, but it never
// consumes past the end of the frame, so bytes belonging to the next
// command are preserved for the next call.
func (c *Conn) ReadFrame() (protocol.Frame, error) {
	for {
		status, err := protocol.Check(c.buf)
		switch status {
		case protocol.Complete:
			f, n, perr := protocol.Parse(c.buf)
			if perr != nil {
				return protocol.Frame{}, perr
			}
			c.buf = append([]byte(nil), c.buf[n:]...)
			return f, nil
		case protocol.Invalid:
			return protocol.Frame{}, err
		case protocol.Incomplete:
			if readErr := c.fill(); readErr != nil {
				return protocol.Frame{}, readErr
			}
		}
	}
}

// fill reads at least one more byte into c.buf, growing its capacity if
// the buffer is already full of unconsumed bytes.
func (c *Conn) fill() error {
	if len(c.buf) == cap(c.buf) {
		grown := make([]byte, len(c.buf), cap(c.buf)*2+initialReadBufSize)
		copy(grown, c.buf)
		c.buf = grown
	}

	n, err := c.r.Read(c.buf[len(c.buf):cap(c.buf)])
	if n > 0 {
		c.buf = c.buf[:len(c.buf)+n]
	}
	if err != nil {
		if errors.Is(err, io.EOF) && len(c.buf) == 0 {
			return ErrClosed
		}
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

// WriteFrame encodes and writes f, then flushes. Writes from the same
// connection never interleave because the server only ever has one
// goroutine writing to a given Conn at a time.
func (c *Conn) WriteFrame(f protocol.Frame) error {
	if err := protocol.Encode(c.bw, f); err != nil {
		return err
	}
	return c.bw.Flush()
}
