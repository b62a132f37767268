// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	gopsmem "github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/nishisan-dev/burrow/internal/command"
	"github.com/nishisan-dev/burrow/internal/config"
	"github.com/nishisan-dev/burrow/internal/conn"
	"github.com/nishisan-dev/burrow/internal/protocol"
	"github.com/nishisan-dev/burrow/internal/shutdown"
	"github.com/nishisan-dev/burrow/internal/store"
)

// serverVersion is reported by the INFO reply.
const serverVersion = "burrow-1.0"

// Handler applies parsed commands to a shared Store on behalf of every
// connection the accept loop hands it.
type Handler struct {
	cfg    *config.ServerConfig
	store  *store.Store
	logger *slog.Logger
	sig    shutdown.Signal

	startedAt time.Time
}

// NewHandler builds a Handler backed by st. sig is observed by every
// connection so in-flight reads and subscribe sessions unblock promptly
// when the server is told to stop.
func NewHandler(cfg *config.ServerConfig, st *store.Store, logger *slog.Logger, sig shutdown.Signal) *Handler {
	return &Handler{cfg: cfg, store: st, logger: logger, sig: sig, startedAt: time.Now()}
}

// HandleConnection serves one client connection until it disconnects, a
// protocol error occurs, or the server shuts down. It never returns an
// error: all failures are logged and simply end the connection.
func (h *Handler) HandleConnection(raw net.Conn) {
	defer raw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-h.sig.Done():
			cancel()
			// Unblock a pending read; a write already in progress finishes.
			raw.SetReadDeadline(time.Now())
		case <-ctx.Done():
		}
	}()

	c := conn.New(ctx, raw, h.cfg.Server.ThrottleBpsRaw)
	defer c.Close()

	logger := h.logger.With("remote", raw.RemoteAddr().String())
	logger.Info("connection opened")
	defer logger.Info("connection closed")

	for {
		frame, err := c.ReadFrame()
		if err != nil {
			logger.Debug("connection read ended", "error", err)
			return
		}

		cmd, err := command.Parse(frame)
		if err != nil {
			if werr := c.WriteFrame(protocol.Errorf("ERR %s", err.Error())); werr != nil {
				return
			}
			continue
		}

		if cmd.Kind == command.KindSubscribe {
			h.runSubscribeSession(c, cmd, logger)
			return // subscribe mode is sticky: the connection never returns here
		}

		if cmd.Kind == command.KindDump {
			if err := h.handleDump(c); err != nil {
				logger.Debug("dump stream ended", "error", err)
				return
			}
			continue
		}

		if err := c.WriteFrame(h.apply(cmd)); err != nil {
			return
		}
	}
}

// apply executes a single non-subscribe command against the store and
// builds its reply frame.
func (h *Handler) apply(cmd command.Command) protocol.Frame {
	switch cmd.Kind {
	case command.KindPing:
		if cmd.Message != nil {
			return protocol.BulkFrame(cmd.Message)
		}
		return protocol.SimpleFrame("PONG")

	case command.KindGet:
		v, ok := h.store.Get(cmd.Key)
		if !ok {
			return protocol.NullFrame()
		}
		return protocol.BulkFrame(v)

	case command.KindSet:
		h.store.Set(cmd.Key, cmd.Value, cmd.Expiry)
		return protocol.SimpleFrame("OK")

	case command.KindPublish:
		n := h.store.Publish(cmd.Channel, cmd.Message)
		return protocol.IntegerFrame(int64(n))

	case command.KindUnsubscribe:
		// Reached only outside a subscribe session, where this connection
		// was never subscribed to anything; mirrors how an UNSUBSCRIBE
		// with no active subscriptions is a no-op rather than an error.
		return protocol.ArrayFrame(protocol.BulkString("unsubscribe"), protocol.NullFrame(), protocol.IntegerFrame(0))

	case command.KindDBSize:
		return protocol.IntegerFrame(int64(h.store.DBSize()))

	case command.KindExpire:
		if h.store.Expire(cmd.Key, cmd.Seconds) {
			return protocol.IntegerFrame(1)
		}
		return protocol.IntegerFrame(0)

	case command.KindTTL:
		return h.ttlReply(cmd.Key)

	case command.KindPersist:
		if h.store.Persist(cmd.Key) {
			return protocol.IntegerFrame(1)
		}
		return protocol.IntegerFrame(0)

	case command.KindInfo:
		return protocol.BulkString(h.infoText(cmd.Section))

	case command.KindCommand:
		names := []string{"PING", "GET", "SET", "PUBLISH", "SUBSCRIBE", "UNSUBSCRIBE",
			"DBSIZE", "EXPIRE", "TTL", "PERSIST", "INFO", "COMMAND", "DUMP"}
		elems := make([]protocol.Frame, len(names))
		for i, name := range names {
			elems[i] = protocol.BulkString(name)
		}
		return protocol.ArrayFrame(elems...)

	case command.KindUnknown:
		return protocol.Errorf("ERR unknown command '%s'", cmd.Name)

	default:
		return protocol.Errorf("ERR unsupported command")
	}
}

// ttlReply mirrors the sentinel convention TTL-style commands use on a
// single signed integer: -2 means the key does not exist, -1 means it
// exists but never expires, any other value is the remaining seconds.
func (h *Handler) ttlReply(key string) protocol.Frame {
	ttl, hasExpiry, exists := h.store.TTL(key)
	if !exists {
		return protocol.IntegerFrame(-2)
	}
	if !hasExpiry {
		return protocol.IntegerFrame(-1)
	}
	seconds := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		seconds++ // round up so a live key never reports 0 remaining
	}
	return protocol.IntegerFrame(seconds)
}

// infoText renders server and host facts as newline-separated
// "key:value" lines, the same shape Redis's INFO command uses. section is
// currently ignored: this service has only one section's worth of facts.
// Host figures are read-only snapshots from gopsutil, mirroring the
// teacher's system monitor but sampled on demand rather than cached on a
// ticker, since INFO is itself the polling interface here.
func (h *Handler) infoText(section string) string {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	lines := fmt.Sprintf(
		"version:%s\r\nuptime_seconds:%d\r\nconnected_keys:%d\r\nused_memory:%d\r\n",
		serverVersion,
		int64(time.Since(h.startedAt).Seconds()),
		h.store.DBSize(),
		mem.Alloc,
	)

	if avg, err := load.Avg(); err == nil {
		lines += fmt.Sprintf("load_average_1m:%.2f\r\n", avg.Load1)
	}
	if vm, err := gopsmem.VirtualMemory(); err == nil {
		lines += fmt.Sprintf("host_free_memory:%d\r\n", vm.Free)
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if fds, err := proc.NumFDs(); err == nil {
			lines += fmt.Sprintf("open_fds:%d\r\n", fds)
		}
	}

	return lines
}

// handleDump streams every live key as a leading count Integer frame
// followed by one [key, value, expires_at_unix_nano] Array frame per key,
// the same shape internal/dump writes to a local file. This is the only
// way a client can retrieve the full keyspace over the wire, since there
// is no KEYS/SCAN enumeration command: cmd/burrow-cli's "dump export" uses
// it to build a dump file from a possibly-remote server.
func (h *Handler) handleDump(c *conn.Conn) error {
	entries := h.store.Snapshot()
	if err := c.WriteFrame(protocol.IntegerFrame(int64(len(entries)))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := c.WriteFrame(dumpEntryFrame(e)); err != nil {
			return err
		}
	}
	return nil
}

func dumpEntryFrame(e store.SnapshotEntry) protocol.Frame {
	var expiresAt int64
	if !e.ExpiresAt.IsZero() {
		expiresAt = e.ExpiresAt.UnixNano()
	}
	return protocol.ArrayFrame(
		protocol.BulkString(e.Key),
		protocol.BulkFrame(e.Value),
		protocol.IntegerFrame(expiresAt),
	)
}

// subscribeEvent pairs a delivered store.Event with the subscription it
// arrived on, so the fan-in loop can report which channel it came from
// even after the caller has subscribed to several.
type subscribeEvent struct {
	channel string
	event   store.Event
}

// activeSub tracks one channel this connection is currently subscribed
// to: the broker handle plus the stop signal that tells its dedicated
// fan-in goroutine to exit, so unsubscribing from one channel mid-session
// doesn't leave that goroutine running until the whole session ends.
type activeSub struct {
	sub  *store.Subscription
	stop chan struct{}
}

// controlFrame is what the background reader goroutine forwards to the
// subscribe session's select loop: either a parsed command, a parse
// error, or (via readErr) the reason the connection ended.
type controlFrame struct {
	cmd     command.Command
	cmdErr  error
	readErr error
}

// runSubscribeSession takes over a connection once it has issued a
// SUBSCRIBE command. It stays in this mode for the rest of the
// connection's life: once a client asks to receive published messages,
// returning it to ordinary request/reply would race a reader goroutine
// against the mode switch and risk losing whichever frame arrived first,
// so the server never switches back even after every channel is
// unsubscribed.
func (h *Handler) runSubscribeSession(c *conn.Conn, first command.Command, logger *slog.Logger) {
	subs := make(map[string]*activeSub)
	merged := make(chan subscribeEvent, 64)
	var fanIn sync.WaitGroup

	defer func() {
		for _, as := range subs {
			as.sub.Close()
			close(as.stop)
		}
		fanIn.Wait()
	}()

	addChannel := func(channel string) protocol.Frame {
		if _, exists := subs[channel]; !exists {
			sub := h.store.Subscribe(channel)
			as := &activeSub{sub: sub, stop: make(chan struct{})}
			subs[channel] = as
			fanIn.Add(1)
			go func() {
				defer fanIn.Done()
				for {
					select {
					case ev := <-sub.C():
						select {
						case merged <- subscribeEvent{channel: channel, event: ev}:
						case <-as.stop:
							return
						}
					case <-as.stop:
						return
					}
				}
			}()
		}
		return protocol.ArrayFrame(
			protocol.BulkString("subscribe"),
			protocol.BulkString(channel),
			protocol.IntegerFrame(int64(len(subs))),
		)
	}

	removeChannel := func(channel string) protocol.Frame {
		if as, exists := subs[channel]; exists {
			as.sub.Close()
			close(as.stop)
			delete(subs, channel)
		}
		return protocol.ArrayFrame(
			protocol.BulkString("unsubscribe"),
			protocol.BulkString(channel),
			protocol.IntegerFrame(int64(len(subs))),
		)
	}

	for _, channel := range first.Channels {
		if err := c.WriteFrame(addChannel(channel)); err != nil {
			return
		}
	}

	readerDone := make(chan struct{})
	defer close(readerDone)

	control := make(chan controlFrame)
	go func() {
		for {
			frame, err := c.ReadFrame()
			if err != nil {
				select {
				case control <- controlFrame{readErr: err}:
				case <-readerDone:
				}
				return
			}
			cmd, perr := command.Parse(frame)
			select {
			case control <- controlFrame{cmd: cmd, cmdErr: perr}:
			case <-readerDone:
				return
			}
		}
	}()

	for {
		select {
		case ev := <-merged:
			if err := c.WriteFrame(subscribeEventFrame(ev)); err != nil {
				return
			}

		case cf := <-control:
			if cf.readErr != nil {
				logger.Debug("subscribe session read ended", "error", cf.readErr)
				return
			}
			if cf.cmdErr != nil {
				if err := c.WriteFrame(protocol.Errorf("ERR %s", cf.cmdErr.Error())); err != nil {
					return
				}
				continue
			}
			if err := h.applyInSubscribeSession(c, cf.cmd, addChannel, removeChannel, subs); err != nil {
				return
			}

		case <-h.sig.Done():
			return
		}
	}
}

// applyInSubscribeSession handles the narrow set of commands allowed once
// a connection has entered subscribe mode: more (un)subscriptions and a
// bare PING for liveness checks. Anything else is rejected without
// dropping the connection.
func (h *Handler) applyInSubscribeSession(
	c *conn.Conn,
	cmd command.Command,
	addChannel, removeChannel func(string) protocol.Frame,
	subs map[string]*activeSub,
) error {
	switch cmd.Kind {
	case command.KindSubscribe:
		for _, channel := range cmd.Channels {
			if err := c.WriteFrame(addChannel(channel)); err != nil {
				return err
			}
		}
		return nil

	case command.KindUnsubscribe:
		channels := cmd.Channels
		if len(channels) == 0 {
			channels = make([]string, 0, len(subs))
			for channel := range subs {
				channels = append(channels, channel)
			}
		}
		for _, channel := range channels {
			if err := c.WriteFrame(removeChannel(channel)); err != nil {
				return err
			}
		}
		return nil

	case command.KindPing:
		if cmd.Message != nil {
			return c.WriteFrame(protocol.BulkFrame(cmd.Message))
		}
		return c.WriteFrame(protocol.SimpleFrame("PONG"))

	default:
		return c.WriteFrame(protocol.Errorf("ERR only (UN)SUBSCRIBE and PING are allowed in this context"))
	}
}

// subscribeEventFrame renders a delivered event as the three-element
// array a pub/sub client expects: a message carries its payload, a lag
// notice carries a Null payload in its place.
func subscribeEventFrame(ev subscribeEvent) protocol.Frame {
	switch ev.event.Kind {
	case store.EventLagged:
		return protocol.ArrayFrame(
			protocol.BulkString("lagged"),
			protocol.BulkString(ev.channel),
			protocol.NullFrame(),
		)
	default:
		return protocol.ArrayFrame(
			protocol.BulkString("message"),
			protocol.BulkString(ev.channel),
			protocol.BulkFrame(ev.event.Payload),
		)
	}
}
