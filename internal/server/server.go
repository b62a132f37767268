// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package server implements the TCP accept loop and per-connection command
// handler for the burrow key-value service.
package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nishisan-dev/burrow/internal/config"
	"github.com/nishisan-dev/burrow/internal/pki"
	"github.com/nishisan-dev/burrow/internal/shutdown"
	"github.com/nishisan-dev/burrow/internal/store"
)

// maxAcceptBackoff is the longest delay the accept loop waits after a run
// of consecutive Accept errors. The delay starts at one second and doubles
// after each failed retry; once the retry after a maxAcceptBackoff wait
// also fails, Serve gives up and returns the error.
const maxAcceptBackoff = 64 * time.Second

// Run builds the listener described by cfg (plaintext, or TLS when
// cfg.TLS.Enabled) and serves connections until sig is triggered.
func Run(cfg *config.ServerConfig, st *store.Store, logger *slog.Logger, sig shutdown.Signal) error {
	ln, err := newListener(cfg)
	if err != nil {
		return err
	}
	defer ln.Close()

	logger.Info("server listening", "address", cfg.Server.Listen, "tls", cfg.TLS.Enabled)
	return Serve(ln, cfg, st, logger, sig)
}

// newListener builds the raw net.Listener for cfg, wrapping it in TLS when
// configured.
func newListener(cfg *config.ServerConfig) (net.Listener, error) {
	if !cfg.TLS.Enabled {
		ln, err := net.Listen("tcp", cfg.Server.Listen)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", cfg.Server.Listen, err)
		}
		return ln, nil
	}

	tlsCfg, err := pki.NewServerTLSConfig(cfg.TLS.CACert, cfg.TLS.ServerCert, cfg.TLS.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("configuring TLS: %w", err)
	}
	ln, err := tls.Listen("tcp", cfg.Server.Listen, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", cfg.Server.Listen, err)
	}
	return ln, nil
}

// Serve runs the accept loop against an already-open listener, useful for
// tests that want to bind an ephemeral port themselves. It blocks until sig
// is triggered, at which point it stops accepting and waits for every
// in-flight handler to finish its current command (or subscribe session)
// before returning, so a client mid-write is never cut off. When Accept
// keeps failing past maxAcceptBackoff it returns that error at once,
// without waiting for handlers.
func Serve(ln net.Listener, cfg *config.ServerConfig, st *store.Store, logger *slog.Logger, sig shutdown.Signal) error {
	handler := NewHandler(cfg, st, logger, sig)

	go func() {
		<-sig.Done()
		ln.Close()
	}()

	// permits bounds the number of simultaneously handled connections to
	// cfg.Server.MaxConnections. An accepted connection waits here until a
	// permit is free before its handler goroutine starts, and the next
	// Accept happens only after that, so excess clients wait in the kernel
	// backlog rather than piling up as unbounded goroutines.
	permits := make(chan struct{}, cfg.Server.MaxConnections)
	for i := 0; i < cfg.Server.MaxConnections; i++ {
		permits <- struct{}{}
	}

	var handlers sync.WaitGroup

	consecutiveErrors := 0
	backoff := time.Second
	for {
		conn, err := ln.Accept()
		if err != nil {
			if sig.Triggered() {
				handlers.Wait()
				logger.Info("server shutdown complete")
				return nil
			}
			consecutiveErrors++
			logger.Error("accepting connection", "error", err, "consecutive_errors", consecutiveErrors)
			if backoff > maxAcceptBackoff {
				return fmt.Errorf("accepting connections: %w", err)
			}
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		consecutiveErrors = 0
		backoff = time.Second

		select {
		case <-permits:
			handlers.Add(1)
			go func() {
				defer handlers.Done()
				defer func() { permits <- struct{}{} }()
				handler.HandleConnection(conn)
			}()
		case <-sig.Done():
			conn.Close()
			handlers.Wait()
			return nil
		}
	}
}
