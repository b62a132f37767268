// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nishisan-dev/burrow/internal/config"
	"github.com/nishisan-dev/burrow/internal/housekeeping"
	"github.com/nishisan-dev/burrow/internal/logging"
	"github.com/nishisan-dev/burrow/internal/server"
	"github.com/nishisan-dev/burrow/internal/shutdown"
	"github.com/nishisan-dev/burrow/internal/store"
)

func main() {
	configPath := flag.String("config", "/etc/burrow/server.yaml", "path to server config file")
	port := flag.Int("port", 0, "override the listen port from server.listen in the config file (0 means leave it as configured)")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *port != 0 {
		host, _, err := net.SplitHostPort(cfg.Server.Listen)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing configured listen address %q: %v\n", cfg.Server.Listen, err)
			os.Exit(1)
		}
		cfg.Server.Listen = net.JoinHostPort(host, strconv.Itoa(*port))
	}

	level := cfg.Logging.Level
	if env := os.Getenv("BURROW_LOG_LEVEL"); env != "" {
		level = env
	}
	logger, closer := logging.NewLogger(level, cfg.Logging.Format, "")
	defer closer.Close()

	sig := shutdown.New()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-sigCh
		logger.Info("received signal, shutting down", "signal", s)
		sig.Trigger()
	}()

	st := store.New()
	go st.RunExpiryLoop(sig)

	sched, err := housekeeping.New(cfg.Housekeeping.Schedule, st, logger)
	if err != nil {
		logger.Error("invalid housekeeping schedule", "error", err)
		os.Exit(1)
	}
	if interval, ok := cfg.Housekeeping.HousekeepingInterval(); ok {
		logger.Info("housekeeping scheduled", "interval", interval)
	} else {
		logger.Info("housekeeping scheduled", "cron", cfg.Housekeeping.Schedule)
	}
	go sched.Run(sig)

	if err := server.Run(cfg, st, logger, sig); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
