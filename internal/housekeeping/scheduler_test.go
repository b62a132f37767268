// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package housekeeping

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nishisan-dev/burrow/internal/shutdown"
	"github.com/nishisan-dev/burrow/internal/store"
)

func TestScheduler_SweepLogsKeyspaceStats(t *testing.T) {
	st := store.New()
	sig := shutdown.New()
	go st.RunExpiryLoop(sig)
	defer sig.Trigger()

	st.Set("a", []byte("1"), 0)
	st.Set("b", []byte("2"), time.Minute)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	sched, err := New("@every 50ms", st, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sched.Start()
	defer sched.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), "keyspace stats") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	out := buf.String()
	if !strings.Contains(out, "keyspace stats") {
		t.Fatalf("expected a keyspace stats log line, got: %s", out)
	}
	if !strings.Contains(out, `"keys":2`) {
		t.Fatalf("expected keys=2 in log output, got: %s", out)
	}
}

func TestScheduler_InvalidScheduleErrors(t *testing.T) {
	st := store.New()
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	if _, err := New("not a valid cron expression", st, logger); err == nil {
		t.Fatal("expected an error for a malformed schedule")
	}
}

func TestScheduler_RunStopsOnShutdownSignal(t *testing.T) {
	st := store.New()
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	sched, err := New("@every 1h", st, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sig := shutdown.New()
	done := make(chan struct{})
	go func() {
		sched.Run(sig)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	sig.Trigger()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after shutdown signal fired")
	}
}
