// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler is a slog.Handler that dispatches every record to two
// handlers: the process-wide logger and a dedicated per-job file.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// A write failure on the job file must never suppress the global log.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewJobLogger returns a logger that writes to both the base (global)
// logger and a dedicated file for one background job run — a dump export
// or an archive upload — at:
//
//	{jobLogDir}/{kind}/{jobID}.log
//
// It returns the enriched logger, an io.Closer the caller must close when
// the job finishes, and the file's path (jobLogDir joined with the
// relative part above; absolute only if jobLogDir is). If jobLogDir is empty
// this is a no-op that returns baseLogger unchanged.
func NewJobLogger(baseLogger *slog.Logger, jobLogDir, kind, jobID string) (*slog.Logger, io.Closer, string, error) {
	if jobLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	dir := filepath.Join(jobLogDir, kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating job log directory %s: %w", dir, err)
	}

	logPath := filepath.Join(dir, jobID+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening job log file %s: %w", logPath, err)
	}

	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	combined := &fanOutHandler{primary: baseLogger.Handler(), secondary: fileHandler}

	return slog.New(combined), f, logPath, nil
}

// RemoveJobLog deletes a finished job's dedicated log file. No-op if
// jobLogDir is empty or the file does not exist.
func RemoveJobLog(jobLogDir, kind, jobID string) {
	if jobLogDir == "" {
		return
	}
	os.Remove(filepath.Join(jobLogDir, kind, jobID+".log"))
}
