// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package dump

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/burrow/internal/logging"
	"github.com/nishisan-dev/burrow/internal/protocol"
	"github.com/nishisan-dev/burrow/internal/store"
)

// Compression selects which codec wraps a dump file's contents.
type Compression string

const (
	CompressionGzip Compression = "gzip" // parallel gzip via klauspost/pgzip
	CompressionZstd Compression = "zstd" // via klauspost/compress/zstd
)

func (c Compression) suffix() string {
	if c == CompressionZstd {
		return ".dump.zst"
	}
	return ".dump.gz"
}

// Result reports what Export produced.
type Result struct {
	Path        string
	KeysWritten int
	Duration    time.Duration
}

// Export writes every live key in st to a new file under dir, compressed
// with compression, and returns the final path. Each key is one Array
// frame [key, value, expires_at_unix_nano] using the service's own wire
// codec, so a dump is just a sequence of frames a client never sees live
// traffic mixed with — no separate serialization format to maintain.
//
// jobLogDir, when non-empty, additionally routes this export's log lines
// to a dedicated per-job file via internal/logging.NewJobLogger, the same
// way the teacher gives each background job run its own log.
func Export(st *store.Store, dir string, compression Compression, jobLogDir string, baseLogger *slog.Logger) (Result, error) {
	jobID := strconv.FormatInt(time.Now().UnixNano(), 10)
	logger, closer, logPath, err := logging.NewJobLogger(baseLogger, jobLogDir, "dump", jobID)
	if err != nil {
		return Result{}, err
	}
	defer closer.Close()

	logger = logger.With("job_id", jobID, "compression", string(compression))
	if logPath != "" {
		logger = logger.With("job_log", logPath)
	}
	logger.Info("dump export starting")

	start := time.Now()
	w, err := newAtomicWriter(dir, compression.suffix())
	if err != nil {
		logger.Error("dump export failed", "error", err)
		return Result{}, err
	}

	f, tmpPath, err := w.tempFile()
	if err != nil {
		logger.Error("dump export failed", "error", err)
		return Result{}, err
	}

	n, writeErr := writeSnapshot(f, st, compression)
	closeErr := f.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		w.abort(tmpPath)
		logger.Error("dump export failed", "error", writeErr)
		return Result{}, writeErr
	}

	finalPath, err := w.commit(tmpPath)
	if err != nil {
		w.abort(tmpPath)
		logger.Error("dump export failed", "error", err)
		return Result{}, err
	}

	result := Result{Path: finalPath, KeysWritten: n, Duration: time.Since(start)}
	logger.Info("dump export completed",
		"path", result.Path, "keys", result.KeysWritten, "duration", result.Duration)
	return result, nil
}

// writeSnapshot streams st's current live keys through the requested
// compressor and returns how many keys were written.
func writeSnapshot(w io.Writer, st *store.Store, compression Compression) (int, error) {
	return WriteEntries(w, st.Snapshot(), compression)
}

// WriteEntries streams entries through the requested compressor as a
// sequence of frames, the same shape Export produces. Exported so
// cmd/burrow-cli can write a dump file from entries fetched over the wire
// via the DUMP command, without duplicating the framing or compression
// logic.
func WriteEntries(w io.Writer, entries []store.SnapshotEntry, compression Compression) (int, error) {
	var cw io.WriteCloser
	switch compression {
	case CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return 0, fmt.Errorf("creating zstd encoder: %w", err)
		}
		cw = enc
	default:
		gz, err := pgzip.NewWriterLevel(w, pgzip.DefaultCompression)
		if err != nil {
			return 0, fmt.Errorf("creating pgzip writer: %w", err)
		}
		cw = gz
	}

	bw := bufio.NewWriter(cw)
	for _, e := range entries {
		frame := entrySnapshotFrame(e)
		if err := protocol.Encode(bw, frame); err != nil {
			cw.Close()
			return 0, fmt.Errorf("encoding entry %q: %w", e.Key, err)
		}
	}
	if err := bw.Flush(); err != nil {
		cw.Close()
		return 0, fmt.Errorf("flushing dump buffer: %w", err)
	}
	if err := cw.Close(); err != nil {
		return 0, fmt.Errorf("closing compressor: %w", err)
	}
	return len(entries), nil
}

func entrySnapshotFrame(e store.SnapshotEntry) protocol.Frame {
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
