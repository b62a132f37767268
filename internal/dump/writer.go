// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package dump writes point-in-time, operator-triggered exports of the
// keyspace for migration/backup tooling. It is explicitly not crash
// recovery: nothing here is loaded automatically by the server.
package dump

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// atomicWriter writes a dump to a ".tmp" file in dir and only exposes it
// under its final name once writing finished without error, mirroring the
// teacher's write-then-rename backup writer so a reader never observes a
// half-written dump.
type atomicWriter struct {
	dir    string
	suffix string // e.g. ".dump.gz"
}

func newAtomicWriter(dir, suffix string) (*atomicWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating dump directory: %w", err)
	}
	return &atomicWriter{dir: dir, suffix: suffix}, nil
}

func (w *atomicWriter) tempFile() (*os.File, string, error) {
	f, err := os.CreateTemp(w.dir, "dump-*.tmp")
	if err != nil {
		return nil, "", fmt.Errorf("creating temp file: %w", err)
	}
	return f, f.Name(), nil
}

// commit renames tmpPath to a timestamped final name and returns it.
func (w *atomicWriter) commit(tmpPath string) (string, error) {
	timestamp := strings.ReplaceAll(time.Now().UTC().Format("2006-01-02T15-04-05.000"), ".", "-")
	finalPath := filepath.Join(w.dir, timestamp+w.suffix)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming temp dump to final: %w", err)
	}
	return finalPath, nil
}

func (w *atomicWriter) abort(tmpPath string) {
	os.Remove(tmpPath)
}
