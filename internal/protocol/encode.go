// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"fmt"
	"io"
	"strconv"
)

// Encode writes f to w in wire format. Arrays are written as a single
// sequence of writes so that, combined with the caller's own flush
// discipline, no concurrent observer ever sees a torn frame.
func Encode(w io.Writer, f Frame) error {
	switch f.Tag {
	case TagSimple:
		return writeLine(w, '+', []byte(f.Simple))

	case TagError:
		return writeLine(w, '-', []byte(f.Simple))

	case TagInt:
		return writeLine(w, ':', strconv.AppendInt(nil, f.Integer, 10))

	case TagBulk:
		if f.Null {
			return writeLine(w, '$', []byte("-1"))
		}
		if err := writeLine(w, '$', strconv.AppendInt(nil, int64(len(f.Bulk)), 10)); err != nil {
			return err
		}
		if _, err := w.Write(f.Bulk); err != nil {
			return fmt.Errorf("protocol: writing bulk payload: %w", err)
		}
		if _, err := w.Write(crlf); err != nil {
			return fmt.Errorf("protocol: writing bulk terminator: %w", err)
		}
		return nil

	case TagArray:
		if f.Null {
			return writeLine(w, '*', []byte("-1"))
		}
		if err := writeLine(w, '*', strconv.AppendInt(nil, int64(len(f.Array)), 10)); err != nil {
			return err
		}
		for i := range f.Array {
			if err := Encode(w, f.Array[i]); err != nil {
				return err
			}
		}
		return nil

	default:
		return ErrInvalidTag
	}
}

var crlf = []byte("\r\n")

func writeLine(w io.Writer, tag byte, payload []byte) error {
	if _, err := w.Write([]byte{tag}); err != nil {
		return fmt.Errorf("protocol: writing frame tag: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: writing frame payload: %w", err)
	}
	if _, err := w.Write(crlf); err != nil {
		return fmt.Errorf("protocol: writing frame terminator: %w", err)
	}
	return nil
}
