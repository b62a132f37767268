// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		f    Frame
	}{
		{"simple", SimpleFrame("OK")},
		{"error", ErrorFrame("ERR bad thing")},
		{"integer", IntegerFrame(42)},
		{"integer zero", IntegerFrame(0)},
		{"bulk", BulkString("hello")},
		{"empty bulk", BulkFrame([]byte{})},
		{"null bulk", NullFrame()},
		{"null array", NullArrayFrame()},
		{"array", ArrayFrame(BulkString("a"), BulkString("b"), IntegerFrame(1))},
		{"nested array", ArrayFrame(ArrayFrame(BulkString("x")), NullFrame())},
		{"empty array", ArrayFrame()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tt.f); err != nil {
				t.Fatalf("Encode: %v", err)
			}

			status, err := Check(buf.Bytes())
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if status != Complete {
				t.Fatalf("expected Complete, got %v", status)
			}

			got, n, err := Parse(buf.Bytes())
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if n != buf.Len() {
				t.Errorf("expected to consume %d bytes, consumed %d", buf.Len(), n)
			}
			if !got.Equal(tt.f) {
				t.Errorf("got %v, want %v", got, tt.f)
			}
		})
	}
}

func TestCheck_Incomplete(t *testing.T) {
	full := []byte("$5\r\nhello\r\n")
	for i := 0; i < len(full); i++ {
		status, err := Check(full[:i])
		if err != nil {
			t.Fatalf("Check(%d bytes): unexpected error %v", i, err)
		}
		if status != Incomplete {
			t.Fatalf("Check(%d bytes): expected Incomplete, got %v", i, status)
		}
	}
	status, err := Check(full)
	if err != nil || status != Complete {
		t.Fatalf("Check(full): got status=%v err=%v", status, err)
	}
}

func TestCheck_BytePerByte(t *testing.T) {
	var buf bytes.Buffer
	frame := ArrayFrame(BulkString("SET"), BulkString("k"), BulkString("v"))
	if err := Encode(&buf, frame); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	full := buf.Bytes()

	var acc []byte
	for i, b := range full {
		acc = append(acc, b)
		status, err := Check(acc)
		if err != nil {
			t.Fatalf("Check at byte %d: unexpected error %v", i, err)
		}
		if i == len(full)-1 {
			if status != Complete {
				t.Fatalf("Check at final byte: expected Complete, got %v", status)
			}
		} else if status == Complete {
			t.Fatalf("Check at byte %d: unexpectedly Complete", i)
		}
	}

	got, n, err := Parse(acc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n != len(acc) {
		t.Errorf("expected to consume all %d bytes, consumed %d", len(acc), n)
	}
	if !got.Equal(frame) {
		t.Errorf("got %v, want %v", got, frame)
	}
}

func TestCheck_InvalidTag(t *testing.T) {
	status, err := Check([]byte("!notaframe\r\n"))
	if status != Invalid {
		t.Errorf("expected Invalid, got %v", status)
	}
	if err != ErrInvalidTag {
		t.Errorf("expected ErrInvalidTag, got %v", err)
	}
}

func TestCheck_NegativeLengthOtherThanNull(t *testing.T) {
	status, err := Check([]byte("$-2\r\n"))
	if status != Invalid {
		t.Errorf("expected Invalid, got %v", status)
	}
	if err != ErrMalformedLength {
		t.Errorf("expected ErrMalformedLength, got %v", err)
	}
}

func TestCheck_BadTerminator(t *testing.T) {
	status, err := Check([]byte("+OK\n"))
	if status != Invalid || err != ErrBadTerminator {
		// A bare LF ends the line, and the byte before it is not '\r', so
		// the line can never become CRLF-terminated.
		t.Fatalf("expected Invalid/ErrBadTerminator for bare LF, got %v (%v)", status, err)
	}

	status, err = Check([]byte("+OK\rX\n"))
	if status != Invalid || err != ErrBadTerminator {
		t.Errorf("expected Invalid/ErrBadTerminator, got %v/%v", status, err)
	}
}

func TestEmptyBulkDistinctFromNull(t *testing.T) {
	var emptyBuf, nullBuf bytes.Buffer
	if err := Encode(&emptyBuf, BulkFrame([]byte{})); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&nullBuf, NullFrame()); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(emptyBuf.Bytes(), nullBuf.Bytes()) {
		t.Fatal("empty bulk and null bulk must have distinct wire encodings")
	}
	if emptyBuf.String() != "$0\r\n\r\n" {
		t.Errorf("unexpected empty bulk encoding: %q", emptyBuf.String())
	}
	if nullBuf.String() != "$-1\r\n" {
		t.Errorf("unexpected null bulk encoding: %q", nullBuf.String())
	}
}
