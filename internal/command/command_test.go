// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package command

import (
	"testing"
	"time"

	"github.com/nishisan-dev/burrow/internal/protocol"
)

func arrayOf(parts ...string) protocol.Frame {
	elems := make([]protocol.Frame, len(parts))
	for i, p := range parts {
		elems[i] = protocol.BulkString(p)
	}
	return protocol.ArrayFrame(elems...)
}

func TestParse_Ping(t *testing.T) {
	cmd, err := Parse(arrayOf("PING"))
	if err != nil || cmd.Kind != KindPing || cmd.Message != nil {
		t.Fatalf("got %+v, err %v", cmd, err)
	}

	cmd, err = Parse(arrayOf("ping", "hello"))
	if err != nil || cmd.Kind != KindPing || string(cmd.Message) != "hello" {
		t.Fatalf("got %+v, err %v", cmd, err)
	}

	if _, err := Parse(arrayOf("PING", "a", "b")); err == nil {
		t.Fatal("expected arity error")
	}
}

func TestParse_Get(t *testing.T) {
	cmd, err := Parse(arrayOf("GET", "k"))
	if err != nil || cmd.Kind != KindGet || cmd.Key != "k" {
		t.Fatalf("got %+v, err %v", cmd, err)
	}
	if _, err := Parse(arrayOf("GET")); err == nil {
		t.Fatal("expected arity error")
	}
}

func TestParse_Set(t *testing.T) {
	cmd, err := Parse(arrayOf("SET", "k", "v"))
	if err != nil || cmd.Kind != KindSet || cmd.Key != "k" || string(cmd.Value) != "v" || cmd.Expiry != 0 {
		t.Fatalf("got %+v, err %v", cmd, err)
	}

	cmd, err = Parse(arrayOf("SET", "k", "v", "EX", "10"))
	if err != nil || cmd.Expiry != 10*time.Second {
		t.Fatalf("got %+v, err %v", cmd, err)
	}

	cmd, err = Parse(arrayOf("SET", "k", "v", "PX", "100"))
	if err != nil || cmd.Expiry != 100*time.Millisecond {
		t.Fatalf("got %+v, err %v", cmd, err)
	}

	cases := [][]string{
		{"SET", "k", "v", "EX", "0"},
		{"SET", "k", "v", "EX", "-1"},
		{"SET", "k", "v", "BOGUS", "1"},
		{"SET", "k", "v", "EX"},
		{"SET", "k"},
	}
	for _, c := range cases {
		if _, err := Parse(arrayOf(c...)); err == nil {
			t.Fatalf("expected parse error for %v", c)
		}
	}
}

func TestParse_PublishSubscribeUnsubscribe(t *testing.T) {
	cmd, err := Parse(arrayOf("PUBLISH", "news", "hi"))
	if err != nil || cmd.Kind != KindPublish || cmd.Channel != "news" || string(cmd.Message) != "hi" {
		t.Fatalf("got %+v, err %v", cmd, err)
	}

	cmd, err = Parse(arrayOf("SUBSCRIBE", "a", "b"))
	if err != nil || cmd.Kind != KindSubscribe || len(cmd.Channels) != 2 {
		t.Fatalf("got %+v, err %v", cmd, err)
	}
	if _, err := Parse(arrayOf("SUBSCRIBE")); err == nil {
		t.Fatal("expected arity error for subscribe with no channels")
	}

	cmd, err = Parse(arrayOf("UNSUBSCRIBE"))
	if err != nil || cmd.Kind != KindUnsubscribe || len(cmd.Channels) != 0 {
		t.Fatalf("got %+v, err %v", cmd, err)
	}
}

func TestParse_Unknown(t *testing.T) {
	cmd, err := Parse(arrayOf("FROBNICATE", "x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Kind != KindUnknown || cmd.Name != "FROBNICATE" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParse_Dump(t *testing.T) {
	cmd, err := Parse(arrayOf("DUMP"))
	if err != nil || cmd.Kind != KindDump {
		t.Fatalf("got %+v, err %v", cmd, err)
	}

	if _, err := Parse(arrayOf("DUMP", "extra")); err == nil {
		t.Fatal("expected an error for 'dump' with arguments")
	}
}

func TestParse_ExpireTTLPersist(t *testing.T) {
	cmd, err := Parse(arrayOf("EXPIRE", "k", "30"))
	if err != nil || cmd.Kind != KindExpire || cmd.Seconds != 30 {
		t.Fatalf("got %+v, err %v", cmd, err)
	}
	cmd, err = Parse(arrayOf("TTL", "k"))
	if err != nil || cmd.Kind != KindTTL || cmd.Key != "k" {
		t.Fatalf("got %+v, err %v", cmd, err)
	}
	cmd, err = Parse(arrayOf("PERSIST", "k"))
	if err != nil || cmd.Kind != KindPersist || cmd.Key != "k" {
		t.Fatalf("got %+v, err %v", cmd, err)
	}
}

func TestParse_NotAnArray(t *testing.T) {
	if _, err := Parse(protocol.BulkString("GET")); err == nil {
		t.Fatal("expected error for non-array frame")
	}
}
