// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package command holds the typed request model parsed from protocol
// frames, independent of how those commands are applied to the store.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/burrow/internal/protocol"
)

// Kind identifies which command variant a Command carries.
type Kind int

const (
	KindPing Kind = iota
	KindGet
	KindSet
	KindPublish
	KindSubscribe
	KindUnsubscribe
	KindDBSize
	KindExpire
	KindTTL
	KindPersist
	KindInfo
	KindCommand
	KindDump
	KindUnknown
)

// Command is a parsed client request. Exactly the fields relevant to Kind
// are populated.
type Command struct {
	Kind Kind

	// Ping
	Message []byte // optional echo payload; nil means no argument

	// Get, Expire, TTL, Persist
	Key string

	// Set
	Value  []byte
	Expiry time.Duration // zero means no expiration

	// Publish (message payload reuses Message)
	Channel string

	// Subscribe, Unsubscribe
	Channels []string

	// Expire
	Seconds int64

	// Info
	Section string

	// Unknown
	Name string
}

// ParseError is a command parse error: wrong arity, unknown option, or
// malformed argument. It always surfaces to the client as -ERR <msg> and
// never closes the connection.
type ParseError struct {
	msg string
}

func (e *ParseError) Error() string { return e.msg }

func parseErrf(format string, args ...interface{}) error {
	return &ParseError{msg: fmt.Sprintf(format, args...)}
}

// Parse interprets a top-level Array-of-Bulk frame as a Command. f must be
// a non-null Array of non-null Bulk frames; anything else is a protocol
// violation the caller should treat as a parse error (commands only ever
// arrive this way once the frame codec has already validated shape).
func Parse(f protocol.Frame) (Command, error) {
	if f.Tag != protocol.TagArray || f.Null {
		return Command{}, parseErrf("expected array frame for command")
	}
	if len(f.Array) == 0 {
		return Command{}, parseErrf("empty command")
	}

	args := make([]string, len(f.Array))
	raw := make([][]byte, len(f.Array))
	for i, elem := range f.Array {
		if elem.Tag != protocol.TagBulk || elem.Null {
			return Command{}, parseErrf("command arguments must be bulk strings")
		}
		raw[i] = elem.Bulk
		args[i] = string(elem.Bulk)
	}

	name := strings.ToUpper(args[0])
	rest := args[1:]
	rawRest := raw[1:]

	switch name {
	case "PING":
		return parsePing(rawRest)
	case "GET":
		return parseGet(rest)
	case "SET":
		return parseSet(rest, rawRest)
	case "PUBLISH":
		return parsePublish(rest, rawRest)
	case "SUBSCRIBE":
		return parseSubscribe(rest)
	case "UNSUBSCRIBE":
		return Command{Kind: KindUnsubscribe, Channels: rest}, nil
	case "DBSIZE":
		if len(rest) != 0 {
			return Command{}, parseErrf("wrong number of arguments for 'dbsize' command")
		}
		return Command{Kind: KindDBSize}, nil
	case "EXPIRE":
		return parseExpire(rest)
	case "TTL":
		if len(rest) != 1 {
			return Command{}, parseErrf("wrong number of arguments for 'ttl' command")
		}
		return Command{Kind: KindTTL, Key: rest[0]}, nil
	case "PERSIST":
		if len(rest) != 1 {
			return Command{}, parseErrf("wrong number of arguments for 'persist' command")
		}
		return Command{Kind: KindPersist, Key: rest[0]}, nil
	case "INFO":
		section := ""
		if len(rest) == 1 {
			section = rest[0]
		} else if len(rest) > 1 {
			return Command{}, parseErrf("wrong number of arguments for 'info' command")
		}
		return Command{Kind: KindInfo, Section: section}, nil
	case "COMMAND":
		return Command{Kind: KindCommand}, nil
	case "DUMP":
		if len(rest) != 0 {
			return Command{}, parseErrf("wrong number of arguments for 'dump' command")
		}
		return Command{Kind: KindDump}, nil
	default:
		return Command{Kind: KindUnknown, Name: args[0]}, nil
	}
}

func parsePing(rawRest [][]byte) (Command, error) {
	switch len(rawRest) {
	case 0:
		return Command{Kind: KindPing}, nil
	case 1:
		return Command{Kind: KindPing, Message: rawRest[0]}, nil
	default:
		return Command{}, parseErrf("wrong number of arguments for 'ping' command")
	}
}

func parseGet(rest []string) (Command, error) {
	if len(rest) != 1 {
		return Command{}, parseErrf("wrong number of arguments for 'get' command")
	}
	return Command{Kind: KindGet, Key: rest[0]}, nil
}

func parseSet(rest []string, rawRest [][]byte) (Command, error) {
	if len(rest) < 2 {
		return Command{}, parseErrf("wrong number of arguments for 'set' command")
	}
	cmd := Command{Kind: KindSet, Key: rest[0], Value: rawRest[1]}

	switch len(rest) {
	case 2:
		return cmd, nil
	case 4:
		opt := strings.ToUpper(rest[2])
		amount, err := strconv.ParseInt(rest[3], 10, 64)
		if err != nil || amount <= 0 {
			return Command{}, parseErrf("invalid expire value for 'set' command")
		}
		switch opt {
		case "EX":
			cmd.Expiry = time.Duration(amount) * time.Second
		case "PX":
			cmd.Expiry = time.Duration(amount) * time.Millisecond
		default:
			return Command{}, parseErrf("unsupported option %q for 'set' command", rest[2])
		}
		return cmd, nil
	default:
		return Command{}, parseErrf("syntax error in 'set' command")
	}
}

func parsePublish(rest []string, rawRest [][]byte) (Command, error) {
	if len(rest) != 2 {
		return Command{}, parseErrf("wrong number of arguments for 'publish' command")
	}
	return Command{Kind: KindPublish, Channel: rest[0], Message: rawRest[1]}, nil
}

func parseSubscribe(rest []string) (Command, error) {
	if len(rest) == 0 {
		return Command{}, parseErrf("wrong number of arguments for 'subscribe' command")
	}
	return Command{Kind: KindSubscribe, Channels: rest}, nil
}

func parseExpire(rest []string) (Command, error) {
	if len(rest) != 2 {
		return Command{}, parseErrf("wrong number of arguments for 'expire' command")
	}
	seconds, err := strconv.ParseInt(rest[1], 10, 64)
	if err != nil {
		return Command{}, parseErrf("invalid expire value for 'expire' command")
	}
	return Command{Kind: KindExpire, Key: rest[0], Seconds: seconds}, nil
}
