// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command burrow-cli is a thin command-line client over the burrow wire
// protocol, plus two operator subcommands: dump export, which reads the
// whole keyspace over the connection into a local dump file, and archive
// upload, which ships a finished dump file without touching the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nishisan-dev/burrow/internal/archive"
	"github.com/nishisan-dev/burrow/internal/client"
	"github.com/nishisan-dev/burrow/internal/config"
	"github.com/nishisan-dev/burrow/internal/dump"
	"github.com/nishisan-dev/burrow/internal/logging"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 6379, "server port")
	configPath := flag.String("config", "", "optional path to a server config file; supplies dump/archive defaults")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: burrow-cli [--host H] [--port P] [--config path] <command> [args...]")
		os.Exit(2)
	}

	var cfg *config.ServerConfig
	if *configPath != "" {
		loaded, err := config.LoadServerConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "dump":
		err = runDump(rest, addr, cfg)
	case "archive":
		err = runArchive(rest, cfg)
	default:
		err = runCommand(addr, cmd, rest)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runCommand dials the server and issues a single ordinary command.
func runCommand(addr, cmd string, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cl, err := client.Dial(ctx, addr, nil)
	if err != nil {
		return err
	}
	defer cl.Close()

	switch cmd {
	case "ping":
		msg := []byte(nil)
		if len(args) == 1 {
			msg = []byte(args[0])
		} else if len(args) > 1 {
			return fmt.Errorf("usage: ping [msg]")
		}
		reply, err := cl.Ping(msg)
		if err != nil {
			return err
		}
		fmt.Println(string(reply))

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get <key>")
		}
		v, exists, err := cl.Get(args[0])
		if err != nil {
			return err
		}
		if !exists {
			fmt.Println("(nil)")
			return nil
		}
		fmt.Println(string(v))

	case "set":
		if len(args) != 2 && len(args) != 4 {
			return fmt.Errorf("usage: set <key> <value> [expires <duration>]")
		}
		var ttl time.Duration
		if len(args) == 4 {
			if args[2] != "expires" {
				return fmt.Errorf("usage: set <key> <value> [expires <duration>]")
			}
			ttl, err = time.ParseDuration(args[3])
			if err != nil {
				return fmt.Errorf("invalid expires duration: %w", err)
			}
		}
		if err := cl.Set(args[0], []byte(args[1]), ttl); err != nil {
			return err
		}
		fmt.Println("OK")

	case "publish":
		if len(args) != 2 {
			return fmt.Errorf("usage: publish <chan> <msg>")
		}
		n, err := cl.Publish(args[0], []byte(args[1]))
		if err != nil {
			return err
		}
		fmt.Println(n)

	case "subscribe":
		if len(args) == 0 {
			return fmt.Errorf("usage: subscribe <chan>...")
		}
		sub, err := cl.Subscribe(args...)
		if err != nil {
			return err
		}
		for {
			msg, err := sub.Next()
			if err != nil {
				return err
			}
			if msg.Lagged {
				fmt.Printf("(lagged) %s\n", msg.Channel)
				continue
			}
			fmt.Printf("%s: %s\n", msg.Channel, string(msg.Payload))
		}

	case "dbsize":
		if len(args) != 0 {
			return fmt.Errorf("usage: dbsize")
		}
		n, err := cl.DBSize()
		if err != nil {
			return err
		}
		fmt.Println(n)

	case "ttl":
		if len(args) != 1 {
			return fmt.Errorf("usage: ttl <key>")
		}
		ttl, hasExpiry, exists, err := cl.TTL(args[0])
		if err != nil {
			return err
		}
		switch {
		case !exists:
			fmt.Println(-2)
		case !hasExpiry:
			fmt.Println(-1)
		default:
			fmt.Println(int64(ttl / time.Second))
		}

	case "expire":
		if len(args) != 2 {
			return fmt.Errorf("usage: expire <key> <seconds>")
		}
		seconds, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seconds: %w", err)
		}
		existed, err := cl.Expire(args[0], seconds)
		if err != nil {
			return err
		}
		if existed {
			fmt.Println(1)
		} else {
			fmt.Println(0)
		}

	case "persist":
		if len(args) != 1 {
			return fmt.Errorf("usage: persist <key>")
		}
		removed, err := cl.Persist(args[0])
		if err != nil {
			return err
		}
		if removed {
			fmt.Println(1)
		} else {
			fmt.Println(0)
		}

	case "info":
		section := ""
		if len(args) == 1 {
			section = args[0]
		} else if len(args) > 1 {
			return fmt.Errorf("usage: info [section]")
		}
		text, err := cl.Info(section)
		if err != nil {
			return err
		}
		fmt.Print(text)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// runDump handles "dump export [path]", the one subcommand that reads the
// whole keyspace over the wire (via the DUMP command) rather than issuing a
// single ordinary request. When --config points at a server config file,
// its dump.directory and dump.compression settings supply defaults for an
// unset path and --compression.
func runDump(args []string, addr string, cfg *config.ServerConfig) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	compression := fs.String("compression", "", "gzip or zstd (defaults to --config's dump.compression, else zstd)")
	if len(args) == 0 || args[0] != "export" {
		return fmt.Errorf("usage: dump export [path] [--compression gzip|zstd]")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("usage: dump export [path] [--compression gzip|zstd]")
	}

	compressionName := *compression
	if compressionName == "" && cfg != nil {
		compressionName = cfg.Dump.Compression
	}
	if compressionName == "" {
		compressionName = "zstd"
	}

	var c dump.Compression
	switch compressionName {
	case "gzip":
		c = dump.CompressionGzip
	case "zstd":
		c = dump.CompressionZstd
	default:
		return fmt.Errorf("--compression must be gzip or zstd, got %q", compressionName)
	}

	path := ""
	if fs.NArg() == 1 {
		path = fs.Arg(0)
	} else {
		if cfg == nil {
			return fmt.Errorf("usage: dump export <path> [--compression gzip|zstd] (or pass --config to default the path under dump.directory)")
		}
		dir := cfg.Dump.Directory
		if dir == "" {
			dir = "./dumps"
		}
		ext := ".dump.gz"
		if c == dump.CompressionZstd {
			ext = ".dump.zst"
		}
		path = filepath.Join(dir, fmt.Sprintf("burrow-%d%s", time.Now().Unix(), ext))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cl, err := client.Dial(ctx, addr, nil)
	if err != nil {
		return err
	}
	defer cl.Close()

	entries, err := cl.Dump()
	if err != nil {
		return fmt.Errorf("fetching keyspace: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dump file: %w", err)
	}
	defer f.Close()

	n, err := dump.WriteEntries(f, entries, c)
	if err != nil {
		return fmt.Errorf("writing dump file: %w", err)
	}

	fmt.Printf("wrote %d keys to %s\n", n, path)
	return nil
}

// runArchive handles "archive upload <path> [--bucket <name>]". This one
// never touches the wire protocol: it ships a file that dump export already
// produced on local disk. When --config points at a server config file,
// its archive.bucket/region/prefix settings supply defaults for any flag
// left unset.
func runArchive(args []string, cfg *config.ServerConfig) error {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	bucket := fs.String("bucket", "", "destination S3 bucket (defaults to --config's archive.bucket)")
	region := fs.String("region", "", "AWS region (defaults to --config's archive.region, else the credential chain's default)")
	prefix := fs.String("prefix", "", "key prefix within the bucket (defaults to --config's archive.prefix)")
	if len(args) == 0 || args[0] != "upload" {
		return fmt.Errorf("usage: archive upload <path> [--bucket <name>] [--region R] [--prefix P]")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: archive upload <path> [--bucket <name>] [--region R] [--prefix P]")
	}
	path := fs.Arg(0)

	bucketName, regionName, prefixVal := *bucket, *region, *prefix
	if cfg != nil {
		if bucketName == "" {
			bucketName = cfg.Archive.Bucket
		}
		if regionName == "" {
			regionName = cfg.Archive.Region
		}
		if prefixVal == "" {
			prefixVal = cfg.Archive.Prefix
		}
	}
	if bucketName == "" {
		return fmt.Errorf("--bucket is required (or set archive.bucket via --config)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger, closer := logging.NewLogger("info", "text", "")
	defer closer.Close()

	archiveCfg := archive.Config{Bucket: bucketName, Region: regionName, Prefix: prefixVal}
	result, err := archive.Upload(ctx, path, archiveCfg, "", logger)
	if err != nil {
		return err
	}

	fmt.Printf("uploaded %d bytes to s3://%s/%s\n", result.Bytes, result.Bucket, result.Key)
	return nil
}
