// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package archive ships a finished dump archive to object storage. Like
// internal/dump, this is an operator-triggered, offline operation — never
// run automatically by the server.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nishisan-dev/burrow/internal/logging"
)

// Config names the destination for an upload. Bucket is required; an
// empty Region leaves the region to the default AWS config chain; Prefix
// is prepended to the object key.
type Config struct {
	Bucket string
	Region string
	Prefix string
}

// Result reports where a file ended up.
type Result struct {
	Bucket string
	Key    string
	Bytes  int64
}

// Upload ships localPath to cfg.Bucket under cfg.Prefix, using the
// default AWS credential chain (environment, shared config, EC2/ECS
// role) via aws-sdk-go-v2's config loader — the same discovery path the
// teacher's go.mod already pulled in the SDK for but never wired to an
// actual client.
//
// jobLogDir, when non-empty, routes this upload's log lines to a
// dedicated per-job file, same convention as internal/dump.Export.
func Upload(ctx context.Context, localPath string, cfg Config, jobLogDir string, baseLogger *slog.Logger) (Result, error) {
	jobID := strconv.FormatInt(time.Now().UnixNano(), 10)
	logger, closer, logPath, err := logging.NewJobLogger(baseLogger, jobLogDir, "archive", jobID)
	if err != nil {
		return Result{}, err
	}
	defer closer.Close()

	logger = logger.With("job_id", jobID, "bucket", cfg.Bucket, "path", localPath)
	if logPath != "" {
		logger = logger.With("job_log", logPath)
	}
	logger.Info("archive upload starting")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Error("archive upload failed", "error", err)
		return Result{}, fmt.Errorf("loading AWS config: %w", err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		logger.Error("archive upload failed", "error", err)
		return Result{}, fmt.Errorf("opening dump file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Error("archive upload failed", "error", err)
		return Result{}, fmt.Errorf("stat dump file: %w", err)
	}

	key := objectKey(cfg.Prefix, localPath)
	client := s3.NewFromConfig(awsCfg)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		logger.Error("archive upload failed", "error", err)
		return Result{}, fmt.Errorf("uploading to s3: %w", err)
	}

	result := Result{Bucket: cfg.Bucket, Key: key, Bytes: info.Size()}
	logger.Info("archive upload completed", "key", result.Key, "bytes", result.Bytes)
	return result, nil
}

func objectKey(prefix, localPath string) string {
	name := filepath.Base(localPath)
	if prefix == "" {
		return name
	}
	return filepath.ToSlash(filepath.Join(prefix, name))
}
