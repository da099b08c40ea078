// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/option"

	"github.com/AleutianAI/nlqbench/services/harness/config"
)

// Uploader copies a run's report directory into a GCS bucket.
type Uploader struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewUploader creates the uploader. An explicit credentials file must
// exist; without one, application default credentials apply.
func NewUploader(ctx context.Context, cfg config.GCSConfig, opts ...Option) (*Uploader, error) {
	o := applyOptions(opts)

	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at %s", cfg.CredentialsFile)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: o.logger,
	}, nil
}

// UploadDir uploads every file under dir, keyed by the directory's
// base name so gs://bucket/<prefix>/<run id>/report.json lines up with
// the local layout.
func (u *Uploader) UploadDir(ctx context.Context, dir string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "report.UploadDir")
	defer span.End()
	span.SetAttributes(
		attribute.String("gcs.bucket", u.bucket),
		attribute.String("gcs.dir", dir),
	)

	uploaded := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(filepath.Dir(dir), p)
		if err != nil {
			return err
		}
		if err := u.uploadFile(ctx, p, path.Join(u.prefix, filepath.ToSlash(rel))); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upload %s: %w", dir, err)
	}

	u.logger.InfoContext(ctx, "uploaded report directory",
		"bucket", u.bucket,
		"dir", dir,
		"files", uploaded)
	span.SetAttributes(attribute.Int("gcs.files", uploaded))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (u *Uploader) uploadFile(ctx context.Context, localPath, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentTypeFor(localPath)
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s to gs://%s/%s: %w", localPath, u.bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer for %s: %w", objectName, err)
	}

	u.logger.Debug("uploaded report file", "object", objectName)
	return nil
}

// Close releases the storage client.
func (u *Uploader) Close() error {
	return u.client.Close()
}

func contentTypeFor(p string) string {
	switch filepath.Ext(p) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".html":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
