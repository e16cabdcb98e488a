// Package gcs implements a Google Cloud Storage payload archive.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Config holds the GCS connection parameters.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

// Archive writes raw payloads to a GCS bucket.
type Archive struct {
	client *storage.Client
	bucket string
	log    *zap.Logger
}

// New initializes a GCS client and verifies bucket access. Authentication is
// handled via Application Default Credentials.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive.gcs.bucket is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	// Fail fast on startup if the bucket is missing or inaccessible.
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			log.Warn("failed to close gcs client after bucket check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", cfg.Bucket, err)
	}

	return &Archive{client: client, bucket: cfg.Bucket, log: log}, nil
}

// Put uploads data to the named object and returns a gs:// URI.
func (a *Archive) Put(ctx context.Context, path string, data []byte) (string, error) {
	wc := a.client.Bucket(a.bucket).Object(path).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		if cerr := wc.Close(); cerr != nil {
			a.log.Warn("failed to close gcs writer after write failure", zap.Error(cerr))
		}
		return "", fmt.Errorf("write gcs object %s: %w", path, err)
	}
	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer for object %s: %w", path, err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, path), nil
}

// Close releases the client.
func (a *Archive) Close() error {
	return a.client.Close()
}
