// Package gcs archives reports as Markdown objects in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/jobwatch/internal/crawler"
)

const contentType = "text/markdown; charset=utf-8"

// Config captures the target bucket and object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// Archiver writes each report to <prefix>/<UTC timestamp>.md.
type Archiver struct {
	client *storage.Client
	bucket string
	prefix string
	clock  crawler.Clock
}

// New creates a GCS-backed archiver.
func New(client *storage.Client, cfg Config, clock crawler.Clock) (*Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		clock:  clock,
	}, nil
}

// ObjectName returns the object path for a report written now.
func (a *Archiver) ObjectName() string {
	name := a.clock.Now().UTC().Format("20060102T150405Z") + ".md"
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Deliver uploads the report.
func (a *Archiver) Deliver(ctx context.Context, text string) error {
	name := a.ObjectName()
	writer := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write([]byte(text)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", name, err)
	}
	return nil
}
