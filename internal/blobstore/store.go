// Package blobstore stores manuscript and supplementary files and hands out
// retrievable URLs for them.
package blobstore

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/ejournal-workflow-api/internal/config"
	"github.com/google/uuid"
)

// Store persists opaque file contents and resolves their locators to URLs
type Store interface {
	Put(ctx context.Context, name string, data []byte) (locator string, err error)
	URL(ctx context.Context, locator string) (string, error)
}

// New selects the blob store configured in cfg
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3(ctx, cfg)
	case "local", "":
		return NewLocal(cfg.UploadDir, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// newKey builds a unique, date-partitioned key that keeps the original file name
func newKey(name string, now time.Time) string {
	base := unsafeChars.ReplaceAllString(path.Base(name), "_")
	if base == "" || base == "." || base == "_" {
		base = "file"
	}
	return fmt.Sprintf("submissions/%d/%02d/%02d/%s/%s", now.Year(), now.Month(), now.Day(), uuid.NewString(), base)
}
