package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local stores blobs on the filesystem; the API serves them under PublicBaseURL
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates a filesystem blob store rooted at dir
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory blobs are written under
func (s *Local) Root() string { return s.root }

func (s *Local) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := newKey(name, time.Now())
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return key, nil
}

func (s *Local) URL(ctx context.Context, locator string) (string, error) {
	if locator == "" {
		return "", nil
	}
	return s.baseURL + "/" + locator, nil
}
