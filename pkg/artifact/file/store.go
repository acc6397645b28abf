// Package file implements artifact.Store on the local filesystem.
//
// Keys are treated as relative paths under BaseDir. This backend is
// the default for single-node deployments and local development.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailorforge/tailorbatch/pkg/artifact"
)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// Store writes artifacts as files under a base directory.
type Store struct {
	baseDir string
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{baseDir: base}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.resolve(key)
	if err != nil {
		return "", s.wrapError("Put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", s.wrapError("Put", key, err)
	}

	// Write through a temp file and rename so readers never observe a
	// partially written artifact.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact.tmp.*")
	if err != nil {
		return "", s.wrapError("Put", key, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", s.wrapError("Put", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", s.wrapError("Put", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", s.wrapError("Put", key, err)
	}
	return key, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.resolve(key)
	if err != nil {
		return nil, s.wrapError("Get", key, err)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, s.wrapError("Get", key, artifact.ErrNotFound)
	}
	if err != nil {
		return nil, s.wrapError("Get", key, err)
	}
	return data, nil
}

func (s *Store) Close() error { return nil }

// resolve maps a key to a path under baseDir, rejecting traversal.
func (s *Store) resolve(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("artifact key is empty")
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(path, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact key escapes base dir: %s", key)
	}
	return path, nil
}

func (s *Store) wrapError(op, key string, err error) error {
	return &artifact.StoreError{Op: op, Backend: "file", Key: key, Err: err}
}

// Compile-time check that Store implements artifact.Store.
var _ artifact.Store = (*Store)(nil)
