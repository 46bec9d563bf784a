// Package fsstore stores blobs in the profile media directory. It is
// the embedded-mode uploader; deployments with a real object store use
// the s3 driver instead.
package fsstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store writes objects under a base directory and returns file:// URLs.
type Store struct {
	dir string
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Upload writes the object to dir/key. The write goes through a temp
// file and rename so a failed upload leaves nothing at the final path.
func (s *Store) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize blob: %w", err)
	}

	abs, err := filepath.Abs(dst)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}
