// Package storage keeps uploaded files and validates image uploads.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileMeta describes an accepted file.
type FileMeta struct {
	Ext         string
	ContentType string
	Size        int64
}

// FileStore persists file contents and returns a relative URL path for them.
type FileStore interface {
	Save(ctx context.Context, r io.Reader, meta FileMeta) (string, error)
	Remove(ctx context.Context, urlPath string) error
}

// LocalFileStore writes files into a directory served under URLPrefix.
type LocalFileStore struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

func NewLocalFileStore(dir, urlPrefix string) *LocalFileStore {
	return &LocalFileStore{dir: dir, urlPrefix: urlPrefix, now: time.Now}
}

// Dir is the directory files are written to.
func (s *LocalFileStore) Dir() string { return s.dir }

// Save writes r under a name made of the upload time, a random suffix and meta.Ext.
func (s *LocalFileStore) Save(ctx context.Context, r io.Reader, meta FileMeta) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString()[:8], strings.ToLower(meta.Ext))
	full := filepath.Join(s.dir, name)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	return path.Join(s.urlPrefix, name), nil
}

// Remove deletes a file previously returned by Save. Missing files are not an error.
func (s *LocalFileStore) Remove(_ context.Context, urlPath string) error {
	if urlPath == "" {
		return nil
	}
	name := path.Base(strings.TrimPrefix(urlPath, s.urlPrefix))
	if name == "." || name == "/" || name == ".." {
		return fmt.Errorf("invalid upload path %q", urlPath)
	}

	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}
