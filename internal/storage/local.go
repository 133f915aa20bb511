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
)

// Local stores objects as files below Root.
type Local struct {
	root      string
	publicURL string
}

// NewLocal creates the root directory if needed.
func NewLocal(root, publicURL string) (*Local, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: root, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Root returns the directory objects are written to.
func (l *Local) Root() string {
	return l.root
}

// PublicURL returns the URL prefix the root is served under.
func (l *Local) PublicURL() string {
	return l.publicURL
}

func (l *Local) resolve(key string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Put writes the object through a temp file so readers never see partial data.
func (l *Local) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	dst, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("short write: %d of %d bytes", written, size)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move object into place: %w", err)
	}
	return nil
}

// Delete removes the file for key.
func (l *Local) Delete(ctx context.Context, key string) error {
	p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists reports whether the file for key is present.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// URL joins the public prefix and key.
func (l *Local) URL(key string) string {
	return l.publicURL + "/" + strings.TrimLeft(key, "/")
}
