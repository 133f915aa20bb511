// Package storage provides the blob backends that hold uploaded images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"gadgets/internal/config"
)

// ErrNotFound is returned when a key does not exist in the backend.
var ErrNotFound = errors.New("storage: object not found")

// Storage is a blob store addressed by slash-separated keys.
type Storage interface {
	// Put writes size bytes from r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Delete removes key. Missing keys return ErrNotFound.
	Delete(ctx context.Context, key string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// URL returns the public URL for key.
	URL(key string) string
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Storage, error) {
	switch cfg.Driver {
	case "local":
		return NewLocal(cfg.Local.Root, cfg.Local.PublicURL)
	case "s3":
		s, err := NewS3(&cfg.S3, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
