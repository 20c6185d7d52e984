// Package blobstore is the ephemeral home of generated images and upload
// attachments, addressable by key.
package blobstore

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

type Store interface {
	Put(ctx context.Context, key, mimeType string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}
