package blobstore

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FS stores blobs under root, one file per key plus a small sidecar with
// the mime type. A background sweep removes entries older than TTL.
type FS struct {
	root   string
	ttl    time.Duration
	logger *slog.Logger
	done   chan struct{}
}

type Options struct {
	Root   string
	TTL    time.Duration
	Logger *slog.Logger
}

type meta struct {
	MimeType string `json:"mime_type"`
}

func NewFS(opts Options) (*FS, error) {
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &FS{
		root:   opts.Root,
		ttl:    opts.TTL,
		logger: logger,
		done:   make(chan struct{}),
	}
	if s.ttl > 0 {
		go s.sweepLoop()
	}
	return s, nil
}

// Close stops the background sweep.
func (s *FS) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *FS) Put(ctx context.Context, key, mimeType string, r io.Reader) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	metaBytes, err := json.Marshal(meta{MimeType: mimeType})
	if err != nil {
		return err
	}
	return os.WriteFile(path+".meta", metaBytes, 0o644)
}

func (s *FS) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}

	mimeType := "application/octet-stream"
	if metaBytes, err := os.ReadFile(path + ".meta"); err == nil {
		var m meta
		if json.Unmarshal(metaBytes, &m) == nil && m.MimeType != "" {
			mimeType = m.MimeType
		}
	}
	return f, mimeType, nil
}

func (s *FS) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	os.Remove(path + ".meta")
	if err := os.Remove(path); os.IsNotExist(err) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return nil
}

// path maps a key to a file under root, rejecting anything that would
// escape it.
func (s *FS) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidKey
	}
	return path, nil
}

func (s *FS) sweepLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *FS) sweep() {
	cutoff := time.Now().Add(-s.ttl)
	removed := 0

	_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})

	if removed > 0 {
		s.logger.Info("swept expired blobs", "removed", removed)
	}
}
