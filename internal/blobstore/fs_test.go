package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T, ttl time.Duration) *FS {
	t.Helper()
	s, err := NewFS(Options{Root: t.TempDir(), TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestPutOpenDelete(t *testing.T) {
	s := newTestFS(t, 0)
	ctx := context.Background()

	key := "generated/run-1/front.png"
	require.NoError(t, s.Put(ctx, key, "image/png", strings.NewReader("png-bytes")))

	rc, mimeType, err := s.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/png", mimeType)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, s.Delete(ctx, key))
	_, _, err = s.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, key), ErrNotFound)
}

func TestPutOverwritesExistingKey(t *testing.T) {
	s := newTestFS(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a/b", "image/png", strings.NewReader("v1")))
	require.NoError(t, s.Put(ctx, "a/b", "image/jpeg", strings.NewReader("v2")))

	rc, mimeType, err := s.Open(ctx, "a/b")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.Equal(t, "image/jpeg", mimeType)
}

func TestOpenUnknownKey(t *testing.T) {
	s := newTestFS(t, 0)

	_, _, err := s.Open(context.Background(), "generated/missing/front.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectsEscapingKeys(t *testing.T) {
	s := newTestFS(t, 0)
	ctx := context.Background()

	for _, key := range []string{
		"",
		"   ",
		"../outside",
		"a/../../outside",
		"/etc/passwd",
		"a\\b",
	} {
		err := s.Put(ctx, key, "image/png", strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)

		_, _, err = s.Open(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestSweepRemovesExpiredBlobs(t *testing.T) {
	s := newTestFS(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "old/front.png", "image/png", strings.NewReader("old")))
	require.NoError(t, s.Put(ctx, "fresh/front.png", "image/png", strings.NewReader("fresh")))

	// Age the first entry past the TTL.
	stale := time.Now().Add(-2 * time.Hour)
	for _, suffix := range []string{"", ".meta"} {
		require.NoError(t, os.Chtimes(filepath.Join(s.root, "old", "front.png"+suffix), stale, stale))
	}

	s.sweep()

	_, _, err := s.Open(ctx, "old/front.png")
	assert.ErrorIs(t, err, ErrNotFound)

	rc, _, err := s.Open(ctx, "fresh/front.png")
	require.NoError(t, err)
	rc.Close()
}
