package tryon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Snogger/ai-hairstyle-plugin/internal/gemini"
)

type mockDescriber struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (m *mockDescriber) Describe(ctx context.Context, image gemini.Blob, instruction string) (string, error) {
	// The delay keeps concurrent duplicate lookups overlapping so the
	// collapse behavior under test is deterministic.
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("description of %d bytes", len(image.Data)), nil
}

func (m *mockDescriber) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// blockingDescriber never answers; it only returns once its context is
// cancelled.
type blockingDescriber struct{}

func (blockingDescriber) Describe(ctx context.Context, image gemini.Blob, instruction string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type mockSynthesizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, prompt string) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return []byte("png:" + prompt[:min(16, len(prompt))]), nil
}

func (m *mockSynthesizer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockReferences struct {
	refs ReferenceSet
	err  error
}

func (m *mockReferences) References(ctx context.Context, styleID int64) (ReferenceSet, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.refs, nil
}

type ledgerRecord struct {
	styleID  int64
	apiCalls int
}

type mockLedger struct {
	mu      sync.Mutex
	records []ledgerRecord
}

func (m *mockLedger) RecordGeneration(ctx context.Context, styleID int64, apiCalls int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, ledgerRecord{styleID: styleID, apiCalls: apiCalls})
	return nil
}

func (m *mockLedger) snapshot() []ledgerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledgerRecord, len(m.records))
	copy(out, m.records)
	return out
}

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	err   error
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) Put(ctx context.Context, key, mimeType string, r io.Reader) error {
	if m.err != nil {
		return m.err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[key] = buf.Bytes()
	m.mu.Unlock()
	return nil
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		out = append(out, k)
	}
	return out
}

func fullReferenceSet() ReferenceSet {
	refs := make(ReferenceSet, len(Angles()))
	for _, angle := range Angles() {
		refs[angle] = gemini.Blob{Data: []byte("ref-" + string(angle)), MimeType: "image/jpeg"}
	}
	return refs
}
