package server

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/Snogger/ai-hairstyle-plugin/internal/blobstore"
	"github.com/Snogger/ai-hairstyle-plugin/internal/catalog"
	"github.com/Snogger/ai-hairstyle-plugin/internal/ledger"
	"github.com/Snogger/ai-hairstyle-plugin/internal/tryon"
)

// jpegBytes carries the JPEG magic so content sniffing resolves it.
var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("fake-jpeg-body")...)

type mockRunner struct {
	mu     sync.Mutex
	reqs   []tryon.Request
	result tryon.Result
	err    error
}

func (m *mockRunner) Run(ctx context.Context, req tryon.Request) (tryon.Result, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.err != nil {
		return tryon.Result{}, m.err
	}
	return m.result, nil
}

func (m *mockRunner) requests() []tryon.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tryon.Request, len(m.reqs))
	copy(out, m.reqs)
	return out
}

type sentMail struct {
	to          []string
	subject     string
	body        string
	attachments map[string][]byte
}

type mockMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

// SendBooking snapshots attachment contents because the handler removes
// the staged files once it returns.
func (m *mockMailer) SendBooking(ctx context.Context, to []string, subject, body string, attachments []string) error {
	mail := sentMail{to: to, subject: subject, body: body, attachments: make(map[string][]byte)}
	for _, path := range attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		mail.attachments[filepath.Base(path)] = data
	}

	m.mu.Lock()
	m.sent = append(m.sent, mail)
	m.mu.Unlock()
	return m.err
}

func (m *mockMailer) mails() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMail, len(m.sent))
	copy(out, m.sent)
	return out
}

type testEnv struct {
	server  *Server
	runner  *mockRunner
	mailer  *mockMailer
	catalog *catalog.Catalog
	ledger  *ledger.Memory
	blobs   blobstore.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	cat, err := catalog.New(db, logger)
	require.NoError(t, err)

	blobs, err := blobstore.NewFS(blobstore.Options{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(blobs.Close)

	runner := &mockRunner{}
	mailer := &mockMailer{}
	mem := ledger.NewMemory()

	srv := New(Options{
		Pipeline:    runner,
		Catalog:     cat,
		Ledger:      mem,
		Blobs:       blobs,
		Mailer:      mailer,
		Logger:      logger,
		PublicURL:   "https://salon.example",
		TokenSecret: "test-secret",
		TokenTTL:    time.Minute,
	})

	return &testEnv{
		server:  srv,
		runner:  runner,
		mailer:  mailer,
		catalog: cat,
		ledger:  mem,
		blobs:   blobs,
	}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, err := e.server.tokens.Issue()
	require.NoError(t, err)
	return token
}

func multipartBody(t *testing.T, fields map[string]string, images ...[]byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for i, img := range images {
		fw, err := mw.CreateFormFile("images", fmt.Sprintf("photo-%d.jpg", i))
		require.NoError(t, err)
		_, err = fw.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}
