package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRoundTripper struct {
	mu   sync.Mutex
	seen []http.Header

	calls atomic.Int32
	err   error
}

func (f *failingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.seen = append(f.seen, req.Header.Clone())
	f.mu.Unlock()
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingRoundTripper) headers() []http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]http.Header, len(f.seen))
	copy(out, f.seen)
	return out
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
	fired    chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{fired: make(chan struct{}, 8)}
}

func (n *recordingNotifier) Alert(ctx context.Context, subject, body string) error {
	n.mu.Lock()
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	n.mu.Unlock()
	n.fired <- struct{}{}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subjects)
}

func TestPostJSONRetriesNetworkFailures(t *testing.T) {
	rt := &failingRoundTripper{err: errors.New("connection refused")}
	notifier := newRecordingNotifier()

	client := New(Options{
		HTTPClient: &http.Client{Transport: rt},
		Attempts:   3,
		Backoff:    20 * time.Millisecond,
		Notifier:   notifier,
	})

	start := time.Now()
	_, err := client.PostJSON(context.Background(), "http://example.invalid/api", map[string]string{"k": "v"})
	elapsed := time.Since(start)

	require.Error(t, err)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindNetwork, te.Kind)

	// 3 attempts total means exactly 2 backoff delays.
	assert.Equal(t, int32(3), rt.calls.Load())
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)

	select {
	case <-notifier.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("operator alert was not sent")
	}
	assert.Equal(t, 1, notifier.count())
}

func TestPostJSONClassifiesTimeouts(t *testing.T) {
	rt := &failingRoundTripper{err: timeoutError{}}

	client := New(Options{
		HTTPClient: &http.Client{Transport: rt},
		Attempts:   2,
		Backoff:    time.Millisecond,
	})

	_, err := client.PostJSON(context.Background(), "http://example.invalid/api", nil)

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindTimeout, te.Kind)
	assert.Equal(t, int32(2), rt.calls.Load())
}

func TestPostJSONDoesNotRetryServedResponses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := newRecordingNotifier()
	client := New(Options{
		HTTPClient: srv.Client(),
		Attempts:   3,
		Backoff:    time.Millisecond,
		Notifier:   notifier,
	})

	_, err := client.PostJSON(context.Background(), srv.URL, map[string]int{"n": 1})

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindStatus, te.Kind)
	assert.Equal(t, http.StatusTooManyRequests, te.Status)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, notifier.count(), "served responses must not page the operator")
}

func TestPostJSONKeepsCredentialOutOfLogsAndAlerts(t *testing.T) {
	const apiKey = "secret-api-key"

	rt := &failingRoundTripper{err: errors.New("connection refused")}
	notifier := newRecordingNotifier()

	var logs bytes.Buffer
	client := New(Options{
		HTTPClient: &http.Client{Transport: rt},
		Logger:     slog.New(slog.NewTextHandler(&logs, nil)),
		Headers:    map[string]string{"x-goog-api-key": apiKey},
		Attempts:   3,
		Backoff:    time.Millisecond,
		Notifier:   notifier,
	})

	_, err := client.PostJSON(context.Background(), "http://example.invalid/v1beta/models/m:generateContent", nil)
	require.Error(t, err)

	select {
	case <-notifier.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("operator alert was not sent")
	}

	require.Len(t, rt.headers(), 3)
	for _, h := range rt.headers() {
		assert.Equal(t, apiKey, h.Get("x-goog-api-key"))
	}

	assert.NotContains(t, logs.String(), apiKey, "retry and exhaustion logs carry the URL")

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	for _, body := range notifier.bodies {
		assert.NotContains(t, body, apiKey)
	}
}

func TestPostJSONReturnsBodyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("content-type"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(Options{HTTPClient: srv.Client()})

	raw, err := client.PostJSON(context.Background(), srv.URL, map[string]string{"hello": "world"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}

func TestPostJSONStopsOnCanceledContext(t *testing.T) {
	rt := &failingRoundTripper{err: errors.New("connection refused")}
	notifier := newRecordingNotifier()

	client := New(Options{
		HTTPClient: &http.Client{Transport: rt},
		Attempts:   3,
		Backoff:    time.Hour,
		Notifier:   notifier,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.PostJSON(ctx, "http://example.invalid/api", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "backoff sleep must honor cancellation")
}
