package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindTimeout ErrorKind = "timeout"
	KindStatus  ErrorKind = "status"
)

// Error is an I/O-level failure of an outbound call. KindStatus means the
// server answered with a non-2xx response; that is never retried.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("transport: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether err is a transport failure worth another
// attempt. Served responses and parse problems are not.
func Retryable(err error) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == KindNetwork || te.Kind == KindTimeout
}

// Notifier receives an operator alert when a call keeps failing after all
// retry attempts.
type Notifier interface {
	Alert(ctx context.Context, subject, body string) error
}

type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger

	// Headers is set on every outbound request. Credentials belong here,
	// never in the URL: URLs end up in logs and operator alerts.
	Headers map[string]string

	Attempts      int
	Backoff       time.Duration
	RatePerSecond float64

	Notifier Notifier
}

type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	headers    map[string]string
	attempts   int
	backoff    time.Duration
	limiter    *rate.Limiter
	notifier   Notifier
}

func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 3
	}
	delay := opts.Backoff
	if delay <= 0 {
		delay = 2 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	return &Client{
		httpClient: opts.HTTPClient,
		logger:     logger,
		headers:    opts.Headers,
		attempts:   attempts,
		backoff:    delay,
		limiter:    limiter,
		notifier:   opts.Notifier,
	}
}

// PostJSON sends payload to url and returns the raw response body. Network
// and timeout failures are retried with a fixed backoff; when all attempts
// are spent the operator channel is alerted and the last error returned.
func (c *Client) PostJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	if c.httpClient == nil {
		return nil, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out []byte
	op := func() error {
		raw, err := c.doOnce(ctx, url, body)
		if err != nil {
			if Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = raw
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.backoff), uint64(c.attempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("outbound call failed, retrying", "url", url, "wait", wait, "err", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if Retryable(err) {
			c.alert(url, err)
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) doOnce(ctx context.Context, url string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classify(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{
			Kind:   KindStatus,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw))),
		}
	}

	return raw, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func (c *Client) alert(url string, err error) {
	c.logger.Error("outbound call exhausted retries", "url", url, "err", err)
	if c.notifier == nil {
		return
	}

	// The invoking request is already failing; do not hold it up for the
	// alert, and do not inherit its (likely expired) context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		subject := "Try-on API error"
		body := fmt.Sprintf("Persistent failure calling %s: %v", url, err)
		if aerr := c.notifier.Alert(ctx, subject, body); aerr != nil {
			c.logger.Error("operator alert failed", "err", aerr)
		}
	}()
}
