package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Snogger/ai-hairstyle-plugin/internal/blobstore"
	"github.com/Snogger/ai-hairstyle-plugin/internal/catalog"
	"github.com/Snogger/ai-hairstyle-plugin/internal/ledger"
	"github.com/Snogger/ai-hairstyle-plugin/internal/tryon"
)

// Runner executes one generation request end to end.
type Runner interface {
	Run(ctx context.Context, req tryon.Request) (tryon.Result, error)
}

// BookingMailer delivers booking notifications.
type BookingMailer interface {
	SendBooking(ctx context.Context, to []string, subject, body string, attachments []string) error
}

type Options struct {
	Pipeline Runner
	Catalog  *catalog.Catalog
	Ledger   ledger.Ledger
	Blobs    blobstore.Store
	Mailer   BookingMailer
	Logger   *slog.Logger

	PublicURL      string
	TokenSecret    string
	TokenTTL       time.Duration
	MaxUploadBytes int64
	RequestTimeout time.Duration
	StylistField   string
}

type Server struct {
	pipeline Runner
	catalog  *catalog.Catalog
	ledger   ledger.Ledger
	blobs    blobstore.Store
	mailer   BookingMailer
	logger   *slog.Logger
	tokens   *tokenIssuer

	publicURL      string
	maxUploadBytes int64
	requestTimeout time.Duration
	stylistField   string
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 240 * time.Second
	}
	stylistField := opts.StylistField
	if stylistField == "" {
		stylistField = "stylist"
	}

	return &Server{
		pipeline:       opts.Pipeline,
		catalog:        opts.Catalog,
		ledger:         opts.Ledger,
		blobs:          opts.Blobs,
		mailer:         opts.Mailer,
		logger:         logger,
		tokens:         newTokenIssuer(opts.TokenSecret, opts.TokenTTL),
		publicURL:      opts.PublicURL,
		maxUploadBytes: maxUpload,
		requestTimeout: requestTimeout,
		stylistField:   stylistField,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/token", s.handleToken)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("GET /images/{key...}", s.handleImage)
	mux.HandleFunc("POST /webhook/booking", s.handleBooking)
	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/analytics.csv", s.handleAnalyticsCSV)
	return withLogging(mux, s.logger)
}

type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Error: message})
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}
