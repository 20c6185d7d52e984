package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/Snogger/ai-hairstyle-plugin/internal/blobstore"
	"github.com/Snogger/ai-hairstyle-plugin/internal/catalog"
	"github.com/Snogger/ai-hairstyle-plugin/internal/config"
	"github.com/Snogger/ai-hairstyle-plugin/internal/gemini"
	"github.com/Snogger/ai-hairstyle-plugin/internal/httpclient"
	"github.com/Snogger/ai-hairstyle-plugin/internal/ledger"
	"github.com/Snogger/ai-hairstyle-plugin/internal/notify"
	"github.com/Snogger/ai-hairstyle-plugin/internal/server"
	"github.com/Snogger/ai-hairstyle-plugin/internal/transport"
	"github.com/Snogger/ai-hairstyle-plugin/internal/tryon"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("data dir create failed", "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		logger.Error("database open failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	// Single writer connection; counter increments stay serialized instead
	// of tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}

	cat, err := catalog.New(db, logger)
	if err != nil {
		logger.Error("catalog init failed", "err", err)
		os.Exit(1)
	}
	if cfg.AssetsDir != "" {
		if err := cat.SeedDir(context.Background(), cfg.AssetsDir); err != nil {
			logger.Error("catalog seed failed", "dir", cfg.AssetsDir, "err", err)
			os.Exit(1)
		}
	}

	usage, err := ledger.NewSQLite(db)
	if err != nil {
		logger.Error("ledger init failed", "err", err)
		os.Exit(1)
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	var mailer *notify.Mailer
	notifiers := notify.Multi{}
	if cfg.SMTPHost != "" && cfg.PrimaryEmail != "" {
		mailer, err = notify.NewMailer(notify.MailOptions{
			Host:         cfg.SMTPHost,
			Port:         cfg.SMTPPort,
			User:         cfg.SMTPUser,
			Password:     cfg.SMTPPassword,
			From:         cfg.SMTPFrom,
			PrimaryEmail: cfg.PrimaryEmail,
			Logger:       logger,
		})
		if err != nil {
			logger.Error("mailer init failed", "err", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, mailer)
	}
	if cfg.TelegramToken != "" && cfg.TelegramOpsChatID != 0 {
		tg, err := notify.NewTelegram(notify.TelegramOptions{
			Token:      cfg.TelegramToken,
			ChatID:     cfg.TelegramOpsChatID,
			HTTPClient: httpClient,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("telegram init failed", "err", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, tg)
	}

	var opsChannel transport.Notifier = notifiers
	if len(notifiers) == 0 {
		logger.Warn("no operator channel configured; persistent API failures will only be logged")
		opsChannel = notify.Noop{}
	}

	apiTransport := transport.New(transport.Options{
		HTTPClient:    httpClient,
		Logger:        logger,
		Headers:       map[string]string{"x-goog-api-key": cfg.GeminiAPIKey},
		Attempts:      cfg.RetryAttempts,
		Backoff:       cfg.RetryBackoff,
		RatePerSecond: cfg.RatePerSecond,
		Notifier:      opsChannel,
	})

	gem := gemini.New(gemini.Options{
		APIKey:        cfg.GeminiAPIKey,
		BaseURL:       cfg.GeminiBaseURL,
		APIVersion:    cfg.GeminiAPIVersion,
		DescribeModel: cfg.DescribeModel,
		ImageModel:    cfg.ImageModel,
		Transport:     apiTransport,
		Logger:        logger,
	})

	blobs, err := blobstore.NewFS(blobstore.Options{
		Root:   filepath.Join(cfg.DataDir, "blobs"),
		TTL:    cfg.GeneratedTTL,
		Logger: logger,
	})
	if err != nil {
		logger.Error("blob store init failed", "err", err)
		os.Exit(1)
	}
	defer blobs.Close()

	pipeline, err := tryon.New(tryon.Options{
		Describer:        gem,
		Synthesizer:      gem,
		References:       cat,
		Ledger:           usage,
		Store:            blobs,
		Logger:           logger,
		DescribeCacheTTL: cfg.DescribeCacheTTL,
		CallTimeout:      cfg.CallTimeout,
	})
	if err != nil {
		logger.Error("pipeline init failed", "err", err)
		os.Exit(1)
	}

	tokenSecret := cfg.TokenSecret
	if tokenSecret == "" {
		tokenSecret = randomSecret()
		logger.Warn("TOKEN_SECRET not set; issued tokens will not survive a restart")
	}

	srvOpts := server.Options{
		Pipeline:       pipeline,
		Catalog:        cat,
		Ledger:         usage,
		Blobs:          blobs,
		Logger:         logger,
		PublicURL:      cfg.PublicURL,
		TokenSecret:    tokenSecret,
		TokenTTL:       cfg.TokenTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
		StylistField:   cfg.StylistField,
	}
	if mailer != nil {
		srvOpts.Mailer = mailer
	}
	srv := server.New(srvOpts)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("server started", "addr", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
