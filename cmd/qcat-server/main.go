// Command qcat-server runs the Q&A catalog service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kilupskalvis/qcat/internal/remote/metastore"
	"github.com/kilupskalvis/qcat/internal/remote/server"
)

func main() {
	listen := flag.String("listen", envOrDefault("QCAT_LISTEN", "0.0.0.0:8730"), "Listen address")
	dataDir := flag.String("data-dir", envOrDefault("QCAT_DATA_DIR", "/var/lib/qcat-server"), "Data directory")
	adminToken := flag.String("admin-token", os.Getenv("QCAT_ADMIN_TOKEN"), "Admin API token")
	storeKind := flag.String("store", envOrDefault("QCAT_STORE", string(metastore.BackendBbolt)), "Catalog store backend (bbolt, sqlite)")
	editMode := flag.String("edit-mode", envOrDefault("QCAT_EDIT_MODE", string(metastore.EditFork)), "How edits are stored (fork, in-place)")
	logLevel := flag.String("log-level", envOrDefault("QCAT_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", envOrDefault("QCAT_LOG_FORMAT", "json"), "Log format (json, text)")
	tlsCert := flag.String("tls-cert", os.Getenv("QCAT_TLS_CERT"), "TLS certificate file")
	tlsKey := flag.String("tls-key", os.Getenv("QCAT_TLS_KEY"), "TLS key file")
	webhookURLs := flag.String("webhook-urls", os.Getenv("QCAT_WEBHOOK_URLS"), "Comma-separated webhook URLs to notify on catalog changes")
	flag.Parse()

	logger := newLogger(*logLevel, *logFormat)

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err, "path", *dataDir)
		os.Exit(1)
	}

	mode, err := metastore.ParseEditMode(*editMode)
	if err != nil {
		logger.Error("invalid edit mode", "error", err)
		os.Exit(1)
	}

	store, err := metastore.Open(metastore.Backend(*storeKind), *dataDir, mode)
	if err != nil {
		logger.Error("failed to open catalog store", "error", err, "store", *storeKind)
		os.Exit(1)
	}
	defer store.Close()

	tokens := server.NewFileTokenStore(filepath.Join(*dataDir, "tokens.json"), logger)
	if err := tokens.Load(); err != nil {
		logger.Error("failed to load token store", "error", err)
		os.Exit(1)
	}

	cfg := server.DefaultServerConfig()
	cfg.AdminToken = *adminToken
	if urls := splitList(*webhookURLs); len(urls) > 0 {
		cfg.Webhooks = server.NewWebhookNotifier(&server.WebhookConfig{URLs: urls}, logger)
		logger.Info("webhooks configured", "count", len(urls))
	}

	h, handlerCleanup := server.Handler(store, tokens, cfg, logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:              *listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting qcat-server",
			"listen", *listen,
			"data_dir", *dataDir,
			"store", *storeKind,
			"edit_mode", mode,
		)
		var err error
		if *tlsCert != "" && *tlsKey != "" {
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
