package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/cinelines/internal/api"
	"github.com/hyperengineering/cinelines/internal/config"
	"github.com/hyperengineering/cinelines/internal/metrics"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "cinelines",
	Short:        "Cinelines - movie dialogue query and ingest service",
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statsCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("configuration loaded",
		"backend", cfg.Storage.Backend,
		"log_level", cfg.Log.Level,
	)

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "backend", cfg.Storage.Backend)

	var m *metrics.Metrics
	var opts api.RouterOptions
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts.MetricsPath = cfg.Metrics.Path
	}
	opts.IngestLimiter = api.NewRateLimiter(cfg.Ingest.RateLimit, cfg.Ingest.Burst)

	handler := api.NewHandler(db, m, cfg.Storage.Backend, Version)
	router := api.NewRouter(handler, opts)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called.
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// Drain in-flight requests before closing the store they use.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger. Format "text" selects the text
// handler; anything else is JSON.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
