// Command person-api serves the event-sourced person registry over HTTP.
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

	"github.com/gin-gonic/gin"

	"github.com/zeferini/eventsourcing"
	"github.com/zeferini/eventsourcing/config"
	"github.com/zeferini/eventsourcing/eventstore/disk"
	"github.com/zeferini/eventsourcing/eventstore/kurrentdb"
	"github.com/zeferini/eventsourcing/eventstore/memory"
	"github.com/zeferini/eventsourcing/eventstore/postgres"
	"github.com/zeferini/eventsourcing/eventstore/sqlite"
	"github.com/zeferini/eventsourcing/httpapi"
	"github.com/zeferini/eventsourcing/httpapi/docs"
	"github.com/zeferini/eventsourcing/logging"
	"github.com/zeferini/eventsourcing/otel"
	"github.com/zeferini/eventsourcing/person"
)

const shutdownTimeout = 10 * time.Second

// @title Person Service API
// @version 1.0
// @description Event-sourced person registry
// @BasePath /
// @schemes http https
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("person-api stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := otel.Setup(ctx, otel.SetupConfig{
		Enabled:     cfg.OtelEnabled,
		Endpoint:    cfg.OtelEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("flush traces", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close event store", "error", err)
		}
	}()
	logger.Info("event store ready", "backend", cfg.EventStore)

	store = logging.WithStoreLogging(logger.With("component", "eventstore"), otel.WithStoreTelemetry(store))

	var persons person.Operations = person.NewService(store, person.WithSource(cfg.EventSource))
	persons = otel.WithServiceTelemetry(logging.WithServiceLogging(logger.With("component", "person"), persons))

	gin.SetMode(gin.ReleaseMode)
	docs.SwaggerInfo.Host = ""

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewHandler(persons, logger.With("component", "http"), httpapi.Options{AllowedOrigins: cfg.AllowedOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("person-api listening", "addr", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (eventsourcing.EventStore, error) {
	switch cfg.EventStore {
	case config.StorePostgres:
		return postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
			AutoMigrate:    cfg.AutoMigrate,
			ConnectTimeout: cfg.ConnectTimeout,
		})
	case config.StoreSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.StoreDisk:
		return disk.NewFileStore(cfg.DiskDir)
	case config.StoreKurrentDB:
		return kurrentdb.Open(cfg.KurrentDBURL, person.AggregateType)
	case config.StoreMemory:
		return memory.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown event store %q", cfg.EventStore)
}
