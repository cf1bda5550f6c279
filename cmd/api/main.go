package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/crisis-tweet-etl/internal/adapter/httpapi"
	kafkaadapter "github.com/couchcryptid/crisis-tweet-etl/internal/adapter/kafka"
	"github.com/couchcryptid/crisis-tweet-etl/internal/config"
	"github.com/couchcryptid/crisis-tweet-etl/internal/labeler"
	"github.com/couchcryptid/crisis-tweet-etl/internal/observability"
	"github.com/couchcryptid/crisis-tweet-etl/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireModelURL(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	events, err := store.OpenEventStore(cfg.EventDBPath)
	if err != nil {
		logger.Error("failed to open event store", "path", cfg.EventDBPath, "error", err)
		os.Exit(1)
	}
	defer events.Close()

	model := labeler.NewClient(cfg, metrics, logger)

	// Event stream (feature-flagged via KAFKA_BROKERS).
	var publisher httpapi.EventPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		metrics.EventStreamEnabled.Set(1)
		logger.Info("event stream enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("event stream disabled")
	}

	srv := httpapi.NewServer(cfg, events, model, publisher, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
