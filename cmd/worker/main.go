// Worker consumes scan decision events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, TELEMETRY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"qr-access-control/internal/config"
	"qr-access-control/internal/logging"
	"qr-access-control/internal/telemetry/loki"
)

// messageReader is the subset of *kafka.Reader the loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// eventPusher is the subset of *loki.Client the loop uses.
type eventPusher interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

const pushTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "qr-access-control-worker"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		logger.Fatal("LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.TelemetryKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker consuming",
		zap.String("topic", cfg.TelemetryKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("loki", cfg.LokiURL),
	)
	consume(ctx, reader, loki.NewClient(cfg.LokiURL, &http.Client{Timeout: pushTimeout}), logger)
	logger.Info("worker stopped")
}

// consume forwards messages until ctx ends. A message is committed once pushed, or once its
// push fails, so one bad line never blocks the partition.
func consume(ctx context.Context, reader messageReader, pusher eventPusher, logger *zap.Logger) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read failed", zap.Error(err))
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		if err := pusher.PushEventJSON(pushCtx, msg.Value); err != nil {
			logger.Warn("loki push failed", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
		cancel()
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Warn("kafka commit failed", zap.Error(err))
		}
	}
}
