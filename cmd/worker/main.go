package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/text/currency"

	"github.com/joao-fontenele/medportal/internal/catalog"
	"github.com/joao-fontenele/medportal/internal/domain"
	"github.com/joao-fontenele/medportal/internal/email"
	"github.com/joao-fontenele/medportal/internal/messaging"
	"github.com/joao-fontenele/medportal/internal/telemetry"
	"github.com/joao-fontenele/medportal/internal/worker"
)

const consumerGroup = "notification-worker"

func main() {
	logger := telemetry.NewLogger(os.Stdout, "worker")

	shutdownTracer, err := telemetry.InitTracerProvider(context.Background(), "worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	emailServiceURL := os.Getenv("EMAIL_SERVICE_URL")
	if emailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	catalogServiceURL := os.Getenv("CATALOG_SERVICE_URL")
	if catalogServiceURL == "" {
		logger.Error("CATALOG_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		logger.Warn("ADMIN_EMAIL not set, stock shortages will only be logged")
	}

	unit := currency.KRW
	if code := os.Getenv("CURRENCY"); code != "" {
		if unit, err = currency.ParseISO(code); err != nil {
			logger.Error("invalid CURRENCY", "error", err)
			os.Exit(1)
		}
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: telemetry.ClientTransport(),
	}

	notificationHandler := worker.NewNotificationHandler(
		catalog.NewClient(catalogServiceURL, httpClient),
		email.NewClient(emailServiceURL, httpClient),
		adminEmail,
		unit,
		logger,
	)

	// A message that keeps failing is logged and skipped so it cannot block the partition.
	skipFailed := messaging.WithErrorHandler(func(ctx context.Context, msg kafka.Message, err error) error {
		logger.ErrorContext(ctx, "failed to handle message", "error", err, "topic", msg.Topic, "offset", msg.Offset)
		return nil
	})

	brokers := strings.Split(kafkaBrokers, ",")
	created := messaging.NewConsumer(brokers, domain.TopicOrderCreated, consumerGroup, skipFailed)
	defer func() { _ = created.Close() }()
	statusChanged := messaging.NewConsumer(brokers, domain.TopicOrderStatusChanged, consumerGroup, skipFailed)
	defer func() { _ = statusChanged.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting notification worker", "brokers", brokers, "currency", unit.String())

	err = worker.Run(ctx, logger,
		worker.Route{Source: created, Handler: notificationHandler.HandleOrderCreated},
		worker.Route{Source: statusChanged, Handler: notificationHandler.HandleStatusChanged},
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}

	logger.Info("consumer stopped")
}
