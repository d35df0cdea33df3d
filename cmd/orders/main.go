package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/medportal/internal/cache"
	"github.com/joao-fontenele/medportal/internal/catalog"
	"github.com/joao-fontenele/medportal/internal/domain"
	"github.com/joao-fontenele/medportal/internal/messaging"
	"github.com/joao-fontenele/medportal/internal/orders"
	"github.com/joao-fontenele/medportal/internal/pricing"
	"github.com/joao-fontenele/medportal/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := telemetry.NewLogger(os.Stdout, "orders")

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", "0.1.0",
		telemetry.HistogramBuckets("orders.value", 10_000, 50_000, 100_000, 500_000, 1_000_000, 5_000_000, 10_000_000, 50_000_000),
	)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	catalogServiceURL := os.Getenv("CATALOG_SERVICE_URL")
	if catalogServiceURL == "" {
		logger.Error("CATALOG_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	pricingMode, err := pricing.ParseMode(os.Getenv("PRICING_MODE"))
	if err != nil {
		logger.Error("invalid PRICING_MODE", "error", err)
		os.Exit(1)
	}

	statusPolicy, err := domain.ParseStatusPolicy(os.Getenv("ORDER_STATUS_POLICY"))
	if err != nil {
		logger.Error("invalid ORDER_STATUS_POLICY", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(postgresURL, "orders")
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: telemetry.ClientTransport(),
	}

	catalogClient := catalog.NewClient(catalogServiceURL, httpClient)

	// Checkout always prices against the catalog service; the cache only backs cart views.
	var products orders.ProductLookup = catalogClient
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		ttl := 30 * time.Second
		if raw := os.Getenv("CATALOG_CACHE_TTL"); raw != "" {
			if ttl, err = time.ParseDuration(raw); err != nil {
				logger.Error("invalid CATALOG_CACHE_TTL", "error", err)
				os.Exit(1)
			}
		}

		cached, err := catalog.NewCachedLookup(catalogClient, cache.NewRedisCache(redisAddr, "orders"), ttl, logger)
		if err != nil {
			logger.Error("failed to create product cache", "error", err)
			os.Exit(1)
		}
		products = cached
		logger.Info("cart product lookups cached", "redis_addr", redisAddr, "ttl", ttl.String())
	}

	opts := orders.Options{
		Calculator:       pricing.NewCalculator(pricingMode),
		StatusPolicy:     statusPolicy,
		CheckoutProducts: catalogClient,
	}

	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer := messaging.NewProducer(strings.Split(kafkaBrokers, ","))
		defer func() { _ = producer.Close() }()
		opts.Publisher = producer
	}

	handler, err := orders.NewHandler(
		orders.NewOrderRepository(db),
		orders.NewCartRepository(db),
		orders.NewSubscriptionRepository(db),
		products,
		opts,
		logger,
	)
	if err != nil {
		logger.Error("failed to create handler", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	handler.Register(mux, telemetry.WithHTTPRoute)
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      telemetry.ServerHandler(mux, "orders"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", port, "pricing_mode", pricingMode, "status_policy", statusPolicy)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
