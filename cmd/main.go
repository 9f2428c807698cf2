package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/events"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/handler"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/service"
	"github.com/cloud-wave-best-zizon/stock-order-service/pkg/config"
	"github.com/cloud-wave-best-zizon/stock-order-service/pkg/middleware"
	"github.com/cloud-wave-best-zizon/stock-order-service/pkg/observability"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	ctx := context.Background()
	shutdownLogging, logErr := observability.SetupLogging(ctx, cfg)
	if logErr != nil {
		log.Println("OTLP log export disabled:", logErr)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.TracingEnabled() && logErr == nil)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	tp, shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		logger.Warn("Tracing exporter unavailable, spans will not be exported", zap.Error(err))
	}

	logger.Info("Service configuration",
		zap.String("port", cfg.Port),
		zap.String("storage_driver", cfg.StorageDriver),
		zap.Bool("kafka_enabled", cfg.KafkaEnabled()),
		zap.Bool("tracing_enabled", cfg.TracingEnabled()),
		zap.Int("commit_attempts", cfg.CommitAttempts))

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	var (
		publisher    service.OrderEventPublisher   = events.NopPublisher{}
		compensation service.CompensationPublisher = events.NopPublisher{}
		health                                     = func() error { return nil }
	)
	if cfg.KafkaEnabled() {
		kafkaProducer, err := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, logger)
		if err != nil {
			logger.Fatal("Failed to create Kafka producer", zap.Error(err))
		}
		defer kafkaProducer.Close()

		compensationProducer, err := events.NewCompensationProducer(cfg.KafkaBrokers, cfg.KafkaCompensationTopic, tp, logger)
		if err != nil {
			logger.Fatal("Failed to create compensation producer", zap.Error(err))
		}
		defer compensationProducer.Close()

		publisher, compensation, health = kafkaProducer, compensationProducer, kafkaProducer.HealthCheck
	}

	retry := service.RetryPolicy{Attempts: cfg.CommitAttempts, Delay: cfg.CommitRetryDelay}
	orderService := service.NewOrderService(store, publisher, compensation, logger, retry)
	catalogService := service.NewCatalogService(store, logger)

	if _, err := orderService.Reconcile(ctx); err != nil {
		if !errors.Is(err, domain.ErrIncompleteDelete) {
			logger.Fatal("Failed to reconcile deletion intents", zap.Error(err))
		}
		logger.Error("Incomplete order deletions need manual repair", zap.Error(err))
	}

	// Setup Gin Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(observability.ServiceName, otelgin.WithTracerProvider(tp)))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	v1 := router.Group("/api/v1")
	handler.Register(v1, middleware.HeaderIdentity{},
		handler.NewOrderHandler(orderService, logger),
		handler.NewCatalogHandler(catalogService, logger))

	v1.GET("/health", func(c *gin.Context) {
		status := gin.H{
			"status":  "healthy",
			"service": observability.ServiceName,
			"storage": cfg.StorageDriver,
		}
		if cfg.KafkaEnabled() {
			if err := health(); err != nil {
				status["kafka"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, status)
				return
			}
			status["kafka"] = "healthy"
		}
		c.JSON(http.StatusOK, status)
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown tracing", zap.Error(err))
	}
	if err := shutdownLogging(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown log export", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverDynamoDB:
		client, err := repository.NewDynamoDBClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewDynamoStore(client, cfg.OrderTableName), func() {}, nil

	case config.DriverPostgres:
		store, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return repository.NewMemoryStore(), func() {}, nil
	}
}
