/**
 * @description
 * This is the main entry point for the BudgetLink service. It wires the user
 * store, the Teller client and the optional broker and rate limiter into the
 * HTTP API and serves it until a termination signal arrives.
 *
 * Key features:
 * - Loads application configuration from environment variables.
 * - Selects the user store backend (TiDB Data API or PostgreSQL).
 * - Loads the Teller certificate once; without it the data route reports 500.
 * - Starts the HTTP server and implements graceful shutdown.
 */
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/budgetlink/budgetlink-service/internal/api"
	"github.com/budgetlink/budgetlink-service/internal/app"
	"github.com/budgetlink/budgetlink-service/internal/config"
	"github.com/budgetlink/budgetlink-service/internal/store"
	"github.com/budgetlink/budgetlink-service/pkg/dataapi"
	"github.com/budgetlink/budgetlink-service/pkg/rabbitmq"
	"github.com/budgetlink/budgetlink-service/pkg/tellerclient"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("cannot load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	userRepo, closeStore, err := newUserRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("cannot initialize user store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	tokens := app.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authService := app.NewAuthService(userRepo, tokens, publisher, logger)
	if redisClient := newRedisClient(ctx, cfg, logger); redisClient != nil {
		defer redisClient.Close()
		authService.SetLoginRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix), cfg.LoginRateLimitPerMinute)
	}

	enrollmentService := app.NewEnrollmentService(userRepo, publisher, logger)

	// A nil aggregator keeps the service up; the data route then answers 500.
	var aggregator app.Aggregator
	cert, err := tellerclient.LoadCertificate(cfg.TellerCertPath, cfg.TellerKeyPath)
	if err != nil {
		logger.Error("error reading Teller certificate or key files", "error", err)
	} else {
		aggregator = tellerclient.NewClient(cert, tellerclient.Options{
			BaseURL:            cfg.TellerAPIBaseURL,
			Timeout:            cfg.TellerTimeout,
			InsecureSkipVerify: cfg.TellerInsecureSkipVerify,
			Logger:             logger,
		})
		logger.Info("teller certificate and key loaded")
	}
	transactionService := app.NewTransactionService(enrollmentService, aggregator, cfg.AggregatorConcurrency, logger)

	router := api.NewRouter(api.Services{
		Auth:         authService,
		Enrollments:  enrollmentService,
		Transactions: transactionService,
	}, cfg.CORSAllowedOrigins, logger)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("could not start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		return
	}
	logger.Info("server gracefully stopped")
}

func newUserRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.UserRepository, func(), error) {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		client := dataapi.NewClient(cfg.DataAPIBaseURL, cfg.DataAPIPublicKey, cfg.DataAPIPrivateKey, logger)
		return store.NewDataAPIUserRepository(client, logger), func() {}, nil
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	dbConfig.MaxConns = 10
	dbConfig.MinConns = 2
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := store.RunMigrations(ctx, dbpool); err != nil {
		dbpool.Close()
		return nil, nil, err
	}
	logger.Info("database connection established")
	return store.NewPostgresUserRepository(dbpool, logger), dbpool.Close, nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) rabbitmq.Publisher {
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Warn("RABBITMQ_URL not set, events will not be published")
		return &rabbitmq.NoopPublisher{Logger: logger}
	}
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventsExchange, logger)
	if err != nil {
		logger.Warn("failed to connect to RabbitMQ, continuing without events", "url", rabbitmq.MaskURL(cfg.RabbitMQURL), "error", err)
		return &rabbitmq.NoopPublisher{Logger: logger}
	}
	logger.Info("rabbitmq producer connected", "exchange", cfg.EventsExchange)
	return producer
}

func newRedisClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisURL) == "" || cfg.LoginRateLimitPerMinute <= 0 {
		logger.Warn("redis url missing, login rate limiting disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed, login rate limiting disabled", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed, login rate limiting disabled", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}
