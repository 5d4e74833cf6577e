package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"pdflearn/internal/analyzer"
	"pdflearn/internal/config"
	"pdflearn/internal/database"
	"pdflearn/internal/http/middleware"
	"pdflearn/internal/identity"
	"pdflearn/internal/logging"
	"pdflearn/internal/otel"
	"pdflearn/internal/repository/postgres"
	"pdflearn/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := logging.Init(cfg.LogLevel, "pdflearn-analyzer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "pdflearn-analyzer", logger)
	if err != nil {
		fatal(logger, "failed to initialize tracing", err)
	}

	// Tokens are verified against the same user store and revocation list as the API
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		fatal(logger, "failed to connect to database", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fatal(logger, "failed to connect to redis", err)
	}

	objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
	if err != nil {
		fatal(logger, "failed to initialize object storage", err)
	}

	verifier, err := identity.NewLocal(postgres.NewUserPostgres(db), rdb, identity.Options{
		Auth:       cfg.Auth,
		AppBaseURL: cfg.BaseURL,
		Logger:     logger,
	})
	if err != nil {
		fatal(logger, "failed to initialize token verifier", err)
	}

	metrics, err := analyzer.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		fatal(logger, "failed to register analyzer metrics", err)
	}
	queue := analyzer.NewQueue(cfg.Redis)
	defer queue.Close()

	server := analyzer.NewServer(analyzer.ServerOptions{
		Jobs:     analyzer.NewJobStore(rdb, 0),
		Blobs:    objStore,
		Queue:    queue,
		Verifier: verifier,
		Redis:    rdb,
		MaxBytes: cfg.Upload.MaxBytes,
		Metrics:  metrics,
		Logger:   logger,
	})

	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.Upload.MaxBytes) + 1<<20,
	})
	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger(logger))

	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		fatal(logger, "failed to register http metrics", err)
	}
	app.Use(promMW.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	server.Register(app)

	go func() {
		addr := ":" + cfg.Analyzer.Port
		logger.Info("starting analyzer", "addr", addr)
		if err := app.Listen(addr); err != nil {
			fatal(logger, "failed to start analyzer", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down analyzer")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logger.Error("analyzer forced shutdown", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTracing(closeCtx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}
	logger.Info("analyzer stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
