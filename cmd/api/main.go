package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"pdflearn/docs"
	"pdflearn/internal/analysis"
	"pdflearn/internal/audit"
	"pdflearn/internal/config"
	"pdflearn/internal/confirm"
	"pdflearn/internal/database"
	"pdflearn/internal/database/migration"
	handlers "pdflearn/internal/http/handler"
	"pdflearn/internal/http/middleware"
	"pdflearn/internal/identity"
	"pdflearn/internal/logging"
	"pdflearn/internal/otel"
	"pdflearn/internal/prefs"
	"pdflearn/internal/repository/postgres"
	"pdflearn/internal/service"
	"pdflearn/internal/session"
	"pdflearn/internal/shell"
	"pdflearn/internal/storage"
	"pdflearn/internal/workflow"
)

// @title PDF Learn API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	logger := logging.Init(cfg.LogLevel, "pdflearn-api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "pdflearn-api", logger)
	if err != nil {
		fatal(logger, "failed to initialize tracing", err)
	}

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		fatal(logger, "failed to connect to database", err)
	}
	defer db.Close()
	if err := migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host); err != nil {
		fatal(logger, "failed to migrate database", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fatal(logger, "failed to connect to redis", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
	if err != nil {
		fatal(logger, "failed to initialize object storage", err)
	}

	// Initialize repositories, identity and services
	users := postgres.NewUserPostgres(db)
	documents := postgres.NewDocumentPostgres(db)
	provider, err := identity.NewLocal(users, rdb, identity.Options{
		Auth:       cfg.Auth,
		AppBaseURL: cfg.BaseURL,
		Logger:     logger,
	})
	if err != nil {
		fatal(logger, "failed to initialize identity provider", err)
	}
	sessions := session.NewStore(provider, users, 5*time.Minute, logger)
	defer sessions.Close()

	sink := audit.NewHTTPSink(cfg.Analysis.BaseURL, audit.SinkOptions{Logger: logger})
	analysisClient := analysis.NewClient(cfg.Analysis, nil)
	tickets := confirm.NewStore(rdb, 0)

	accounts := service.NewAccountService(provider, users, sink, logger)
	resources := service.NewResourceService(documents, objStore, analysisClient, tickets, logger)
	browser := service.NewBrowserService(documents, objStore)

	wfMetrics, err := workflow.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		fatal(logger, "failed to register workflow metrics", err)
	}
	uploads := workflow.New(rdb, tickets, objStore, analysisClient, resources, workflow.Options{
		Upload:   cfg.Upload,
		Analysis: cfg.Analysis,
		Logger:   logger,
		Metrics:  wfMetrics,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// room for the multipart envelope around a maximum-size file
		BodyLimit: int(cfg.Upload.MaxBytes) + 1<<20,
	})

	// Register global middleware
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.RequestLogger(logger))

	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		fatal(logger, "failed to register http metrics", err)
	}
	app.Use(promMW.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	// Register HTTP routes with injected services
	handlers.RegisterRoutes(app, handlers.Dependencies{
		DB:        db,
		Redis:     rdb,
		Sessions:  sessions,
		Accounts:  accounts,
		Resources: resources,
		Browser:   browser,
		Uploads:   uploads,
		Prefs:     prefs.NewStore(rdb),
		Routes:    shell.Pages,
		Logger:    logger,
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info("starting API server", "addr", addr)
		if err := app.Listen(addr); err != nil {
			fatal(logger, "failed to start server", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logger.Error("server forced shutdown", "error", err)
	}

	// Stop background polling before the stores it writes to go away
	uploads.Close()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sink.Close(closeCtx); err != nil {
		logger.Warn("audit sink did not drain", "error", err)
	}
	if err := shutdownTracing(closeCtx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
