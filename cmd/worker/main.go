package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"pdflearn/internal/analyzer"
	"pdflearn/internal/analyzer/pipeline"
	"pdflearn/internal/config"
	"pdflearn/internal/logging"
	"pdflearn/internal/otel"
	"pdflearn/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := logging.Init(cfg.LogLevel, "pdflearn-worker")
	ctx := context.Background()

	shutdownTracing, err := otel.Init(ctx, "pdflearn-worker", logger)
	if err != nil {
		fatal(logger, "failed to initialize tracing", err)
	}
	defer shutdownTracing(context.Background())

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
	if err != nil {
		fatal(logger, "failed to initialize object storage", err)
	}

	metrics, err := analyzer.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		fatal(logger, "failed to register analyzer metrics", err)
	}

	runner := &pipeline.Pipeline{
		Topics:  pipeline.NewTopicExtractor(cfg.Analyzer, logger),
		Search:  pipeline.NewSearcher(cfg.Analyzer, nil, logger),
		TopN:    cfg.Analyzer.TopResources,
		OnStage: metrics.ObserveStage,
		Logger:  logger,
	}
	worker := analyzer.NewWorker(analyzer.WorkerOptions{
		Jobs:     analyzer.NewJobStore(rdb, 0),
		Blobs:    objStore,
		Runner:   runner,
		Metrics:  metrics,
		MaxBytes: cfg.Upload.MaxBytes,
		Logger:   logger,
	})

	if addr := os.Getenv("WORKER_METRICS_ADDR"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	srv := asynq.NewServer(
		analyzer.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Analyzer.WorkerConcurrency,
			Queues: map[string]int{
				analyzer.QueueName: 1,
			},
			Logger:   asynqLogger{logger.With("component", "asynq")},
			LogLevel: asynq.InfoLevel,
		},
	)

	logger.Info("starting worker", "concurrency", cfg.Analyzer.WorkerConcurrency)
	// Run blocks until SIGTERM or SIGINT and drains in-flight tasks
	if err := srv.Run(analyzer.NewMux(worker)); err != nil {
		fatal(logger, "worker error", err)
	}
	logger.Info("worker stopped")
}

// asynqLogger routes asynq's own logs through slog.
type asynqLogger struct{ l *slog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
