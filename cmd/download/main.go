package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhanyyudi/onemap-building-sg/internal/config"
	"github.com/dhanyyudi/onemap-building-sg/internal/downloader"
	"github.com/dhanyyudi/onemap-building-sg/internal/errlog"
	"github.com/dhanyyudi/onemap-building-sg/internal/keyspace"
	"github.com/dhanyyudi/onemap-building-sg/internal/metrics"
	"github.com/dhanyyudi/onemap-building-sg/internal/onemap"
	"github.com/dhanyyudi/onemap-building-sg/internal/sink"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application.
func main() {
	// Create a context that will be canceled when an interrupt signal is received.
	// This allows for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load application configuration.
	cfg := config.MustLoad()

	// Set up the logger based on the environment.
	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	// Make sure the output directory exists before the sinks open files in it.
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Build the output sink. The Postgres backend also needs a connection pool
	// and the target table.
	var pool *pgxpool.Pool
	sinkCfg := sink.Config{
		Type:       sink.Type(cfg.SinkType),
		OutputPath: cfg.OutputPath(),
		Logger:     logger,
	}
	if sinkCfg.Type == sink.TypePostgres {
		var err error
		pool, err = sink.NewDatabase(
			ctx, cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
		)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		sinkCfg.DB = pool
	}

	out, err := sink.New(sinkCfg)
	if err != nil {
		log.Fatalf("Failed to create output sink: %v", err)
	}
	if pg, ok := out.(*sink.PostgresSink); ok {
		if err = pg.Init(ctx); err != nil {
			log.Fatalf("Failed to prepare buildings table: %v", err)
		}
	}

	// Open the append-only error log for permanent failures.
	errSink := errlog.New(cfg.ErrorLogPath(), logger)

	// Init the OneMap client and the download engine.
	client := onemap.NewClient(cfg.RequestTimeout, cfg.RateLimit, logger)
	engine := downloader.New(logger, client, out, errSink, appMetrics, cfg.Workers, cfg.Retries, cfg.BatchSize)

	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	// Start the monitoring server in a goroutine so the download can run in main.
	go startMonitoringServer(ctx, logger, reg, pool, cfg.Port)

	summary, err := engine.Run(ctx, keyspace.Range{Start: cfg.RangeStart, End: cfg.RangeEnd})
	if err != nil {
		logger.ErrorContext(ctx, "Download did not finish cleanly", "error", err)
	}
	if summary != nil {
		logger.InfoContext(ctx, "Run summary",
			"keys", summary.Keys,
			"complete", summary.Complete,
			"partial", summary.Partial,
			"failed", summary.Failed,
			"records", summary.Records,
			"output", cfg.OutputPath(),
		)
	}

	if err = out.Close(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to close output sink", "error", err)
	}
	if err = errSink.Close(); err != nil {
		logger.ErrorContext(ctx, "Failed to close error log", "error", err)
	}

	logger.InfoContext(ctx, "Application stopped gracefully.")
}

// startMonitoringServer starts an HTTP server that provides health check and metrics endpoints.
// It listens on the specified port and logs the server's status and any errors encountered.
func startMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	pool *pgxpool.Pool,
	port int,
) {
	http.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		log.DebugContext(ctx, "Performing health checks...")
		status, body := http.StatusOK, "OK"
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				status, body = http.StatusServiceUnavailable, "DB ping failed"
			}
		}
		writer.WriteHeader(status)
		_, err := writer.Write([]byte(body))
		if err != nil {
			log.ErrorContext(ctx, "failed to write reply", "error", err)
		}

		log.DebugContext(ctx, "Health checks completed", "status", status)
	})
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.InfoContext(ctx, "Starting monitoring server", "port", port)
	readTimeout := 5
	writeTimeout := 10
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      http.DefaultServeMux,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		log.ErrorContext(ctx, "Monitoring server failed", "error", err)
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var logger *slog.Logger

	switch env {
	case envLocal:
		logger = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
			}),
		)
	case envDev:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case envProd:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelWarn,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}),
		)
	default:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelError,
			}),
		)

		logger.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return logger
}
