package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bisq-support/retrieval/internal/bootstrap"
	"github.com/bisq-support/retrieval/internal/config"
	"github.com/bisq-support/retrieval/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer worker.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux(worker),
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()
	defer func() { _ = metricsServer.Close() }()

	logger.Info("corpus watcher started",
		"subject", cfg.NATSSubject,
		"poll_interval", cfg.WorkerPollInterval,
	)
	if err := worker.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("corpus watcher error: %v", err)
	}
}

func metricsMux(worker *bootstrap.WorkerApp) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", worker.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
