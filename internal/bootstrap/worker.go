package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bisq-support/retrieval/internal/config"
	"github.com/bisq-support/retrieval/internal/infrastructure/queue/nats"
	"github.com/bisq-support/retrieval/internal/infrastructure/repository/postgres"
	"github.com/bisq-support/retrieval/internal/observability/metrics"
)

// WorkerApp is the corpus watcher: it polls the corpus version in postgres
// and publishes a corpus-updated event whenever it changes.
type WorkerApp struct {
	Config  config.Config
	Metrics *metrics.WorkerMetrics

	corpus *postgres.CorpusRepository
	events *nats.Events
	logger *slog.Logger

	closeFn func()
}

func NewWorker(cfg config.Config, logger *slog.Logger) (*WorkerApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	events, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init corpus events: %w", err)
	}

	return &WorkerApp{
		Config:  cfg,
		Metrics: metrics.NewWorkerMetrics("worker"),
		corpus:  postgres.NewCorpusRepository(db),
		events:  events,
		logger:  logger,
		closeFn: func() {
			events.Close()
			_ = db.Close()
		},
	}, nil
}

// Watch polls until ctx is cancelled. The first observed version is
// treated as the baseline and not published: subscribers index at startup
// anyway.
func (w *WorkerApp) Watch(ctx context.Context) error {
	lastVersion, err := w.pollOnce(ctx, "")
	if err != nil {
		w.logger.Warn("initial corpus version poll failed", "error", err)
	}

	ticker := time.NewTicker(w.Config.WorkerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			version, err := w.pollOnce(ctx, lastVersion)
			if err != nil {
				w.logger.Warn("corpus version poll failed", "error", err)
				continue
			}
			lastVersion = version
		}
	}
}

func (w *WorkerApp) pollOnce(ctx context.Context, lastVersion string) (string, error) {
	start := time.Now()
	version, err := w.corpus.CorpusVersion(ctx)
	changed := err == nil && lastVersion != "" && version != lastVersion
	w.Metrics.ObservePoll("worker", time.Since(start), changed, err)
	if err != nil {
		return lastVersion, err
	}

	if changed {
		publishErr := w.events.PublishCorpusUpdated(ctx, version)
		w.Metrics.ObservePublish("worker", publishErr)
		if publishErr != nil {
			// Keep the old baseline so the next tick retries the publish.
			return lastVersion, publishErr
		}
		w.logger.Info("corpus update published", "version", version)
	}
	return version, nil
}

func (w *WorkerApp) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
