package worker

import (
	"context"
	"time"

	"github.com/careteam/mdt-api/internal/repository"
	"github.com/careteam/mdt-api/pkg/logger"
)

// OutboxCleanupWorker prunes processed events older than the retention
// window so the outbox table stays bounded.
type OutboxCleanupWorker struct {
	repo          repository.OutboxRepository
	retentionDays int
	interval      time.Duration
	logger        *logger.Logger
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retentionDays int, interval time.Duration, logger *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:          repo,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -w.retentionDays)
			deleted, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
			if err != nil {
				w.logger.Error(err, "Failed to prune processed outbox events")
				continue
			}
			if deleted > 0 {
				w.logger.Info("Pruned processed outbox events", "deleted", deleted)
			}
		}
	}
}
