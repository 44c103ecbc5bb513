package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

const defaultRetention = 14 * 24 * time.Hour

type outboxPruner interface {
	DeletePublishedBefore(cutoff time.Time) (int64, error)
}

// OutboxRetentionJob prunes outbox rows that were published longer ago
// than the retention window. Unpublished rows are never touched.
type OutboxRetentionJob struct {
	repo      outboxPruner
	logg      *logger.Logger
	retention time.Duration
}

// NewOutboxRetentionJob builds the retention job.
func NewOutboxRetentionJob(repo outboxPruner, logg *logger.Logger, retention time.Duration) (*OutboxRetentionJob, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &OutboxRetentionJob{repo: repo, logg: logg, retention: retention}, nil
}

// Name identifies the job in logs and metrics.
func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes published events older than the retention window.
func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeletePublishedBefore(cutoff)
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	})
	j.logg.Info(logCtx, "outbox retention pass finished")
	return nil
}
