package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bazaarly/bazaarly-backend/internal/subscriptions"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

// SubscriptionBillingJob bills every subscription box whose delivery
// date has passed. Underfunded boxes are skipped, not failed, so one
// broke wallet never blocks the rest of the run.
type SubscriptionBillingJob struct {
	subscriptions subscriptions.Service
	logg          *logger.Logger
}

// NewSubscriptionBillingJob builds the billing job.
func NewSubscriptionBillingJob(svc subscriptions.Service, logg *logger.Logger) (*SubscriptionBillingJob, error) {
	if svc == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &SubscriptionBillingJob{subscriptions: svc, logg: logg}, nil
}

// Name identifies the job in logs and metrics.
func (j *SubscriptionBillingJob) Name() string { return "subscription-billing" }

// Run processes all due boxes as of now.
func (j *SubscriptionBillingJob) Run(ctx context.Context) error {
	report, err := j.subscriptions.ProcessDue(ctx, time.Now().UTC())
	if report != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"due":       report.Due,
			"processed": report.Processed,
			"skipped":   report.Skipped,
			"failed":    report.Failed,
		})
		j.logg.Info(logCtx, "subscription billing run finished")
	}
	if err != nil {
		return fmt.Errorf("process due boxes: %w", err)
	}
	return nil
}
