package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OverdueSweepJobName is the name of the overdue invoice sweep job
const OverdueSweepJobName = "overdue_sweep"

// OverdueMarker flags sent invoices whose due date has passed.
// Implemented by the invoice service; the interface keeps the job from
// importing the service package directly.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int64, error)
}

// OverdueSweepJob transitions SENT invoices past their due date to OVERDUE.
type OverdueSweepJob struct {
	invoices OverdueMarker
	logger   *zap.Logger
	timeout  time.Duration
}

// NewOverdueSweepJob creates a new overdue sweep job.
func NewOverdueSweepJob(invoices OverdueMarker, logger *zap.Logger, timeout time.Duration) *OverdueSweepJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OverdueSweepJob{
		invoices: invoices,
		logger:   logger,
		timeout:  timeout,
	}
}

// Run executes the sweep. Called by the scheduler.
func (j *OverdueSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	count, err := j.invoices.MarkOverdue(ctx)
	if err != nil {
		j.logger.Error("overdue sweep failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("overdue sweep completed",
		zap.Int64("marked_overdue", count),
		zap.Duration("duration", time.Since(start)))
}
