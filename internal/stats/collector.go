package stats

import (
	"context"
	"time"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/models"
	"github.com/contestpipe/contestpipe/internal/repository"
)

// SnapshotNotifier publishes a structured event for each persisted
// snapshot.
type SnapshotNotifier interface {
	PublishSnapshotCaptured(ctx context.Context, snapshot *models.StatsSnapshot) *apperrors.AppError
}

// Collector is the batch driver around the aggregator: every interval
// it captures one snapshot per eligible competition, sequentially.
// Only competitions in running or submissions_ended status are
// candidates.
type Collector struct {
	aggregator   *Aggregator
	competitions repository.CompetitionRepository
	snapshots    repository.SnapshotRepository
	notifier     SnapshotNotifier
	interval     time.Duration
	stopChan     chan struct{}
	logger       *logger.Logger
}

func NewCollector(
	aggregator *Aggregator,
	competitions repository.CompetitionRepository,
	snapshots repository.SnapshotRepository,
	notifier SnapshotNotifier,
	interval time.Duration,
	logger *logger.Logger,
) *Collector {
	return &Collector{
		aggregator:   aggregator,
		competitions: competitions,
		snapshots:    snapshots,
		notifier:     notifier,
		interval:     interval,
		stopChan:     make(chan struct{}),
		logger:       logger.With("component", "stats-collector"),
	}
}

func (c *Collector) Start() {
	c.logger.Info("Stats collector started", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)

	for {
		select {
		case <-ticker.C:
			c.RunCycle(context.Background())
		case <-c.stopChan:
			ticker.Stop()
			c.logger.Info("Stats collector stopped")
			return
		}
	}
}

func (c *Collector) Stop() error {
	close(c.stopChan)
	return nil
}

// RunCycle captures one snapshot per eligible competition. A failed
// capture is logged and skipped; it never aborts the rest of the run.
func (c *Collector) RunCycle(ctx context.Context) {
	competitions, err := c.competitions.ListByStatus(ctx, models.StatusRunning, models.StatusSubmissionsEnded)
	if err != nil {
		c.logger.Error("Failed to list eligible competitions", "error", err)
		return
	}

	for _, competition := range competitions {
		snapshot, captureErr := c.aggregator.CaptureSnapshot(ctx, competition)
		if captureErr != nil {
			c.logger.Error("Snapshot capture failed, skipping competition",
				"competition_id", competition.CompetitionId,
				"error", captureErr,
			)
			continue
		}

		if saveErr := c.snapshots.Save(ctx, snapshot); saveErr != nil {
			c.logger.Error("Failed to persist snapshot",
				"competition_id", competition.CompetitionId,
				"error", saveErr,
			)
			continue
		}

		if notifyErr := c.notifier.PublishSnapshotCaptured(ctx, snapshot); notifyErr != nil {
			c.logger.Error("Failed to publish snapshot notification",
				"competition_id", competition.CompetitionId,
				"error", notifyErr,
			)
		}

		c.logger.Info("Snapshot captured",
			"competition_id", competition.CompetitionId,
			"initiated", snapshot.InitiatedCount,
			"processed", snapshot.ProcessedCount,
			"failed", snapshot.FailedCount,
		)
	}
}
