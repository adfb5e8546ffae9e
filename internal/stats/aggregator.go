package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/models"
)

// AdmittedSource reads the cache-side admitted-count, defaulting to
// zero when the counter is absent.
type AdmittedSource interface {
	SubmissionCount(ctx context.Context, competitionID string) (int64, *apperrors.AppError)
}

// ProcessedSource counts the submissions the consumer has durably
// committed.
type ProcessedSource interface {
	CountByCompetition(ctx context.Context, competitionID string) (int64, *apperrors.AppError)
}

// DepthSource reads the current depth of a channel. Implementations
// are lossy by contract: an undeclared channel reads as zero.
type DepthSource interface {
	ChannelDepth(ctx context.Context, channel string) (int64, error)
}

// Aggregator reconciles the three independently-updated counters into a
// point-in-time snapshot.
type Aggregator struct {
	admitted  AdmittedSource
	processed ProcessedSource
	depth     DepthSource
	routes    messaging.Routes
	logger    *logger.Logger
}

func NewAggregator(admitted AdmittedSource, processed ProcessedSource, depth DepthSource, routes messaging.Routes, logger *logger.Logger) *Aggregator {
	return &Aggregator{
		admitted:  admitted,
		processed: processed,
		depth:     depth,
		routes:    routes,
		logger:    logger.With("component", "stats-aggregator"),
	}
}

// CaptureSnapshot produces one immutable snapshot for the competition.
// Any failed read is wrapped as SNAPSHOT_CAPTURE_FAILED naming the
// competition; the batch driver catches it per competition so one bad
// capture never blocks its siblings.
func (a *Aggregator) CaptureSnapshot(ctx context.Context, competition *models.Competition) (*models.StatsSnapshot, *apperrors.AppError) {
	initiated, err := a.admitted.SubmissionCount(ctx, competition.CompetitionId)
	if err != nil {
		return nil, a.captureFailed(competition.CompetitionId, "admitted-count", err)
	}

	processed, err := a.processed.CountByCompetition(ctx, competition.CompetitionId)
	if err != nil {
		return nil, a.captureFailed(competition.CompetitionId, "processed-count", err)
	}

	failed, depthErr := a.depth.ChannelDepth(ctx, a.routes.DeadLetterChannel(competition.CompetitionId))
	if depthErr != nil {
		return nil, a.captureFailed(competition.CompetitionId, "dead-letter depth", depthErr)
	}

	return &models.StatsSnapshot{
		SnapshotId:     uuid.New().String(),
		CompetitionId:  competition.CompetitionId,
		InitiatedCount: initiated,
		ProcessedCount: processed,
		FailedCount:    failed,
		CapturedAt:     time.Now().UTC(),
	}, nil
}

func (a *Aggregator) captureFailed(competitionID, source string, cause error) *apperrors.AppError {
	return apperrors.Wrap(cause, apperrors.CodeSnapshotCapture,
		fmt.Sprintf("failed to capture %s for competition %s", source, competitionID))
}
