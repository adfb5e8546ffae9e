package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/database"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/models"
	"github.com/contestpipe/contestpipe/internal/repository"
)

// StatusNotifier publishes a structured event for every applied
// transition so dashboards can react without polling.
type StatusNotifier interface {
	PublishStatusChanged(ctx context.Context, competition *models.Competition, oldStatus, newStatus models.CompetitionStatus) *apperrors.AppError
}

// StateMachine validates and applies competition status transitions,
// appending one audit row per applied transition.
//
// Which transitions are allowed is intentionally permissive: any
// recognized target is accepted so administrator overrides (manual
// cancellation, forward jumps) are never rejected. Ordering discipline
// comes from two guards only: terminal competitions accept nothing,
// and a non-cancel transition to an earlier-or-equal lifecycle position
// is dropped as a stale control message.
type StateMachine struct {
	competitions repository.CompetitionRepository
	transitions  repository.TransitionRepository
	txRepo       database.TransactionRepository
	notifier     StatusNotifier
	logger       *logger.Logger
}

func NewStateMachine(
	competitions repository.CompetitionRepository,
	transitions repository.TransitionRepository,
	txRepo database.TransactionRepository,
	notifier StatusNotifier,
	logger *logger.Logger,
) *StateMachine {
	return &StateMachine{
		competitions: competitions,
		transitions:  transitions,
		txRepo:       txRepo,
		notifier:     notifier,
		logger:       logger.With("component", "status-state-machine"),
	}
}

// ApplyTransition moves a competition to targetStatus and records the
// transition. A target outside the recognized status set fails
// INVALID_STATUS and appends nothing. Stale or terminal-state
// transitions return nil without side effects.
func (m *StateMachine) ApplyTransition(ctx context.Context, competitionID, targetStatus, triggeredBy string) *apperrors.AppError {
	target, ok := models.ParseCompetitionStatus(targetStatus)
	if !ok {
		return apperrors.New(apperrors.CodeInvalidStatus,
			fmt.Sprintf("unrecognized competition status: %q", targetStatus))
	}

	competition, err := m.competitions.GetById(ctx, competitionID)
	if err != nil {
		return err
	}

	current := competition.Status

	if current.IsTerminal() {
		m.logger.Info("Ignoring transition for terminal competition",
			"competition_id", competitionID,
			"current_status", current.String(),
			"target_status", target.String(),
		)
		return nil
	}

	if target != models.StatusCancelled && target <= current {
		m.logger.Warn("Dropping stale lifecycle transition",
			"competition_id", competitionID,
			"current_status", current.String(),
			"target_status", target.String(),
			"triggered_by", triggeredBy,
		)
		return nil
	}

	transition := &models.StatusTransition{
		CompetitionId:  competitionID,
		OldStatus:      current.String(),
		NewStatus:      target.String(),
		TransitionedAt: time.Now().UTC(),
		TriggeredBy:    triggeredBy,
	}

	appendTx, err := m.transitions.GetAppendTransaction(ctx, transition)
	if err != nil {
		return err
	}
	updateTx := m.competitions.GetUpdateStatusTransaction(ctx, competitionID, target)

	builder := database.NewTransactionBuilder()
	if buildErr := builder.AddUpdate(updateTx); buildErr != nil {
		return apperrors.Wrap(buildErr, apperrors.CodeTransactionError, "failed to build status transition")
	}
	if buildErr := builder.AddPut(appendTx); buildErr != nil {
		return apperrors.Wrap(buildErr, apperrors.CodeTransactionError, "failed to build status transition")
	}

	if txErr := m.txRepo.Execute(ctx, builder); txErr != nil {
		return txErr
	}

	m.logger.Info("Applied lifecycle transition",
		"competition_id", competitionID,
		"old_status", current.String(),
		"new_status", target.String(),
		"triggered_by", triggeredBy,
	)

	competition.Status = target
	if notifyErr := m.notifier.PublishStatusChanged(ctx, competition, current, target); notifyErr != nil {
		// The transition is committed; a lost notification only delays
		// dashboards until their next refresh.
		m.logger.Error("Failed to publish status change notification",
			"competition_id", competitionID,
			"error", notifyErr,
		)
	}

	return nil
}
