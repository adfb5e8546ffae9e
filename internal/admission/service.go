package admission

import (
	"context"
	"time"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/models"
	"github.com/contestpipe/contestpipe/internal/routing"
)

// Service is the admission entry point consumed by the web layer. The
// web layer owns HTTP routing, form validation and user messaging; this
// service owns the dedup gate and the hop into the transport.
type Service interface {
	Begin(ctx context.Context, competitionID, email string, formData map[string]string, competitionEnd time.Time) (*BeginResult, *apperrors.AppError)
	Verify(ctx context.Context, token, email string) *apperrors.AppError
}

type admissionService struct {
	store  *Store
	router *routing.Router
	logger *logger.Logger
}

func NewService(store *Store, router *routing.Router, logger *logger.Logger) Service {
	return &admissionService{
		store:  store,
		router: router,
		logger: logger.With("component", "admission-service"),
	}
}

func (s *admissionService) Begin(ctx context.Context, competitionID, email string, formData map[string]string, competitionEnd time.Time) (*BeginResult, *apperrors.AppError) {
	result, err := s.store.BeginAdmission(ctx, competitionID, email, formData, competitionEnd)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Admission started",
		"competition_id", competitionID,
		"submission_key", result.SubmissionKey,
	)

	return result, nil
}

// Verify redeems the token, routes the now-verified submission and
// flips the dedup record to verified. A publish failure rolls back the
// pending record so the identity is not blocked by orphaned state; the
// token is already consumed by then and cannot be restored.
func (s *admissionService) Verify(ctx context.Context, token, email string) *apperrors.AppError {
	admCtx, err := s.store.RedeemToken(ctx, token, email)
	if err != nil {
		return err
	}

	envelope := models.SubmissionEnvelope{
		CompetitionId: admCtx.CompetitionId,
		Email:         admCtx.Email,
		FormData:      admCtx.FormData,
	}

	if routeErr := s.router.Route(ctx, envelope, admCtx.CompetitionEndTs); routeErr != nil {
		if rbErr := s.store.Rollback(ctx, admCtx.SubmissionKey, ""); rbErr != nil {
			s.logger.Error("Failed to roll back admission state after publish failure",
				"submission_key", admCtx.SubmissionKey,
				"error", rbErr,
			)
		}
		return routeErr
	}

	remaining := time.Until(admCtx.CompetitionEndTs)
	if markErr := s.store.MarkVerified(ctx, admCtx.SubmissionKey, remaining); markErr != nil {
		return markErr
	}

	s.logger.Info("Admission verified and routed",
		"competition_id", admCtx.CompetitionId,
		"submission_key", admCtx.SubmissionKey,
	)

	return nil
}
