package admission

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/cache"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/models"
)

// Cache is the slice of the cache client the store depends on. Every
// operation is a single round-trip; there are no cross-key
// transactions, so a crash between RedeemToken and MarkVerified can
// consume a token without flipping the record. That at-most-once gap is
// accepted for the cache index.
type Cache interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	GetDel(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
}

// BeginResult is handed back to the web layer, which emails the token.
type BeginResult struct {
	SubmissionKey string
	Token         string
}

// AdmissionContext carries everything needed to resume admission after
// the token round-trip.
type AdmissionContext struct {
	SubmissionKey    string
	CompetitionId    string
	Email            string
	FormData         map[string]string
	CompetitionEndTs time.Time
}

// Store is the single source of truth for whether a
// (competition, email) identity has already attempted or completed
// admission.
type Store struct {
	cache              Cache
	verificationWindow time.Duration
	logger             *logger.Logger
}

func NewStore(cache Cache, verificationWindow time.Duration, logger *logger.Logger) *Store {
	return &Store{
		cache:              cache,
		verificationWindow: verificationWindow,
		logger:             logger.With("component", "admission-store"),
	}
}

// BeginAdmission writes a pending record and issues a single-use
// verification token, both bounded by the verification window. A
// record already present, whatever its status, fails with
// ALREADY_EXISTS; the loser of a concurrent double-submit observes the
// same, serialized by the cache's atomic existence-check-then-write.
func (s *Store) BeginAdmission(ctx context.Context, competitionID, email string, formData map[string]string, competitionEnd time.Time) (*BeginResult, *apperrors.AppError) {
	recordKey := models.AdmissionRecordKey(competitionID, email)

	record := models.AdmissionRecord{
		CompetitionId:    competitionID,
		Status:           models.AdmissionPendingVerification,
		FormData:         formData,
		CompetitionEndTs: competitionEnd.Unix(),
		CreatedAt:        time.Now().Unix(),
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal admission record")
	}

	created, err := s.cache.SetNX(ctx, recordKey, payload, s.verificationWindow)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to write admission record")
	}
	if !created {
		return nil, s.alreadyExists(ctx, recordKey)
	}

	token := uuid.New().String()
	tokenPayload, err := json.Marshal(models.VerificationToken{
		Email:         email,
		CompetitionId: competitionID,
		IssuedAt:      time.Now().Unix(),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal verification token")
	}

	if err := s.cache.Set(ctx, models.VerificationTokenKey(token), tokenPayload, s.verificationWindow); err != nil {
		// Without a token the pending record can never be redeemed, so
		// drop it rather than block the identity for the whole window.
		if delErr := s.cache.Del(ctx, recordKey); delErr != nil {
			s.logger.Error("Failed to drop admission record after token write failure",
				"submission_key", recordKey,
				"error", delErr,
			)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to write verification token")
	}

	return &BeginResult{
		SubmissionKey: recordKey,
		Token:         token,
	}, nil
}

// alreadyExists inspects the existing record so the caller can word its
// messaging around pending vs verified. The record is never replaced.
func (s *Store) alreadyExists(ctx context.Context, recordKey string) *apperrors.AppError {
	existing, err := s.cache.Get(ctx, recordKey)
	if err != nil {
		// Record expired between the SetNX and this read. The caller
		// can simply retry; surfacing the conflict is still correct.
		return apperrors.New(apperrors.CodeAlreadyExists, "a submission for this competition and email already exists")
	}

	var record models.AdmissionRecord
	if err := json.Unmarshal(existing, &record); err != nil {
		return apperrors.New(apperrors.CodeAlreadyExists, "a submission for this competition and email already exists")
	}

	if record.Status == models.AdmissionVerified {
		return apperrors.New(apperrors.CodeAlreadyExists, "this email has already entered the competition")
	}
	return apperrors.New(apperrors.CodeAlreadyExists, "a submission for this email is awaiting verification")
}

// RedeemToken atomically consumes the token and returns the pending
// admission context. An absent or expired token fails TOKEN_INVALID; a
// token bound to a different email fails EMAIL_MISMATCH. Either way the
// token is gone — single use is unconditional.
func (s *Store) RedeemToken(ctx context.Context, token, expectedEmail string) (*AdmissionContext, *apperrors.AppError) {
	payload, err := s.cache.GetDel(ctx, models.VerificationTokenKey(token))
	if err != nil {
		if err == cache.ErrMiss {
			return nil, apperrors.New(apperrors.CodeTokenInvalid, "verification token is invalid or expired")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to redeem verification token")
	}

	var tok models.VerificationToken
	if err := json.Unmarshal(payload, &tok); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to unmarshal verification token")
	}

	if tok.Email != expectedEmail {
		return nil, apperrors.New(apperrors.CodeEmailMismatch, "verification token is bound to a different email")
	}

	recordKey := models.AdmissionRecordKey(tok.CompetitionId, tok.Email)
	recordPayload, err := s.cache.Get(ctx, recordKey)
	if err != nil {
		if err == cache.ErrMiss {
			// Pending record expired before the token was redeemed;
			// the user restarts admission.
			return nil, apperrors.New(apperrors.CodeTokenInvalid, "admission expired, please submit again")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to read admission record")
	}

	var record models.AdmissionRecord
	if err := json.Unmarshal(recordPayload, &record); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to unmarshal admission record")
	}

	return &AdmissionContext{
		SubmissionKey:    recordKey,
		CompetitionId:    record.CompetitionId,
		Email:            tok.Email,
		FormData:         record.FormData,
		CompetitionEndTs: time.Unix(record.CompetitionEndTs, 0),
	}, nil
}

// MarkVerified rewrites the record as verified with a minimal payload,
// re-keyed with the competition's remaining lifetime as TTL so the
// dedup guard outlives the verification window and self-expires with
// the competition.
func (s *Store) MarkVerified(ctx context.Context, submissionKey string, remaining time.Duration) *apperrors.AppError {
	if remaining <= 0 {
		// Competition already closed; the guard has nothing left to
		// protect.
		if err := s.cache.Del(ctx, submissionKey); err != nil {
			return apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to drop admission record")
		}
		return nil
	}

	payload, err := json.Marshal(models.AdmissionRecord{
		Status: models.AdmissionVerified,
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal verified record")
	}

	if err := s.cache.Set(ctx, submissionKey, payload, remaining); err != nil {
		return apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to mark admission verified")
	}
	return nil
}

// Rollback removes admission state written before a downstream failure
// so the identity is not left blocked by an orphaned pending record.
func (s *Store) Rollback(ctx context.Context, submissionKey, token string) *apperrors.AppError {
	keys := []string{submissionKey}
	if token != "" {
		keys = append(keys, models.VerificationTokenKey(token))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		return apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to roll back admission state")
	}
	return nil
}

// IncrementSubmissionCount bumps the admitted-count for a competition.
// Mutation is increment-only; readers never read-modify-write.
func (s *Store) IncrementSubmissionCount(ctx context.Context, competitionID string) *apperrors.AppError {
	if _, err := s.cache.IncrBy(ctx, models.SubmissionCountKey(competitionID), 1); err != nil {
		return apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to increment submission count")
	}
	return nil
}

// SubmissionCount reads the admitted-count, defaulting to zero when the
// counter was never touched.
func (s *Store) SubmissionCount(ctx context.Context, competitionID string) (int64, *apperrors.AppError) {
	payload, err := s.cache.Get(ctx, models.SubmissionCountKey(competitionID))
	if err != nil {
		if err == cache.ErrMiss {
			return 0, nil
		}
		return 0, apperrors.Wrap(err, apperrors.CodeRedisOperationError, "failed to read submission count")
	}

	count, parseErr := strconv.ParseInt(string(payload), 10, 64)
	if parseErr != nil {
		return 0, apperrors.Wrap(parseErr, apperrors.CodeRedisOperationError, "malformed submission count")
	}
	return count, nil
}
