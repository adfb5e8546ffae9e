package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/models"
)

// ChannelDeclarer lazily declares a durable dead-letter channel.
type ChannelDeclarer interface {
	EnsureStream(ctx context.Context, name string, subjects ...string) *apperrors.AppError
}

// Publisher is the slice of the transport used to park failed payloads.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) *apperrors.AppError
}

// Escalator redirects permanently-failed submissions to their
// competition's dead-letter channel. It runs after the transport's own
// retry budget is exhausted; it performs no retrying of its own.
//
// One instance is shared by every consumer of a worker, so the
// declared-channel cache is guarded by a mutex.
type Escalator struct {
	declarer  ChannelDeclarer
	publisher Publisher
	routes    messaging.Routes
	mu        sync.Mutex
	declared  map[string]bool
	logger    *logger.Logger
}

func NewEscalator(declarer ChannelDeclarer, publisher Publisher, routes messaging.Routes, logger *logger.Logger) *Escalator {
	return &Escalator{
		declarer:  declarer,
		publisher: publisher,
		routes:    routes,
		declared:  make(map[string]bool),
		logger:    logger.With("component", "failure-escalation"),
	}
}

// OnPermanentFailure moves a submission-class payload to its
// competition's dead-letter channel, annotated with the failure. Other
// message kinds are ignored. This never returns an error: a failure to
// dead-letter is logged and dropped, because raising inside a failure
// handler would take the worker down with it.
func (e *Escalator) OnPermanentFailure(ctx context.Context, kind models.MessageKind, payload []byte, errorDetail string) {
	switch kind {
	case models.KindSubmission:
		// fall through to escalation below
	case models.KindStatusTransition, models.KindWinnerTrigger, models.KindVerification, models.KindNotification:
		e.logger.Debug("Skipping dead-letter for non-submission message", "kind", string(kind))
		return
	default:
		e.logger.Warn("Skipping dead-letter for unknown message kind", "kind", string(kind))
		return
	}

	envelope, err := models.UnmarshalSubmissionEnvelope(payload)
	if err != nil {
		e.logger.Error("Cannot dead-letter unparseable submission", "error", err)
		return
	}

	channel := e.routes.DeadLetterChannel(envelope.CompetitionId)

	if !e.ensureDeclared(ctx, channel) {
		return
	}

	entry := models.DeadLetterEntry{
		Envelope: *envelope,
		Error:    errorDetail,
		FailedAt: time.Now().UTC(),
	}

	data, err := entry.MarshalWire()
	if err != nil {
		e.logger.Error("Failed to marshal dead-letter entry", "error", err)
		return
	}

	if pubErr := e.publisher.Publish(ctx, channel, data); pubErr != nil {
		e.logger.Error("Failed to publish to dead-letter channel",
			"channel", channel,
			"competition_id", envelope.CompetitionId,
			"error", pubErr,
		)
		return
	}

	e.logger.Warn("Submission dead-lettered",
		"channel", channel,
		"competition_id", envelope.CompetitionId,
		"error_detail", errorDetail,
	)
}

// ensureDeclared declares the channel on first use. The lock is held
// across the declaration so concurrent failures for the same
// competition collapse into one declare call. A failed declaration is
// not cached; the next failure retries it.
func (e *Escalator) ensureDeclared(ctx context.Context, channel string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.declared[channel] {
		return true
	}

	if declErr := e.declarer.EnsureStream(ctx, channel, channel); declErr != nil {
		e.logger.Error("Failed to declare dead-letter channel",
			"channel", channel,
			"error", declErr,
		)
		return false
	}

	e.declared[channel] = true
	return true
}
