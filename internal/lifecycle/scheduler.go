package lifecycle

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/models"
)

// TransitionDelay pairs a target status with the delay, relative to
// now, after which its control message should be consumed. A negative
// delay means the transition is already due.
type TransitionDelay struct {
	Target  models.CompetitionStatus
	DelayMs int64
}

// CalculateTransitionDelays is pure arithmetic over the competition's
// window and the two grace periods:
//
//	running           fires at StartsAt
//	submissions_ended fires at EndsAt
//	winners_announced fires at EndsAt + winnerGrace
//	archived          fires at EndsAt + archiveGrace
func CalculateTransitionDelays(now time.Time, startsAt, endsAt time.Time, winnerGrace, archiveGrace time.Duration) []TransitionDelay {
	delayTo := func(target time.Time) int64 {
		return target.Sub(now).Milliseconds()
	}

	return []TransitionDelay{
		{Target: models.StatusRunning, DelayMs: delayTo(startsAt)},
		{Target: models.StatusSubmissionsEnded, DelayMs: delayTo(endsAt)},
		{Target: models.StatusWinnersAnnounced, DelayMs: delayTo(endsAt.Add(winnerGrace))},
		{Target: models.StatusArchived, DelayMs: delayTo(endsAt.Add(archiveGrace))},
	}
}

// Publisher is the slice of the transport the scheduler needs.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg) *apperrors.AppError
}

// Scheduler emits one delayed control message per future transition of
// a competition. Actual delaying is the transport's job: each message
// carries its delay directive and the status consumer parks it until
// due.
type Scheduler struct {
	publisher    Publisher
	routes       messaging.Routes
	winnerGrace  time.Duration
	archiveGrace time.Duration
	logger       *logger.Logger
}

func NewScheduler(publisher Publisher, routes messaging.Routes, winnerGrace, archiveGrace time.Duration, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		publisher:    publisher,
		routes:       routes,
		winnerGrace:  winnerGrace,
		archiveGrace: archiveGrace,
		logger:       logger.With("component", "lifecycle-scheduler"),
	}
}

// ScheduleTransitions publishes the full set of control messages for a
// competition. Overdue transitions are sent with a zero delay so they
// fire on first delivery. There is no retraction mechanism: once
// scheduled, a message will eventually fire and the state machine is
// responsible for treating stale ones as no-ops.
func (s *Scheduler) ScheduleTransitions(ctx context.Context, competition *models.Competition) *apperrors.AppError {
	now := time.Now().UTC()
	delays := CalculateTransitionDelays(now, competition.StartsAt, competition.EndsAt, s.winnerGrace, s.archiveGrace)

	for _, d := range delays {
		delayMs := d.DelayMs
		if delayMs < 0 {
			delayMs = 0
		}

		control := models.StatusControlMessage{
			CompetitionId:  competition.CompetitionId,
			TargetStatus:   d.Target.String(),
			CreatedAt:      now,
			DelayMs:        delayMs,
			OrganizerEmail: competition.OrganizerEmail,
		}

		data, err := control.MarshalWire()
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal status control message")
		}

		msg := &nats.Msg{
			Subject: s.routes.StatusControl,
			Data:    data,
			Header:  nats.Header{},
		}
		msg.Header.Set(models.KindHeader, string(models.KindStatusTransition))

		if pubErr := s.publisher.PublishMsg(ctx, msg); pubErr != nil {
			return pubErr
		}

		s.logger.Info("Scheduled lifecycle transition",
			"competition_id", competition.CompetitionId,
			"target_status", d.Target.String(),
			"delay_ms", delayMs,
		)
	}

	return nil
}
