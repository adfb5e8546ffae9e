package routing

import (
	"context"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/models"
)

// Publisher is the slice of the transport the router needs.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg) *apperrors.AppError
}

// AdmissionCounter increments the per-competition admitted-count. The
// increment must be atomic on the counter side; the router never reads
// the value back.
type AdmissionCounter interface {
	IncrementSubmissionCount(ctx context.Context, competitionID string) *apperrors.AppError
}

// Router stamps a verified submission with its priority tier and hands
// it to the correct channel.
type Router struct {
	publisher Publisher
	counter   AdmissionCounter
	routes    messaging.Routes
	logger    *logger.Logger
}

func NewRouter(publisher Publisher, counter AdmissionCounter, routes messaging.Routes, logger *logger.Logger) *Router {
	return &Router{
		publisher: publisher,
		counter:   counter,
		routes:    routes,
		logger:    logger.With("component", "submission-router"),
	}
}

// Route publishes the envelope to the low or high channel depending on
// urgency and bumps the admitted-count. A publish failure propagates to
// the caller as a hard error: the pending cache state must be rolled
// back there, since counter and queue are now inconsistent.
func (r *Router) Route(ctx context.Context, envelope models.SubmissionEnvelope, competitionEnd time.Time) *apperrors.AppError {
	secondsRemaining := int64(time.Until(competitionEnd).Seconds())
	tier := Classify(secondsRemaining)

	subject := r.routes.LowPrioritySubmissions
	if tier != TierNone {
		subject = r.routes.HighPrioritySubmissions
	}

	data, err := envelope.MarshalWire()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal submission envelope")
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(models.KindHeader, string(models.KindSubmission))
	if tier != TierNone {
		msg.Header.Set(models.PriorityHeader, strconv.Itoa(int(tier)))
	}

	if pubErr := r.publisher.PublishMsg(ctx, msg); pubErr != nil {
		return pubErr
	}

	if incrErr := r.counter.IncrementSubmissionCount(ctx, envelope.CompetitionId); incrErr != nil {
		return incrErr
	}

	r.logger.Debug("Routed submission",
		"competition_id", envelope.CompetitionId,
		"channel", subject,
		"tier", int(tier),
	)

	return nil
}
