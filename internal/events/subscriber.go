package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/escalation"
	"github.com/contestpipe/contestpipe/internal/lifecycle"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/models"
	"github.com/contestpipe/contestpipe/internal/repository"
)

const schedulerActor = "lifecycle-scheduler"

// EventSubscriber wires the worker's three consumers: the low- and
// high-priority submission channels and the delayed status control
// channel.
type EventSubscriber struct {
	subscriber   *messaging.Subscriber
	submissions  repository.SubmissionRepository
	stateMachine *lifecycle.StateMachine
	escalator    *escalation.Escalator
	routes       messaging.Routes
	maxDeliver   int
	logger       *logger.Logger
}

func NewEventSubscriber(
	client *messaging.Client,
	submissions repository.SubmissionRepository,
	stateMachine *lifecycle.StateMachine,
	escalator *escalation.Escalator,
	routes messaging.Routes,
	maxDeliver int,
	logger *logger.Logger,
) *EventSubscriber {
	return &EventSubscriber{
		subscriber:   messaging.NewSubscriber(client, logger),
		submissions:  submissions,
		stateMachine: stateMachine,
		escalator:    escalator,
		routes:       routes,
		maxDeliver:   maxDeliver,
		logger:       logger.With("component", "event-subscriber"),
	}
}

func (s *EventSubscriber) Start(ctx context.Context) error {
	s.logger.Info("Starting event subscriptions")

	if err := s.subscribeToSubmissions(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to submission channels: %w", err)
	}

	if err := s.subscribeToStatusControl(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to status control channel: %w", err)
	}

	s.logger.Info("All event subscriptions started")
	return nil
}

func (s *EventSubscriber) subscribeToSubmissions(ctx context.Context) error {
	channels := []struct {
		subject string
		name    string
	}{
		{subject: s.routes.HighPrioritySubmissions, name: "worker-submission-high"},
		{subject: s.routes.LowPrioritySubmissions, name: "worker-submission-low"},
	}

	for _, ch := range channels {
		cfg := messaging.ConsumerConfig{
			StreamName:    messaging.SubmissionsStream,
			ConsumerName:  ch.name,
			Durable:       ch.name,
			FilterSubject: ch.subject,
			AckPolicy:     "explicit",
			AckWait:       30 * time.Second,
			MaxDeliver:    s.maxDeliver,
		}

		s.logger.Info("Subscribing to submission channel",
			"channel", ch.subject,
			"consumer", ch.name,
		)

		if err := s.subscriber.Subscribe(ctx, cfg, s.handleSubmission, s.handleExhausted); err != nil {
			return err
		}
	}

	return nil
}

func (s *EventSubscriber) subscribeToStatusControl(ctx context.Context) error {
	cfg := messaging.ConsumerConfig{
		StreamName:    messaging.StatusStream,
		ConsumerName:  "worker-status-control",
		Durable:       "worker-status-control",
		FilterSubject: s.routes.StatusControl,
		AckPolicy:     "explicit",
		AckWait:       30 * time.Second,
	}

	s.logger.Info("Subscribing to status control channel",
		"channel", s.routes.StatusControl,
		"consumer", cfg.ConsumerName,
	)

	return s.subscriber.Subscribe(ctx, cfg, s.handleStatusControl, nil)
}

// handleSubmission commits the durable submission row. A redelivered,
// already-committed submission acks cleanly instead of duplicating.
func (s *EventSubscriber) handleSubmission(ctx context.Context, msg jetstream.Msg) error {
	envelope, err := models.UnmarshalSubmissionEnvelope(msg.Data())
	if err != nil {
		s.logger.Error("Failed to unmarshal submission envelope", "error", err)
		return err
	}

	tier := 0
	if raw := msg.Headers().Get(models.PriorityHeader); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			tier = parsed
		}
	}

	submission := &models.Submission{
		CompetitionId: envelope.CompetitionId,
		Email:         envelope.Email,
		FormData:      envelope.FormData,
		PriorityTier:  tier,
	}

	if createErr := s.submissions.Create(ctx, submission); createErr != nil {
		if apperrors.HasCode(createErr, apperrors.CodeAlreadyExists) {
			s.logger.Debug("Submission already committed, acking redelivery",
				"competition_id", envelope.CompetitionId,
			)
			return nil
		}
		return createErr
	}

	s.logger.Info("Submission committed",
		"competition_id", envelope.CompetitionId,
		"tier", tier,
	)

	return nil
}

// handleExhausted runs once the transport's retry budget for a message
// is spent and hands it to the dead-letter router.
func (s *EventSubscriber) handleExhausted(ctx context.Context, msg jetstream.Msg, err error) {
	kind := models.MessageKind(msg.Headers().Get(models.KindHeader))
	s.escalator.OnPermanentFailure(ctx, kind, msg.Data(), err.Error())
}

// handleStatusControl parks a control message until its delay elapses,
// then applies the transition.
func (s *EventSubscriber) handleStatusControl(ctx context.Context, msg jetstream.Msg) error {
	control, err := models.UnmarshalStatusControlMessage(msg.Data())
	if err != nil {
		s.logger.Error("Dropping malformed status control message", "error", err)
		return nil
	}

	if remaining := time.Until(control.DueAt()); remaining > 0 {
		return &messaging.RetryAfterError{Delay: remaining}
	}

	applyErr := s.stateMachine.ApplyTransition(ctx, control.CompetitionId, control.TargetStatus, schedulerActor)
	if applyErr != nil {
		if apperrors.HasCode(applyErr, apperrors.CodeInvalidStatus) {
			// A bad target never becomes valid; drop it instead of
			// cycling through redeliveries.
			s.logger.Error("Dropping control message with invalid status",
				"competition_id", control.CompetitionId,
				"target_status", control.TargetStatus,
			)
			return nil
		}
		return applyErr
	}

	return nil
}
