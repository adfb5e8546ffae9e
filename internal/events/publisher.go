package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/models"
)

// NotificationPublisher pushes structured events to the real-time
// notification channel consumed by external dashboards.
type NotificationPublisher struct {
	publisher *messaging.Publisher
	routes    messaging.Routes
	logger    *logger.Logger
}

func NewNotificationPublisher(client *messaging.Client, routes messaging.Routes, logger *logger.Logger) *NotificationPublisher {
	return &NotificationPublisher{
		publisher: messaging.NewPublisher(client),
		routes:    routes,
		logger:    logger.With("component", "notification-publisher"),
	}
}

// PublishStatusChanged emits one event per applied lifecycle
// transition. Publicly visible statuses carry a rendered fragment so
// dashboards can display copy without templating knowledge.
func (p *NotificationPublisher) PublishStatusChanged(ctx context.Context, competition *models.Competition, oldStatus, newStatus models.CompetitionStatus) *apperrors.AppError {
	payload := map[string]interface{}{
		"event":          "competition.status_changed",
		"competitionId":  competition.CompetitionId,
		"oldStatus":      oldStatus.String(),
		"newStatus":      newStatus.String(),
		"transitionedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}

	if newStatus.IsPublic() {
		payload["publicFragment"] = renderPublicFragment(competition, newStatus)
	}

	return p.publish(ctx, payload)
}

// PublishSnapshotCaptured emits one event per persisted stats snapshot.
func (p *NotificationPublisher) PublishSnapshotCaptured(ctx context.Context, snapshot *models.StatsSnapshot) *apperrors.AppError {
	return p.publish(ctx, map[string]interface{}{
		"event":         "competition.stats_captured",
		"competitionId": snapshot.CompetitionId,
		"initiated":     snapshot.InitiatedCount,
		"processed":     snapshot.ProcessedCount,
		"failed":        snapshot.FailedCount,
		"capturedAt":    snapshot.CapturedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (p *NotificationPublisher) publish(ctx context.Context, payload map[string]interface{}) *apperrors.AppError {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal notification")
	}

	msg := &nats.Msg{
		Subject: p.routes.Notifications,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(models.KindHeader, string(models.KindNotification))

	return p.publisher.PublishMsg(ctx, msg)
}

func renderPublicFragment(competition *models.Competition, status models.CompetitionStatus) string {
	switch status {
	case models.StatusRunning:
		return fmt.Sprintf("%s is now open for submissions until %s.",
			competition.Title, competition.EndsAt.UTC().Format("Jan 2, 15:04 MST"))
	case models.StatusSubmissionsEnded:
		return fmt.Sprintf("Submissions for %s are closed. Winners will be drawn shortly.", competition.Title)
	case models.StatusWinnersAnnounced:
		return fmt.Sprintf("Winners of %s have been announced.", competition.Title)
	default:
		return ""
	}
}
