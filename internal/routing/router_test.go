package routing

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/models"
)

type fakePublisher struct {
	published []*nats.Msg
	err       *apperrors.AppError
}

func (f *fakePublisher) PublishMsg(ctx context.Context, msg *nats.Msg) *apperrors.AppError {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeCounter struct {
	increments []string
	err        *apperrors.AppError
}

func (f *fakeCounter) IncrementSubmissionCount(ctx context.Context, competitionID string) *apperrors.AppError {
	if f.err != nil {
		return f.err
	}
	f.increments = append(f.increments, competitionID)
	return nil
}

func testEnvelope() models.SubmissionEnvelope {
	return models.SubmissionEnvelope{
		CompetitionId: "comp-1",
		Email:         "entrant@example.com",
		FormData:      map[string]string{"answer": "42"},
	}
}

func TestRouteLowPriority(t *testing.T) {
	pub := &fakePublisher{}
	counter := &fakeCounter{}
	router := NewRouter(pub, counter, messaging.DefaultRoutes(), logger.Nop())

	err := router.Route(context.Background(), testEnvelope(), time.Now().Add(1*time.Hour))
	require.Nil(t, err)

	require.Len(t, pub.published, 1)
	msg := pub.published[0]
	assert.Equal(t, "low_priority_submission", msg.Subject)
	assert.Empty(t, msg.Header.Get(models.PriorityHeader))
	assert.Equal(t, string(models.KindSubmission), msg.Header.Get(models.KindHeader))

	assert.Equal(t, []string{"comp-1"}, counter.increments)
}

func TestRouteHighPriorityCarriesTier(t *testing.T) {
	pub := &fakePublisher{}
	counter := &fakeCounter{}
	router := NewRouter(pub, counter, messaging.DefaultRoutes(), logger.Nop())

	err := router.Route(context.Background(), testEnvelope(), time.Now().Add(8*time.Second))
	require.Nil(t, err)

	require.Len(t, pub.published, 1)
	msg := pub.published[0]
	assert.Equal(t, "high_priority_submission", msg.Subject)
	assert.Equal(t, "5", msg.Header.Get(models.PriorityHeader))
}

func TestRoutePublishFailurePropagates(t *testing.T) {
	pub := &fakePublisher{err: apperrors.New(apperrors.CodeEventPublishError, "broker down")}
	counter := &fakeCounter{}
	router := NewRouter(pub, counter, messaging.DefaultRoutes(), logger.Nop())

	err := router.Route(context.Background(), testEnvelope(), time.Now().Add(1*time.Hour))
	require.NotNil(t, err)
	assert.Equal(t, apperrors.CodeEventPublishError, err.Code)

	// The counter must not move when nothing was published.
	assert.Empty(t, counter.increments)
}

func TestRouteCounterFailurePropagates(t *testing.T) {
	pub := &fakePublisher{}
	counter := &fakeCounter{err: apperrors.New(apperrors.CodeRedisOperationError, "redis down")}
	router := NewRouter(pub, counter, messaging.DefaultRoutes(), logger.Nop())

	err := router.Route(context.Background(), testEnvelope(), time.Now().Add(1*time.Hour))
	require.NotNil(t, err)
	assert.Equal(t, apperrors.CodeRedisOperationError, err.Code)
}

func TestRouteCustomTopology(t *testing.T) {
	pub := &fakePublisher{}
	counter := &fakeCounter{}
	routes := messaging.Routes{
		LowPrioritySubmissions:  "alt_low",
		HighPrioritySubmissions: "alt_high",
	}
	router := NewRouter(pub, counter, routes, logger.Nop())

	require.Nil(t, router.Route(context.Background(), testEnvelope(), time.Now().Add(1*time.Hour)))
	require.Nil(t, router.Route(context.Background(), testEnvelope(), time.Now().Add(5*time.Second)))

	require.Len(t, pub.published, 2)
	assert.Equal(t, "alt_low", pub.published[0].Subject)
	assert.Equal(t, "alt_high", pub.published[1].Subject)
}
