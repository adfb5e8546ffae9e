package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/database"
	"github.com/contestpipe/contestpipe/internal/escalation"
	"github.com/contestpipe/contestpipe/internal/lifecycle"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/models"
)

type fakeMsg struct {
	data   []byte
	header nats.Header
}

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) { return &jetstream.MsgMetadata{}, nil }
func (m *fakeMsg) Data() []byte                              { return m.data }
func (m *fakeMsg) Headers() nats.Header                      { return m.header }
func (m *fakeMsg) Subject() string                           { return "test_subject" }
func (m *fakeMsg) Reply() string                             { return "" }
func (m *fakeMsg) Ack() error                                { return nil }
func (m *fakeMsg) DoubleAck(ctx context.Context) error       { return nil }
func (m *fakeMsg) Nak() error                                { return nil }
func (m *fakeMsg) NakWithDelay(delay time.Duration) error    { return nil }
func (m *fakeMsg) InProgress() error                         { return nil }
func (m *fakeMsg) Term() error                               { return nil }
func (m *fakeMsg) TermWithReason(reason string) error        { return nil }

type fakeSubmissionRepo struct {
	created []*models.Submission
	err     *apperrors.AppError
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, submission *models.Submission) *apperrors.AppError {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, submission)
	return nil
}

func (f *fakeSubmissionRepo) CountByCompetition(ctx context.Context, competitionID string) (int64, *apperrors.AppError) {
	return int64(len(f.created)), nil
}

type fakeCompetitionRepo struct {
	competition *models.Competition
}

func (f *fakeCompetitionRepo) GetById(ctx context.Context, competitionID string) (*models.Competition, *apperrors.AppError) {
	return f.competition, nil
}

func (f *fakeCompetitionRepo) ListByStatus(ctx context.Context, statuses ...models.CompetitionStatus) ([]*models.Competition, *apperrors.AppError) {
	return nil, nil
}

func (f *fakeCompetitionRepo) GetUpdateStatusTransaction(ctx context.Context, competitionID string, status models.CompetitionStatus) types.Update {
	return types.Update{}
}

type fakeTransitionRepo struct {
	appended []*models.StatusTransition
}

func (f *fakeTransitionRepo) GetAppendTransaction(ctx context.Context, transition *models.StatusTransition) (types.Put, *apperrors.AppError) {
	f.appended = append(f.appended, transition)
	return types.Put{}, nil
}

type fakeTxRepo struct {
	executed int
}

func (f *fakeTxRepo) Execute(ctx context.Context, builder *database.TransactionBuilder) *apperrors.AppError {
	f.executed++
	return nil
}

type fakeNotifier struct{}

func (f *fakeNotifier) PublishStatusChanged(ctx context.Context, competition *models.Competition, oldStatus, newStatus models.CompetitionStatus) *apperrors.AppError {
	return nil
}

type fakeDLQPublisher struct {
	subjects []string
}

func (f *fakeDLQPublisher) Publish(ctx context.Context, subject string, data []byte) *apperrors.AppError {
	f.subjects = append(f.subjects, subject)
	return nil
}

type fakeDeclarer struct{}

func (f *fakeDeclarer) EnsureStream(ctx context.Context, name string, subjects ...string) *apperrors.AppError {
	return nil
}

type subscriberFixture struct {
	subscriber  *EventSubscriber
	submissions *fakeSubmissionRepo
	transitions *fakeTransitionRepo
	txRepo      *fakeTxRepo
	dlq         *fakeDLQPublisher
}

func newSubscriberFixture(currentStatus models.CompetitionStatus) *subscriberFixture {
	submissions := &fakeSubmissionRepo{}
	transitions := &fakeTransitionRepo{}
	txRepo := &fakeTxRepo{}
	dlq := &fakeDLQPublisher{}
	routes := messaging.DefaultRoutes()

	competitions := &fakeCompetitionRepo{
		competition: &models.Competition{
			CompetitionId: "comp-1",
			Status:        currentStatus,
		},
	}

	stateMachine := lifecycle.NewStateMachine(competitions, transitions, txRepo, &fakeNotifier{}, logger.Nop())
	escalator := escalation.NewEscalator(&fakeDeclarer{}, dlq, routes, logger.Nop())

	return &subscriberFixture{
		subscriber:  NewEventSubscriber(nil, submissions, stateMachine, escalator, routes, 5, logger.Nop()),
		submissions: submissions,
		transitions: transitions,
		txRepo:      txRepo,
		dlq:         dlq,
	}
}

func submissionMsg(t *testing.T, tier string) *fakeMsg {
	t.Helper()
	data, err := models.SubmissionEnvelope{
		CompetitionId: "comp-1",
		Email:         "entrant@example.com",
		FormData:      map[string]string{"answer": "42"},
	}.MarshalWire()
	require.NoError(t, err)

	header := nats.Header{}
	header.Set(models.KindHeader, string(models.KindSubmission))
	if tier != "" {
		header.Set(models.PriorityHeader, tier)
	}
	return &fakeMsg{data: data, header: header}
}

func controlMsg(t *testing.T, target string, createdAt time.Time, delayMs int64) *fakeMsg {
	t.Helper()
	data, err := models.StatusControlMessage{
		CompetitionId: "comp-1",
		TargetStatus:  target,
		CreatedAt:     createdAt,
		DelayMs:       delayMs,
	}.MarshalWire()
	require.NoError(t, err)
	return &fakeMsg{data: data, header: nats.Header{}}
}

func TestHandleSubmissionCommitsWithTier(t *testing.T) {
	fx := newSubscriberFixture(models.StatusRunning)

	err := fx.subscriber.handleSubmission(context.Background(), submissionMsg(t, "5"))
	require.NoError(t, err)

	require.Len(t, fx.submissions.created, 1)
	submission := fx.submissions.created[0]
	assert.Equal(t, "comp-1", submission.CompetitionId)
	assert.Equal(t, 5, submission.PriorityTier)
}

func TestHandleSubmissionMissingTierDefaultsToZero(t *testing.T) {
	fx := newSubscriberFixture(models.StatusRunning)

	require.NoError(t, fx.subscriber.handleSubmission(context.Background(), submissionMsg(t, "")))
	require.Len(t, fx.submissions.created, 1)
	assert.Equal(t, 0, fx.submissions.created[0].PriorityTier)
}

func TestHandleSubmissionRedeliveryAcks(t *testing.T) {
	fx := newSubscriberFixture(models.StatusRunning)
	fx.submissions.err = apperrors.New(apperrors.CodeAlreadyExists, "submission already committed")

	// An already-committed submission must ack, not cycle redeliveries.
	assert.NoError(t, fx.subscriber.handleSubmission(context.Background(), submissionMsg(t, "3")))
}

func TestHandleSubmissionDatabaseFailurePropagates(t *testing.T) {
	fx := newSubscriberFixture(models.StatusRunning)
	fx.submissions.err = apperrors.New(apperrors.CodeDatabaseError, "dynamo down")

	assert.Error(t, fx.subscriber.handleSubmission(context.Background(), submissionMsg(t, "3")))
}

func TestHandleStatusControlParksUntilDue(t *testing.T) {
	fx := newSubscriberFixture(models.StatusScheduled)

	msg := controlMsg(t, "running", time.Now(), 60_000)
	err := fx.subscriber.handleStatusControl(context.Background(), msg)

	var retryAfter *messaging.RetryAfterError
	require.True(t, errors.As(err, &retryAfter))
	assert.Greater(t, retryAfter.Delay, 55*time.Second)
	assert.LessOrEqual(t, retryAfter.Delay, 60*time.Second)

	assert.Equal(t, 0, fx.txRepo.executed)
}

func TestHandleStatusControlAppliesWhenDue(t *testing.T) {
	fx := newSubscriberFixture(models.StatusScheduled)

	msg := controlMsg(t, "running", time.Now().Add(-2*time.Minute), 60_000)
	require.NoError(t, fx.subscriber.handleStatusControl(context.Background(), msg))

	assert.Equal(t, 1, fx.txRepo.executed)
	require.Len(t, fx.transitions.appended, 1)
	assert.Equal(t, "running", fx.transitions.appended[0].NewStatus)
	assert.Equal(t, "lifecycle-scheduler", fx.transitions.appended[0].TriggeredBy)
}

func TestHandleStatusControlDropsInvalidTarget(t *testing.T) {
	fx := newSubscriberFixture(models.StatusRunning)

	msg := controlMsg(t, "exploded", time.Now().Add(-1*time.Minute), 0)
	assert.NoError(t, fx.subscriber.handleStatusControl(context.Background(), msg))
	assert.Equal(t, 0, fx.txRepo.executed)
}

func TestHandleStatusControlDropsMalformed(t *testing.T) {
	fx := newSubscriberFixture(models.StatusRunning)

	msg := &fakeMsg{data: []byte("not json"), header: nats.Header{}}
	assert.NoError(t, fx.subscriber.handleStatusControl(context.Background(), msg))
}

func TestHandleExhaustedDeadLettersSubmission(t *testing.T) {
	fx := newSubscriberFixture(models.StatusRunning)

	fx.subscriber.handleExhausted(context.Background(), submissionMsg(t, "5"),
		errors.New("persist failed after retries"))

	assert.Equal(t, []string{"dlq_competition_submission_comp-1"}, fx.dlq.subjects)
}

func TestHandleExhaustedIgnoresControlMessages(t *testing.T) {
	fx := newSubscriberFixture(models.StatusRunning)

	msg := controlMsg(t, "running", time.Now(), 0)
	msg.header.Set(models.KindHeader, string(models.KindStatusTransition))

	fx.subscriber.handleExhausted(context.Background(), msg, errors.New("apply failed"))
	assert.Empty(t, fx.dlq.subjects)
}
