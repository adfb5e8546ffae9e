package app

import (
	"context"
	"time"

	"github.com/contestpipe/contestpipe/internal/admission"
	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/cache"
	"github.com/contestpipe/contestpipe/internal/config"
	"github.com/contestpipe/contestpipe/internal/database"
	"github.com/contestpipe/contestpipe/internal/escalation"
	"github.com/contestpipe/contestpipe/internal/events"
	"github.com/contestpipe/contestpipe/internal/lifecycle"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/repository"
	"github.com/contestpipe/contestpipe/internal/routing"
)

// App wires the worker process: submission consumers, the status
// control consumer and failure escalation, plus the admission service
// surface the web layer links against.
type App struct {
	cfg        *config.Config
	logger     *logger.Logger
	redis      *cache.RedisClient
	db         *database.DynamoDBClient
	natsClient *messaging.Client
	routes     messaging.Routes

	admissionStore   *admission.Store
	admissionService admission.Service
	scheduler        *lifecycle.Scheduler
	stateMachine     *lifecycle.StateMachine
	escalator        *escalation.Escalator
	notifier         *events.NotificationPublisher
	subscriber       *events.EventSubscriber

	cleanup []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, *apperrors.AppError) {
	app := &App{
		cfg:     cfg,
		routes:  messaging.DefaultRoutes(),
		cleanup: make([]func() error, 0),
	}

	if err := app.initLogger(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init logger")
	}

	if err := app.initCache(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init redis client")
	}

	if err := app.initDatabase(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init database")
	}

	if err := app.initNATS(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init nats client")
	}

	if err := app.initPipeline(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init pipeline components")
	}

	if err := app.initSubscriber(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to init messaging subscriber")
	}

	return app, nil
}

func (a *App) initLogger() *apperrors.AppError {
	if a.cfg.Server.Environment == "development" {
		a.logger = logger.Development("contestpipe-worker")
	} else {
		a.logger = logger.Default("contestpipe-worker")
	}
	return nil
}

func (a *App) initCache() *apperrors.AppError {
	redisClient, err := cache.NewRedisClient(a.cfg.Redis)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to connect to redis")
	}

	a.redis = redisClient
	a.cleanup = append(a.cleanup, redisClient.Close)

	return nil
}

func (a *App) initDatabase() *apperrors.AppError {
	dynamoClient, err := database.NewDynamoDBClient(a.cfg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create DynamoDB client")
	}

	a.db = dynamoClient
	return nil
}

func (a *App) initNATS(ctx context.Context) *apperrors.AppError {
	natsClient, err := messaging.NewClient(&messaging.Config{
		URL:           a.cfg.NATS.URL,
		MaxReconnect:  a.cfg.NATS.MaxReconnect,
		ReconnectWait: time.Duration(a.cfg.NATS.ReconnectWaitSeconds) * time.Second,
		Timeout:       time.Duration(a.cfg.NATS.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	a.natsClient = natsClient
	a.cleanup = append(a.cleanup, natsClient.Close)

	streams := []struct {
		name     string
		subjects []string
	}{
		{messaging.SubmissionsStream, []string{a.routes.LowPrioritySubmissions, a.routes.HighPrioritySubmissions}},
		{messaging.StatusStream, []string{a.routes.StatusControl}},
		{messaging.NotificationsStream, []string{a.routes.Notifications}},
	}

	for _, stream := range streams {
		if err := natsClient.EnsureStream(ctx, stream.name, stream.subjects...); err != nil {
			a.logger.Error("Failed to create stream",
				"error", err,
				"stream", stream.name,
			)
			return err
		}
		a.logger.Info("Stream ready", "stream", stream.name)
	}

	return nil
}

func (a *App) initPipeline() *apperrors.AppError {
	publisher := messaging.NewPublisher(a.natsClient)

	a.admissionStore = admission.NewStore(
		a.redis,
		time.Duration(a.cfg.Admission.VerificationWindowSeconds)*time.Second,
		a.logger,
	)

	router := routing.NewRouter(publisher, a.admissionStore, a.routes, a.logger)
	a.admissionService = admission.NewService(a.admissionStore, router, a.logger)

	a.notifier = events.NewNotificationPublisher(a.natsClient, a.routes, a.logger)

	competitionRepo := repository.NewCompetitionRepository(a.db)
	transitionRepo := repository.NewTransitionRepository(a.db)
	txRepo := database.NewTransactionRepository(a.db)

	a.stateMachine = lifecycle.NewStateMachine(competitionRepo, transitionRepo, txRepo, a.notifier, a.logger)

	a.scheduler = lifecycle.NewScheduler(
		publisher,
		a.routes,
		time.Duration(a.cfg.Lifecycle.WinnerGraceSeconds)*time.Second,
		time.Duration(a.cfg.Lifecycle.ArchiveGraceSeconds)*time.Second,
		a.logger,
	)

	a.escalator = escalation.NewEscalator(a.natsClient, publisher, a.routes, a.logger)

	return nil
}

func (a *App) initSubscriber(ctx context.Context) *apperrors.AppError {
	submissionRepo := repository.NewSubmissionRepository(a.db)

	a.subscriber = events.NewEventSubscriber(
		a.natsClient,
		submissionRepo,
		a.stateMachine,
		a.escalator,
		a.routes,
		a.cfg.NATS.MaxDeliver,
		a.logger,
	)

	if err := a.subscriber.Start(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternalServer, "failed to start subscriptions")
	}
	return nil
}

// AdmissionService exposes the admission entry point to the embedding
// web layer.
func (a *App) AdmissionService() admission.Service {
	return a.admissionService
}

// LifecycleScheduler exposes transition scheduling to whatever
// activates competitions (admin tooling, provisioning jobs).
func (a *App) LifecycleScheduler() *lifecycle.Scheduler {
	return a.scheduler
}

func (a *App) Start() *apperrors.AppError {
	a.logger.Info("Worker started successfully")
	return nil
}

func (a *App) Stop() *apperrors.AppError {
	a.logger.Info("Stopping worker...")

	for _, cleanup := range a.cleanup {
		if err := cleanup(); err != nil {
			a.logger.Error("Cleanup error", "error", err)
		}
	}

	a.logger.Info("Worker stopped")
	return nil
}
