package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contestpipe/contestpipe/internal/admission"
	"github.com/contestpipe/contestpipe/internal/cache"
	"github.com/contestpipe/contestpipe/internal/config"
	"github.com/contestpipe/contestpipe/internal/database"
	"github.com/contestpipe/contestpipe/internal/events"
	"github.com/contestpipe/contestpipe/internal/logger"
	"github.com/contestpipe/contestpipe/internal/messaging"
	"github.com/contestpipe/contestpipe/internal/repository"
	"github.com/contestpipe/contestpipe/internal/stats"
)

func main() {
	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.Default("contestpipe-statscollector")
	routes := messaging.DefaultRoutes()

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	dynamoClient, err := database.NewDynamoDBClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create DynamoDB client: %v", err)
	}

	natsClient, natsErr := messaging.NewClient(&messaging.Config{
		URL:           cfg.NATS.URL,
		MaxReconnect:  cfg.NATS.MaxReconnect,
		ReconnectWait: time.Duration(cfg.NATS.ReconnectWaitSeconds) * time.Second,
		Timeout:       time.Duration(cfg.NATS.TimeoutSeconds) * time.Second,
	})
	if natsErr != nil {
		log.Fatalf("Failed to connect to NATS: %v", natsErr)
	}
	defer natsClient.Close()

	// The collector may start before the worker; the stream its
	// notifications land on must exist either way.
	if err := natsClient.EnsureStream(context.Background(), messaging.NotificationsStream, routes.Notifications); err != nil {
		log.Fatalf("Failed to ensure notifications stream: %v", err)
	}

	admissionStore := admission.NewStore(
		redisClient,
		time.Duration(cfg.Admission.VerificationWindowSeconds)*time.Second,
		appLogger,
	)

	managementClient := messaging.NewManagementClient(
		cfg.Management.BaseURL,
		time.Duration(cfg.Management.TimeoutSeconds)*time.Second,
		appLogger,
	)

	competitionRepo := repository.NewCompetitionRepository(dynamoClient)
	submissionRepo := repository.NewSubmissionRepository(dynamoClient)
	snapshotRepo := repository.NewSnapshotRepository(dynamoClient)

	aggregator := stats.NewAggregator(admissionStore, submissionRepo, managementClient, routes, appLogger)
	notifier := events.NewNotificationPublisher(natsClient, routes, appLogger)

	collector := stats.NewCollector(
		aggregator,
		competitionRepo,
		snapshotRepo,
		notifier,
		time.Duration(cfg.Stats.CaptureIntervalSeconds)*time.Second,
		appLogger,
	)

	go collector.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down stats collector...")
	collector.Stop()
	log.Println("Stats collector stopped")
}
