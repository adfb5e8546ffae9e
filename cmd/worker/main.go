package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/contestpipe/contestpipe/internal/app"
	"github.com/contestpipe/contestpipe/internal/config"
)

func main() {
	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting contestpipe worker in %s mode", cfg.Server.Environment)

	ctx := context.Background()

	worker, appErr := app.New(ctx, cfg)
	if appErr != nil {
		log.Fatalf("Failed to initialize worker: %v", appErr)
	}

	if appErr := worker.Start(); appErr != nil {
		log.Fatalf("Failed to start worker: %v", appErr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")

	worker.Stop()

	log.Println("Worker stopped")
}
