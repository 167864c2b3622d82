package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rizkirmdhn/vimeo-scraper/internal/common/config"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/logger"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/messaging"
	"github.com/rizkirmdhn/vimeo-scraper/internal/recorder/service"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	log := logger.New(cfg)

	log.WithFields(logrus.Fields{
		"component": "recorder_main",
		"config":    fmt.Sprintf("%+v", cfg.Recorder),
	}).Debug("Recorder configuration loaded")

	if !cfg.RabbitMq.Enabled() {
		log.WithField("component", "recorder_main").Fatal("The recorder needs rabbitmq.url (or RABBITMQ_URL) to be set")
	}

	// Initialize RabbitMQ connection
	messageClient, err := messaging.NewRabbitMQClient(&cfg.RabbitMq, log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "recorder_main",
			"error":     err,
		}).Fatal("Failed to initialize RabbitMQ")
	}
	defer messageClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorderService := service.NewRecorderService(&cfg.Recorder, &cfg.RabbitMq, log, messageClient)

	// Start the service
	if err := recorderService.Start(ctx); err != nil {
		log.WithFields(logrus.Fields{
			"component": "recorder_main",
			"error":     err,
		}).Fatal("Failed to start Recorder service")
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Block until we receive a termination signal
	sig := <-sigCh
	log.WithFields(logrus.Fields{
		"component": "recorder_main",
		"signal":    sig,
	}).Info("Received signal, shutting down")

	recorderService.Stop()
}
