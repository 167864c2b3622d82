package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/config"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/logger"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/messaging"
	"github.com/rizkirmdhn/vimeo-scraper/internal/extractor/service"
	"github.com/rizkirmdhn/vimeo-scraper/internal/web/handler"
	"github.com/rizkirmdhn/vimeo-scraper/internal/web/templates"
	"github.com/rizkirmdhn/vimeo-scraper/internal/web/websocket"
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
		"component": "web_main",
		"config":    fmt.Sprintf("%+v", cfg.WebPanel),
		"extractor": fmt.Sprintf("%+v", cfg.Extractor),
	}).Debug("Web panel configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The broker is optional, events are only published when it is configured
	var publisher messaging.Publisher
	if cfg.RabbitMq.Enabled() {
		msgClient, err := messaging.NewRabbitMQClient(&cfg.RabbitMq, log)
		if err != nil {
			log.WithFields(logrus.Fields{
				"component": "web_main",
				"error":     err,
			}).Fatal("Failed to create RabbitMQ client")
		}
		defer msgClient.Close()
		publisher = msgClient
	} else {
		log.WithField("component", "web_main").Info("RabbitMQ not configured, extraction events stay local")
	}

	// Check environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize the gin router
	r := gin.Default()

	// Set up templates
	tmpl, err := templates.Load()
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "web_main",
			"error":     err,
		}).Fatal("Failed to load templates")
	}
	r.SetHTMLTemplate(tmpl)

	// Activity feed, off unless enabled since it shows every visitor's urls
	var hub *websocket.Hub
	if cfg.WebPanel.ActivityFeed {
		hub = websocket.NewHub(log)
		go hub.Run(ctx)
	}

	// Setup Handlers
	extractor := service.NewExtractorService(service.NewFetcher(&cfg.Extractor, log), log)
	h := handler.NewHandler(cfg, log, extractor, publisher, hub)

	// Register routes
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.WebPanel.Addr(),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		log.WithField("component", "web_main").Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithField("component", "web_main").WithError(err).Error("Server shutdown failed")
		}
	}()

	// Start the web server
	log.WithFields(logrus.Fields{
		"component": "web_main",
		"addr":      srv.Addr,
	}).Info("Server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithFields(logrus.Fields{
			"component": "web_main",
			"error":     err,
		}).Fatal("Failed to start server")
	}
}
