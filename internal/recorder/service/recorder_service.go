package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rizkirmdhn/vimeo-scraper/internal/common/config"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/messaging"
	"github.com/rizkirmdhn/vimeo-scraper/internal/extractor/export"
	"github.com/rizkirmdhn/vimeo-scraper/pkg/models"
	"github.com/sirupsen/logrus"
)

// RecorderService archives extraction events into a CSV file
type RecorderService struct {
	config     *config.RecorderConfig
	rabbitCfg  *config.RabbitMQConfig
	log        *logrus.Logger
	message    messaging.Client
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	// Appends to the archive are serialized
	mu sync.Mutex
}

// NewRecorderService creates a new RecorderService
func NewRecorderService(cfg *config.RecorderConfig, rabbitCfg *config.RabbitMQConfig, log *logrus.Logger, msg messaging.Client) *RecorderService {
	return &RecorderService{
		config:    cfg,
		rabbitCfg: rabbitCfg,
		log:       log,
		message:   msg,
	}
}

// Start declares the recorder queue and begins consuming.
// When the broker drops the consumer it is set up again until ctx is done or Stop is called.
func (s *RecorderService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	done, err := s.subscribe(ctx)
	if err != nil {
		cancel()
		return err
	}

	s.log.WithFields(logrus.Fields{
		"component": "recorder",
		"queue":     s.rabbitCfg.Queue.Recorder,
		"output":    s.config.Output,
	}).Info("Recorder consuming extraction events")

	s.wg.Add(1)
	go s.watch(ctx, done)

	return nil
}

// Stop stops consuming
func (s *RecorderService) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.wg.Wait()

	s.log.WithField("component", "recorder").Info("Recorder service stopped gracefully")
}

func (s *RecorderService) subscribe(ctx context.Context) (<-chan struct{}, error) {
	if err := s.setupMessaging(); err != nil {
		return nil, fmt.Errorf("failed to set up messaging: %w", err)
	}

	done, err := s.message.ConsumeWithContext(ctx, s.rabbitCfg.Queue.Recorder, func(msg []byte, routingKey string) error {
		return s.HandleMessage(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", s.rabbitCfg.Queue.Recorder, err)
	}

	return done, nil
}

// watch resubscribes whenever the consumer ends while ctx is still live
func (s *RecorderService) watch(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()

	retryDelay := time.Duration(s.rabbitCfg.ReconnectTimeout) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
		}
		if ctx.Err() != nil {
			return
		}

		s.log.WithField("component", "recorder").Warn("Consumer stopped, resubscribing")

		for attempt := 1; ; attempt++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}

			var err error
			done, err = s.subscribe(ctx)
			if err == nil {
				s.log.WithFields(logrus.Fields{
					"component": "recorder",
					"attempt":   attempt,
				}).Info("Recorder consuming again")
				break
			}

			s.log.WithFields(logrus.Fields{
				"component": "recorder",
				"attempt":   attempt,
			}).WithError(err).Warn("Resubscribe failed, retrying")
		}
	}
}

func (s *RecorderService) setupMessaging() error {
	queue := s.rabbitCfg.Queue.Recorder

	if err := s.message.DeclareQueue(queue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	if err := s.message.BindQueue(queue, s.rabbitCfg.Exchange, config.RoutingLinksExtracted); err != nil {
		return fmt.Errorf("failed to bind queue %s to exchange %s with key %s: %w", queue, s.rabbitCfg.Exchange, config.RoutingLinksExtracted, err)
	}

	return nil
}

// HandleMessage appends the links of one event to the archive
func (s *RecorderService) HandleMessage(msg []byte) error {
	var event models.ExtractionEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return fmt.Errorf("%w: %v", messaging.ErrMalformed, err)
	}
	if event.PageURL == "" {
		return fmt.Errorf("%w: missing page_url", messaging.ErrMalformed)
	}

	entry := s.log.WithFields(logrus.Fields{
		"component": "recorder",
		"id":        event.ID,
		"url":       event.PageURL,
		"count":     len(event.Links),
	})

	if len(event.Links) == 0 {
		entry.Debug("Event has no links, nothing to record")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := export.AppendCSV(s.config.Output, export.Records(event.PageURL, event.Links)); err != nil {
		return fmt.Errorf("failed to record event %s: %w", event.ID, err)
	}

	entry.Info("Links recorded")
	return nil
}
