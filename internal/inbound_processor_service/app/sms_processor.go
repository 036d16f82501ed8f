package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/extractor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// SMSProcessor turns feed events into tracked inbound messages and tries to route them
// immediately. Anything the fast path cannot finish is left pending for the sweeper.
type SMSProcessor struct {
	inboxRepo domain.InboxRepository
	extractor extractor.Extractor
	router    MessageRouter
	logger    *slog.Logger
	now       func() time.Time
}

// NewSMSProcessor creates a new SMSProcessor instance.
func NewSMSProcessor(inboxRepo domain.InboxRepository, x extractor.Extractor, router MessageRouter, logger *slog.Logger) *SMSProcessor {
	return &SMSProcessor{
		inboxRepo: inboxRepo,
		extractor: x,
		router:    router,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessEvent stores the event as a pending message and runs the fast path. It returns
// (nil, nil) for empty texts and for source messages that are already tracked.
func (s *SMSProcessor) ProcessEvent(ctx context.Context, event domain.FeedEvent) (*domain.InboundMessage, error) {
	timer := prometheus.NewTimer(feedEventProcessingDurationHist)
	defer timer.ObserveDuration()

	if strings.TrimSpace(event.Text) == "" {
		feedEventsProcessedCounter.WithLabelValues("", "empty").Inc()
		s.logger.DebugContext(ctx, "Ignoring feed event without text", "source_message_id", event.SourceMessageID)
		return nil, nil
	}

	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	result := s.extractor.Classify(event.Text)
	msg := domain.NewInboundMessage(uuid.New(), event.SourceMessageID, event.Text, receivedAt.UTC(), result.Number, result.Code, result.Kind)

	if err := s.inboxRepo.Create(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			feedEventsProcessedCounter.WithLabelValues(string(result.Kind), "duplicate").Inc()
			s.logger.DebugContext(ctx, "Feed event already tracked", "source_message_id", event.SourceMessageID)
			return nil, nil
		}
		feedEventsProcessedCounter.WithLabelValues(string(result.Kind), "error_db_save").Inc()
		s.logger.ErrorContext(ctx, "Failed to save inbound message",
			"error", err,
			"source_message_id", event.SourceMessageID,
		)
		return nil, err
	}
	feedEventsProcessedCounter.WithLabelValues(string(result.Kind), "stored").Inc()

	s.logger.InfoContext(ctx, "Inbound message tracked",
		"message_id", msg.ID,
		"source_message_id", msg.SourceMessageID,
		"number", result.Number,
		"kind", result.Kind,
	)

	if _, err := s.router.Route(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Fast-path routing failed, leaving message for the sweeper",
			"message_id", msg.ID,
			"error", err,
		)
	}
	return msg, nil
}

// Run processes events from the channel until ctx is cancelled.
func (s *SMSProcessor) Run(ctx context.Context, events <-chan domain.FeedEvent) error {
	s.logger.InfoContext(ctx, "Starting feed event processor worker")
	for {
		select {
		case event := <-events:
			if _, err := s.ProcessEvent(ctx, event); err != nil {
				s.logger.ErrorContext(ctx, "Failed to process feed event",
					slog.Any("error", err),
					slog.String("source_message_id", event.SourceMessageID),
				)
			}
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Feed event processor worker shutting down")
			return ctx.Err()
		}
	}
}
