package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
)

// Subscriber is the part of the NATS client the consumer needs. *messagebroker.NATSClient implements it.
type Subscriber interface {
	SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler func(msg *nats.Msg)) error
}

// SMSConsumer is responsible for consuming raw feed messages from NATS
// and forwarding them for processing.
type SMSConsumer struct {
	natsClient Subscriber
	validate   *validator.Validate
	logger     *slog.Logger
	outputChan chan<- domain.FeedEvent
	sendWait   time.Duration
}

// NewSMSConsumer creates a new SMSConsumer instance.
// outputChan is a channel where successfully decoded feed events are sent.
func NewSMSConsumer(natsClient Subscriber, logger *slog.Logger, outputChan chan<- domain.FeedEvent) *SMSConsumer {
	return &SMSConsumer{
		natsClient: natsClient,
		validate:   validator.New(),
		logger:     logger,
		outputChan: outputChan,
		sendWait:   5 * time.Second,
	}
}

// HandleMessage decodes one NATS message and hands it to the processing channel.
// Malformed payloads are logged and dropped.
func (c *SMSConsumer) HandleMessage(ctx context.Context, msg *nats.Msg) {
	natsFeedMessagesReceivedCounter.WithLabelValues(msg.Subject).Inc()

	var event domain.FeedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to deserialize feed event",
			"error", err, "subject", msg.Subject, "data_len", len(msg.Data))
		return
	}
	if err := c.validate.Struct(event); err != nil {
		c.logger.ErrorContext(ctx, "Invalid feed event", "error", err, "subject", msg.Subject)
		return
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, c.sendWait)
	defer cancelSend()

	select {
	case c.outputChan <- event:
		c.logger.DebugContext(ctx, "Sent feed event to processing channel", "source_message_id", event.SourceMessageID)
	case <-sendCtx.Done():
		c.logger.ErrorContext(ctx, "Timed out sending feed event to processing channel",
			"error", sendCtx.Err(), "source_message_id", event.SourceMessageID)
	}
}

// StartConsuming subscribes to subject with queueGroup and blocks until ctx is cancelled.
func (c *SMSConsumer) StartConsuming(ctx context.Context, subject string, queueGroup string) error {
	c.logger.InfoContext(ctx, "Starting NATS subscription", "subject", subject, "queue_group", queueGroup)
	err := c.natsClient.SubscribeToSubjectWithQueue(ctx, subject, queueGroup, func(msg *nats.Msg) {
		c.HandleMessage(ctx, msg)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "NATS subscription failed", "error", err, "subject", subject)
		return err
	}

	c.logger.InfoContext(ctx, "NATS subscription ended", "subject", subject)
	return nil
}
