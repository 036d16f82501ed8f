package messagebroker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSClient wraps a core NATS connection with context-aware helpers.
type NATSClient struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSClient connects to NATS with reconnect handling.
// natsURL example: "nats://localhost:4222"
func NewNATSClient(natsURL string, logger *slog.Logger, appName string) (*NATSClient, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(appName),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed", "error", nc.LastError())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSClient{conn: nc, logger: logger}, nil
}

// Publish sends data on subject. The context is checked before publishing because
// core NATS publish is fire-and-forget.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// SubscribeToSubjectWithQueue registers handler on subject within queueGroup and blocks
// until ctx is cancelled, then drains the subscription.
func (c *NATSClient) SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.QueueSubscribe(subject, queueGroup, handler)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.logger.InfoContext(ctx, "Subscribed to NATS subject", "subject", subject, "queue_group", queueGroup)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		c.logger.Warn("Failed to drain NATS subscription", "subject", subject, "error", err)
	}
	return nil
}

// IsConnected reports the connection status for health checks.
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains pending messages and closes the connection.
func (c *NATSClient) Close() {
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}
}
