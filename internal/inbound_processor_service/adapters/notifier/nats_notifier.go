// Package notifier publishes the gateway's outbound side effects to NATS. Delivery to tenants
// and deletion from the shared feed are done by the transport services subscribed to these subjects.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"golang.org/x/time/rate"
)

// Publisher is implemented by *messagebroker.NATSClient.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subjects names the NATS subjects used for each side effect.
type Subjects struct {
	Notify       string
	DeleteSource string
	PoolAlert    string
}

// maxPacingWait bounds how long a tenant notification may wait for the pacer before it is dropped.
const maxPacingWait = 250 * time.Millisecond

// NATSNotifier implements the router's Notifier and the pool's PoolAlerter. Tenant
// notifications are paced so a burst of routed messages cannot flood the transport.
type NATSNotifier struct {
	publisher Publisher
	subjects  Subjects
	limiter   *rate.Limiter
	maxWait   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewNATSNotifier creates a notifier. ratePerSecond <= 0 disables pacing.
func NewNATSNotifier(publisher Publisher, subjects Subjects, ratePerSecond float64, logger *slog.Logger) *NATSNotifier {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	return &NATSNotifier{
		publisher: publisher,
		subjects:  subjects,
		limiter:   rate.NewLimiter(limit, burst),
		maxWait:   maxPacingWait,
		logger:    logger.With("component", "nats_notifier"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NotifyTenant publishes a delivery notification. It never holds the caller longer than
// maxWait: when the pacer has no token in time the notification is dropped with
// domain.ErrNotificationDropped.
func (n *NATSNotifier) NotifyTenant(ctx context.Context, notification domain.TenantNotification) error {
	waitCtx, cancel := context.WithTimeout(ctx, n.maxWait)
	defer cancel()
	if err := n.limiter.Wait(waitCtx); err != nil {
		n.logger.WarnContext(ctx, "Tenant notification dropped by pacer",
			"tenant_id", notification.TenantID,
			"message_id", notification.MessageID,
			"error", err,
		)
		return fmt.Errorf("%w: %w", domain.ErrNotificationDropped, err)
	}
	return n.publishJSON(ctx, n.subjects.Notify, notification)
}

func (n *NATSNotifier) DeleteSource(ctx context.Context, deletion domain.SourceDeletion) error {
	return n.publishJSON(ctx, n.subjects.DeleteSource, deletion)
}

// PoolExhausted publishes an operator alert for a country with no unleased numbers.
func (n *NATSNotifier) PoolExhausted(ctx context.Context, country poolDomain.CountryAggregate) error {
	n.logger.WarnContext(ctx, "Country pool exhausted", "country_code", country.CountryCode, "total", country.Total)
	return n.publishJSON(ctx, n.subjects.PoolAlert, domain.PoolExhaustedAlert{
		CountryCode: country.CountryCode,
		CountryName: country.Name,
		Total:       country.Total,
		Leased:      country.Leased,
		At:          n.now(),
	})
}

func (n *NATSNotifier) publishJSON(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", subject, err)
	}
	if err := n.publisher.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}
