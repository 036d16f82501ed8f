package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/shopspring/decimal"
)

// LeaseFinder resolves the active lease for a number. *PoolService implements it.
type LeaseFinder interface {
	ActiveLeaseFor(ctx context.Context, number string) (*poolDomain.Lease, error)
}

// RevenueCreditor credits a tenant for a message. *LedgerService implements it.
type RevenueCreditor interface {
	CreditForMessage(ctx context.Context, lease *poolDomain.Lease, msg *domain.InboundMessage, amount decimal.Decimal) (*billingDomain.CreditResult, error)
	PerMessageRevenue(ctx context.Context) decimal.Decimal
}

// Notifier emits the outbound side effects of a routed message.
type Notifier interface {
	NotifyTenant(ctx context.Context, n domain.TenantNotification) error
	DeleteSource(ctx context.Context, d domain.SourceDeletion) error
}

type OutcomeKind string

const (
	OutcomeRouted     OutcomeKind = "routed"
	OutcomeUnassigned OutcomeKind = "unassigned"
	OutcomeDiscarded  OutcomeKind = "discarded"
)

// Outcome is the result of one Route call. TenantID is set for routed messages.
type Outcome struct {
	Kind     OutcomeKind
	TenantID int64
	Credited bool
}

// Router delivers classified messages to the tenant leasing the number and credits revenue.
// Route is idempotent: routing the same message twice never credits or notifies twice.
type Router struct {
	inbox    domain.InboxRepository
	leases   LeaseFinder
	ledger   RevenueCreditor
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewRouter(inbox domain.InboxRepository, leases LeaseFinder, ledger RevenueCreditor, notifier Notifier, logger *slog.Logger) *Router {
	return &Router{
		inbox:    inbox,
		leases:   leases,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger.With("component", "router"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Route processes one message. Only OTP messages earn revenue; plain messages are forwarded
// without credit. A message whose number has no active lease stays pending for the sweeper.
func (r *Router) Route(ctx context.Context, msg *domain.InboundMessage) (Outcome, error) {
	switch msg.State {
	case domain.StateRouted:
		return Outcome{Kind: OutcomeRouted, TenantID: msg.ForwardedTo.Int64}, nil
	case domain.StateDiscarded:
		return Outcome{Kind: OutcomeDiscarded}, nil
	}

	if !msg.Number.Valid || msg.Number.String == "" {
		if _, err := r.inbox.MarkDiscarded(ctx, msg.ID, r.now()); err != nil {
			routeOutcomesCounter.WithLabelValues("error").Inc()
			return Outcome{}, fmt.Errorf("failed to discard message %s: %w", msg.ID, err)
		}
		routeOutcomesCounter.WithLabelValues(string(OutcomeDiscarded)).Inc()
		r.logger.DebugContext(ctx, "Discarded message without a number", "message_id", msg.ID)
		return Outcome{Kind: OutcomeDiscarded}, nil
	}

	lease, err := r.leases.ActiveLeaseFor(ctx, msg.Number.String)
	if err != nil {
		routeOutcomesCounter.WithLabelValues("error").Inc()
		return Outcome{}, fmt.Errorf("failed to look up lease for %s: %w", msg.Number.String, err)
	}
	if lease == nil {
		routeOutcomesCounter.WithLabelValues(string(OutcomeUnassigned)).Inc()
		return Outcome{Kind: OutcomeUnassigned}, nil
	}

	outcome := Outcome{Kind: OutcomeRouted, TenantID: lease.TenantID}
	var credit *billingDomain.CreditResult
	amount := r.ledger.PerMessageRevenue(ctx)
	if msg.Kind == domain.KindOTP {
		credit, err = r.ledger.CreditForMessage(ctx, lease, msg, amount)
		if err != nil {
			routeOutcomesCounter.WithLabelValues("error").Inc()
			return Outcome{}, err
		}
		outcome.Credited = credit.Credited
	}

	now := r.now()
	won, err := r.inbox.MarkRouted(ctx, msg.ID, lease.TenantID, now)
	if err != nil {
		routeOutcomesCounter.WithLabelValues("error").Inc()
		return Outcome{}, fmt.Errorf("failed to mark message %s routed: %w", msg.ID, err)
	}
	if !won {
		// Another router got there first and owns the side effects.
		return outcome, nil
	}
	msg.State = domain.StateRouted
	msg.ForwardedTo.Int64, msg.ForwardedTo.Valid = lease.TenantID, true
	msg.ProcessedAt.Time, msg.ProcessedAt.Valid = now, true
	routeOutcomesCounter.WithLabelValues(string(OutcomeRouted)).Inc()

	r.emitSideEffects(ctx, msg, lease, credit, amount)

	r.logger.InfoContext(ctx, "Message routed",
		"message_id", msg.ID,
		"tenant_id", lease.TenantID,
		"number", msg.Number.String,
		"kind", msg.Kind,
		"credited", outcome.Credited,
	)
	return outcome, nil
}

func (r *Router) emitSideEffects(ctx context.Context, msg *domain.InboundMessage, lease *poolDomain.Lease, credit *billingDomain.CreditResult, amount decimal.Decimal) {
	if r.notifier == nil {
		return
	}
	notification := domain.TenantNotification{
		TenantID:    lease.TenantID,
		MessageID:   msg.ID.String(),
		LeaseID:     lease.ID.String(),
		Number:      msg.Number.String,
		CountryCode: lease.CountryCode,
		CountryFlag: lease.CountryFlag,
		Kind:        msg.Kind,
		Code:        msg.Code.String,
		Text:        msg.Text,
		ReceivedAt:  msg.ReceivedAt,
	}
	if credit != nil && credit.Credited {
		notification.RevenueAdded = amount.String()
		if credit.Tenant != nil {
			notification.Balance = credit.Tenant.Balance.String()
		}
	}
	if err := r.notifier.NotifyTenant(ctx, notification); err != nil {
		effect := "notify"
		if errors.Is(err, domain.ErrNotificationDropped) {
			effect = "notify_dropped"
		}
		sideEffectFailuresCounter.WithLabelValues(effect).Inc()
		r.logger.WarnContext(ctx, "Failed to notify tenant", "message_id", msg.ID, "tenant_id", lease.TenantID, "error", err)
	}
	if err := r.notifier.DeleteSource(ctx, domain.SourceDeletion{SourceMessageID: msg.SourceMessageID}); err != nil {
		sideEffectFailuresCounter.WithLabelValues("delete_source").Inc()
		r.logger.WarnContext(ctx, "Failed to delete source message", "message_id", msg.ID, "source_message_id", msg.SourceMessageID, "error", err)
	}
}
