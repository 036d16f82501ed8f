package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
)

// TenantLeaseLister lists a tenant's active leases. *PoolService implements it.
type TenantLeaseLister interface {
	ListActive(ctx context.Context, tenantID int64) ([]*poolDomain.Lease, error)
}

// RefreshReport summarises one tenant refresh.
type RefreshReport struct {
	Numbers  int `json:"numbers"`
	Pending  int `json:"pending"`
	Routed   int `json:"routed"`
	Credited int `json:"credited"`
	Failed   int `json:"failed"`
}

// Refresher routes the pending backlog of one tenant's leased numbers on demand, so a tenant
// does not wait for the next sweeper tick.
type Refresher struct {
	inbox  domain.InboxRepository
	leases TenantLeaseLister
	router MessageRouter
	limit  int
	logger *slog.Logger
}

func NewRefresher(inbox domain.InboxRepository, leases TenantLeaseLister, router MessageRouter, limit int, logger *slog.Logger) *Refresher {
	if limit < 1 {
		limit = 100
	}
	return &Refresher{
		inbox:  inbox,
		leases: leases,
		router: router,
		limit:  limit,
		logger: logger.With("component", "refresher"),
	}
}

// RefreshTenant routes up to the configured limit of pending messages addressed to the
// tenant's active leases. Per-message failures are counted, not returned.
func (r *Refresher) RefreshTenant(ctx context.Context, tenantID int64) (RefreshReport, error) {
	var report RefreshReport

	leases, err := r.leases.ListActive(ctx, tenantID)
	if err != nil {
		refreshesCounter.WithLabelValues("error").Inc()
		return report, fmt.Errorf("failed to list active leases: %w", err)
	}
	report.Numbers = len(leases)
	if len(leases) == 0 {
		refreshesCounter.WithLabelValues("ok").Inc()
		return report, nil
	}

	numbers := make([]string, 0, len(leases))
	for _, l := range leases {
		numbers = append(numbers, l.Number)
	}
	pending, err := r.inbox.ListPendingForNumbers(ctx, numbers, r.limit)
	if err != nil {
		refreshesCounter.WithLabelValues("error").Inc()
		return report, fmt.Errorf("failed to list pending messages: %w", err)
	}
	report.Pending = len(pending)

	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := r.router.Route(ctx, msg)
		if err != nil {
			report.Failed++
			r.logger.ErrorContext(ctx, "Failed to route message on refresh", "message_id", msg.ID, "tenant_id", tenantID, "error", err)
			continue
		}
		if outcome.Kind == OutcomeRouted {
			report.Routed++
		}
		if outcome.Credited {
			report.Credited++
		}
	}
	refreshesCounter.WithLabelValues("ok").Inc()

	r.logger.InfoContext(ctx, "Tenant refresh finished",
		"tenant_id", tenantID,
		"numbers", report.Numbers,
		"pending", report.Pending,
		"routed", report.Routed,
		"failed", report.Failed,
	)
	return report, nil
}
