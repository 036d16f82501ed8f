package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
)

// Reconciler periodically rebuilds the country aggregates from the phone_numbers table
// and clears leased flags left behind without an active lease.
type Reconciler struct {
	countries domain.CountryRepository
	interval  time.Duration
	logger    *slog.Logger
}

func NewReconciler(countries domain.CountryRepository, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Reconciler{countries: countries, interval: interval, logger: logger}
}

// ReconcileOnce runs one pass and returns the corrected aggregates.
func (r *Reconciler) ReconcileOnce(ctx context.Context) ([]domain.CountryAggregate, error) {
	aggregates, err := r.countries.Reconcile(ctx)
	if err != nil {
		reconcileRunsCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to reconcile country aggregates: %w", err)
	}
	reconcileRunsCounter.WithLabelValues("success").Inc()
	for _, c := range aggregates {
		countryAvailableGauge.WithLabelValues(c.CountryCode).Set(float64(c.Available()))
	}
	r.logger.InfoContext(ctx, "Country aggregates reconciled", "countries", len(aggregates))
	return aggregates, nil
}

// Run reconciles immediately and then on every tick until ctx is cancelled.
// Failed passes are logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	if _, err := r.ReconcileOnce(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Initial reconciliation failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Reconciler stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "Reconciliation failed", "error", err)
			}
		}
	}
}
