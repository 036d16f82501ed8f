package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
)

// RateLimitConfig holds the fixed-window admission policy.
type RateLimitConfig struct {
	Threshold  int           `mapstructure:"RATE_LIMIT_THRESHOLD"`
	Window     time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	Suspension time.Duration `mapstructure:"SUSPENSION_DURATION"`
}

// RateLimiter admits allocation attempts per tenant using a fixed window counter.
// Exceeding the threshold inside a window suspends the tenant for the suspension period.
type RateLimiter struct {
	repo   domain.RateLimitRepository
	locks  *TenantLocks
	config RateLimitConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewRateLimiter(repo domain.RateLimitRepository, cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		repo:   repo,
		locks:  NewTenantLocks(),
		config: cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (r *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	r.now = now
	return r
}

// Admit records one allocation attempt. It returns a *domain.RateLimitedError while the
// tenant is suspended or when this attempt pushes the count over the threshold.
func (r *RateLimiter) Admit(ctx context.Context, tenantID int64) error {
	unlock := r.locks.Lock(tenantID)
	defer unlock()

	now := r.now()
	state, err := r.repo.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load rate limit state: %w", err)
	}

	if state == nil {
		state = &domain.RateLimitState{TenantID: tenantID, RequestCount: 1, WindowStart: now}
		return r.save(ctx, state)
	}

	// An expired window wins over a running suspension.
	if now.Sub(state.WindowStart) > r.config.Window {
		state.RequestCount = 1
		state.WindowStart = now
		state.SuspendedUntil = time.Time{}
		return r.save(ctx, state)
	}

	if !state.SuspendedUntil.IsZero() && now.Before(state.SuspendedUntil) {
		rateLimitRejectionsCounter.Inc()
		return &domain.RateLimitedError{Remaining: state.SuspendedUntil.Sub(now)}
	}

	state.RequestCount++
	if state.RequestCount > r.config.Threshold {
		state.SuspendedUntil = now.Add(r.config.Suspension)
		if err := r.save(ctx, state); err != nil {
			return err
		}
		rateLimitRejectionsCounter.Inc()
		r.logger.WarnContext(ctx, "Tenant suspended from allocating",
			"tenant_id", tenantID,
			"request_count", state.RequestCount,
			"suspended_until", state.SuspendedUntil,
		)
		return &domain.RateLimitedError{Remaining: r.config.Suspension}
	}
	return r.save(ctx, state)
}

func (r *RateLimiter) save(ctx context.Context, state *domain.RateLimitState) error {
	if err := r.repo.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save rate limit state: %w", err)
	}
	return nil
}

// Lift clears the tenant's window and any running suspension.
func (r *RateLimiter) Lift(ctx context.Context, tenantID int64) error {
	unlock := r.locks.Lock(tenantID)
	defer unlock()

	if err := r.repo.Reset(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to reset rate limit state: %w", err)
	}
	r.logger.InfoContext(ctx, "Tenant allocation suspension lifted", "tenant_id", tenantID)
	return nil
}
