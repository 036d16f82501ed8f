package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aradsms/otp_gateway/internal/settings_service/domain"
)

// SettingsService reads and updates the runtime settings. Current falls back to the
// configured defaults while nothing has been saved.
type SettingsService struct {
	repo     domain.Repository
	defaults domain.Settings
	mu       sync.Mutex // serialises read-modify-write in Update
	logger   *slog.Logger
	now      func() time.Time
}

func NewSettingsService(repo domain.Repository, defaults domain.Settings, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		repo:     repo,
		defaults: defaults,
		logger:   logger.With("component", "settings_service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (s *SettingsService) WithClock(now func() time.Time) *SettingsService {
	s.now = now
	return s
}

func (s *SettingsService) Current(ctx context.Context) (domain.Settings, error) {
	stored, err := s.repo.Get(ctx)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if stored == nil {
		observe(s.defaults)
		return s.defaults, nil
	}
	observe(*stored)
	return *stored, nil
}

// Update applies u on top of the current settings and saves the result.
func (s *SettingsService) Update(ctx context.Context, u domain.Update) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Current(ctx)
	if err != nil {
		settingsUpdatesCounter.WithLabelValues("error").Inc()
		return domain.Settings{}, err
	}
	next := current.Apply(u)
	if err := next.Validate(); err != nil {
		settingsUpdatesCounter.WithLabelValues("invalid").Inc()
		return domain.Settings{}, err
	}
	next.UpdatedAt = s.now()

	if err := s.repo.Save(ctx, &next); err != nil {
		settingsUpdatesCounter.WithLabelValues("error").Inc()
		return domain.Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	settingsUpdatesCounter.WithLabelValues("applied").Inc()
	observe(next)

	s.logger.InfoContext(ctx, "Runtime settings updated",
		"allocation_enabled", next.AllocationEnabled,
		"batch_size", next.BatchSize,
		"max_active_leases_per_tenant", next.MaxActiveLeasesPerTenant,
		"per_message_revenue", next.PerMessageRevenue.String(),
		"min_withdrawal", next.MinWithdrawal.String(),
	)
	if current.AllocationEnabled != next.AllocationEnabled {
		s.logger.WarnContext(ctx, "Allocation maintenance gate changed", "allocation_enabled", next.AllocationEnabled)
	}
	return next, nil
}

func observe(s domain.Settings) {
	if s.AllocationEnabled {
		allocationEnabledGauge.Set(1)
	} else {
		allocationEnabledGauge.Set(0)
	}
}
