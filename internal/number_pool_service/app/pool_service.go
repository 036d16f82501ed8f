package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolConfig holds the leasing policy.
type PoolConfig struct {
	BatchSize                int `mapstructure:"BATCH_SIZE"`
	MaxActiveLeasesPerTenant int `mapstructure:"MAX_ACTIVE_LEASES_PER_TENANT"`
}

// Admitter gates allocation attempts. *RateLimiter implements it.
type Admitter interface {
	Admit(ctx context.Context, tenantID int64) error
}

// PoolAlerter tells operators that a country has no numbers left.
type PoolAlerter interface {
	PoolExhausted(ctx context.Context, country domain.CountryAggregate) error
}

// UsageRecorder receives per-tenant usage for daily statistics.
type UsageRecorder interface {
	RecordNumbersTaken(ctx context.Context, tenantID int64, count int, at time.Time) error
}

// SettingsReader supplies the runtime settings.
type SettingsReader interface {
	Current(ctx context.Context) (settingsDomain.Settings, error)
}

// AllocationResult describes one allocation call. Partial fulfilment and empty results are
// reported through the flags, not as errors.
type AllocationResult struct {
	Leases        []*domain.Lease `json:"leases"`
	Requested     int             `json:"requested"`
	ActiveCount   int             `json:"active_count"`
	MaxActive     int             `json:"max_active"`
	AtCapacity    bool            `json:"at_capacity"`
	PoolExhausted bool            `json:"pool_exhausted"`
}

// ReleaseRequest identifies a lease to give back. Admin requests skip the ownership check.
type ReleaseRequest struct {
	LeaseID  uuid.UUID
	TenantID int64
	Admin    bool
	Hard     bool
}

// ReleaseResult carries the released lease and, for hard releases, the retirement record.
type ReleaseResult struct {
	Lease      *domain.Lease      `json:"lease"`
	Retirement *domain.Retirement `json:"retirement,omitempty"`
}

// PoolService leases numbers to tenants. Allocation and release are serialised per tenant;
// the repository guarantees a number is never leased twice.
type PoolService struct {
	leases    domain.LeaseRepository
	numbers   domain.NumberRepository
	countries domain.CountryRepository
	admitter  Admitter
	alerter   PoolAlerter
	usage     UsageRecorder
	settings  SettingsReader
	locks     *TenantLocks
	config    PoolConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewPoolService wires the pool. alerter and usage may be nil.
func NewPoolService(
	leases domain.LeaseRepository,
	numbers domain.NumberRepository,
	countries domain.CountryRepository,
	admitter Admitter,
	alerter PoolAlerter,
	usage UsageRecorder,
	cfg PoolConfig,
	logger *slog.Logger,
) *PoolService {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &PoolService{
		leases:    leases,
		numbers:   numbers,
		countries: countries,
		admitter:  admitter,
		alerter:   alerter,
		usage:     usage,
		locks:     NewTenantLocks(),
		config:    cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithSettings makes Allocate follow the runtime settings instead of the static PoolConfig.
func (s *PoolService) WithSettings(settings SettingsReader) *PoolService {
	s.settings = settings
	return s
}

// policy resolves the maintenance gate and the leasing limits for one call. A settings
// store that cannot be read falls back to the static configuration.
func (s *PoolService) policy(ctx context.Context) (enabled bool, cfg PoolConfig) {
	if s.settings == nil {
		return true, s.config
	}
	current, err := s.settings.Current(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read runtime settings, using configured policy", "error", err)
		return true, s.config
	}
	cfg = PoolConfig{BatchSize: current.BatchSize, MaxActiveLeasesPerTenant: current.MaxActiveLeasesPerTenant}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return current.AllocationEnabled, cfg
}

// Allocate leases up to requested numbers of countryCode to the tenant; requested <= 0 means
// the configured batch size. A tenant already at its ceiling gets an empty result with AtCapacity set.
func (s *PoolService) Allocate(ctx context.Context, tenantID int64, countryCode string, requested int) (*AllocationResult, error) {
	timer := prometheus.NewTimer(allocationDurationHist.WithLabelValues(countryCode))
	defer timer.ObserveDuration()

	enabled, cfg := s.policy(ctx)
	if !enabled {
		allocationRequestsCounter.WithLabelValues(countryCode, "disabled").Inc()
		return nil, domain.ErrAllocationDisabled
	}
	if requested <= 0 {
		requested = cfg.BatchSize
	}

	if err := s.admitter.Admit(ctx, tenantID); err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrRateLimited) {
			outcome = "rate_limited"
		}
		allocationRequestsCounter.WithLabelValues(countryCode, outcome).Inc()
		return nil, err
	}

	unlock := s.locks.Lock(tenantID)
	defer unlock()

	active, err := s.leases.CountActiveByTenant(ctx, tenantID)
	if err != nil {
		allocationRequestsCounter.WithLabelValues(countryCode, "error").Inc()
		return nil, fmt.Errorf("failed to count active leases: %w", err)
	}

	result := &AllocationResult{
		Leases:      []*domain.Lease{},
		Requested:   requested,
		ActiveCount: active,
		MaxActive:   cfg.MaxActiveLeasesPerTenant,
	}
	if active >= cfg.MaxActiveLeasesPerTenant {
		result.AtCapacity = true
		allocationRequestsCounter.WithLabelValues(countryCode, "at_capacity").Inc()
		s.logger.InfoContext(ctx, "Tenant at lease capacity", "tenant_id", tenantID, "active_leases", active)
		return result, nil
	}

	limit := min(requested, cfg.MaxActiveLeasesPerTenant-active)
	now := s.now()
	leases, err := s.leases.Allocate(ctx, tenantID, countryCode, limit, now)
	if err != nil {
		allocationRequestsCounter.WithLabelValues(countryCode, "error").Inc()
		return nil, fmt.Errorf("failed to allocate numbers: %w", err)
	}
	result.Leases = leases
	result.ActiveCount += len(leases)

	switch {
	case len(leases) == 0:
		result.PoolExhausted = true
		allocationRequestsCounter.WithLabelValues(countryCode, "exhausted").Inc()
		s.logger.InfoContext(ctx, "No numbers available for country", "tenant_id", tenantID, "country_code", countryCode)
		return result, nil
	case len(leases) < limit:
		allocationRequestsCounter.WithLabelValues(countryCode, "partial").Inc()
	default:
		allocationRequestsCounter.WithLabelValues(countryCode, "allocated").Inc()
	}
	numbersLeasedCounter.WithLabelValues(countryCode).Add(float64(len(leases)))

	s.logger.InfoContext(ctx, "Numbers leased",
		"tenant_id", tenantID,
		"country_code", countryCode,
		"requested", requested,
		"leased", len(leases),
	)

	if s.usage != nil {
		if err := s.usage.RecordNumbersTaken(ctx, tenantID, len(leases), now); err != nil {
			s.logger.WarnContext(ctx, "Failed to record numbers taken", "tenant_id", tenantID, "error", err)
		}
	}
	s.alertIfExhausted(ctx, countryCode)

	return result, nil
}

func (s *PoolService) alertIfExhausted(ctx context.Context, countryCode string) {
	if s.alerter == nil {
		return
	}
	country, err := s.countries.Get(ctx, countryCode)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read country aggregate after allocation", "country_code", countryCode, "error", err)
		return
	}
	if !country.Exhausted() {
		return
	}
	if err := s.alerter.PoolExhausted(ctx, *country); err != nil {
		s.logger.ErrorContext(ctx, "Failed to send pool exhausted alert", "country_code", countryCode, "error", err)
	}
}

// Release gives a lease back. Soft releases return the number to the pool; hard releases
// retire it permanently together with its messages.
func (s *PoolService) Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error) {
	lease, err := s.leases.FindByID(ctx, req.LeaseID)
	if err != nil {
		return nil, err
	}
	if !req.Admin && lease.TenantID != req.TenantID {
		return nil, domain.ErrNotLeaseOwner
	}

	unlock := s.locks.Lock(lease.TenantID)
	defer unlock()

	resetType := domain.ResetTypeUser
	if req.Admin {
		resetType = domain.ResetTypeAdmin
	}
	return s.releaseLocked(ctx, lease, req.Hard, resetType)
}

// ReleaseAll releases every active lease of the tenant and returns how many were released.
func (s *PoolService) ReleaseAll(ctx context.Context, tenantID int64, hard bool) (int, error) {
	unlock := s.locks.Lock(tenantID)
	defer unlock()

	leases, err := s.leases.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list active leases: %w", err)
	}

	released := 0
	for _, lease := range leases {
		if _, err := s.releaseLocked(ctx, lease, hard, domain.ResetTypeUser); err != nil {
			if errors.Is(err, domain.ErrLeaseNotActive) || errors.Is(err, domain.ErrLeaseNotFound) {
				continue
			}
			return released, err
		}
		released++
	}
	s.logger.InfoContext(ctx, "Released all tenant leases", "tenant_id", tenantID, "released", released, "hard", hard)
	return released, nil
}

func (s *PoolService) releaseLocked(ctx context.Context, lease *domain.Lease, hard bool, resetType domain.ResetType) (*ReleaseResult, error) {
	if !lease.Active {
		return nil, domain.ErrLeaseNotActive
	}
	now := s.now()

	if hard {
		retirement, err := s.leases.HardRelease(ctx, lease.ID, resetType, now)
		if err != nil {
			return nil, err
		}
		releasesCounter.WithLabelValues("hard").Inc()
		s.logger.InfoContext(ctx, "Number retired",
			"lease_id", lease.ID,
			"tenant_id", lease.TenantID,
			"number", lease.Number,
			"reset_type", resetType,
		)
		lease.Active = false
		lease.ReleasedAt.Time, lease.ReleasedAt.Valid = now, true
		return &ReleaseResult{Lease: lease, Retirement: retirement}, nil
	}

	if err := s.leases.SoftRelease(ctx, lease.ID, now); err != nil {
		return nil, err
	}
	releasesCounter.WithLabelValues("soft").Inc()
	s.logger.InfoContext(ctx, "Lease released", "lease_id", lease.ID, "tenant_id", lease.TenantID, "number", lease.Number)
	lease.Active = false
	lease.ReleasedAt.Time, lease.ReleasedAt.Valid = now, true
	return &ReleaseResult{Lease: lease}, nil
}

// ActiveLeaseFor returns the active lease of number, or nil when it is unassigned.
func (s *PoolService) ActiveLeaseFor(ctx context.Context, number string) (*domain.Lease, error) {
	return s.leases.FindActiveByNumber(ctx, number)
}

// ListActive returns the tenant's active leases.
func (s *PoolService) ListActive(ctx context.Context, tenantID int64) ([]*domain.Lease, error) {
	return s.leases.ListActiveByTenant(ctx, tenantID)
}

// Countries returns the cached per-country aggregates.
func (s *PoolService) Countries(ctx context.Context) ([]domain.CountryAggregate, error) {
	return s.countries.List(ctx)
}

// ImportNumbers adds numbers to the pool, skipping duplicates and retired numbers.
func (s *PoolService) ImportNumbers(ctx context.Context, numbers []domain.NewNumber) (domain.ImportResult, error) {
	result, err := s.numbers.Import(ctx, numbers, s.now())
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("failed to import numbers: %w", err)
	}
	s.logger.InfoContext(ctx, "Numbers imported",
		"added", result.Added,
		"duplicates", result.Duplicates,
		"retired", result.Retired,
	)
	return result, nil
}
