package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/billing_service/domain"
	inboundDomain "github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"github.com/shopspring/decimal"
)

// LedgerConfig holds the revenue policy amounts.
type LedgerConfig struct {
	PerMessageRevenue decimal.Decimal
	MinWithdrawal     decimal.Decimal
}

// SettingsReader supplies the runtime settings.
type SettingsReader interface {
	Current(ctx context.Context) (settingsDomain.Settings, error)
}

// LedgerService owns tenant balances. Balances only change through this service.
type LedgerService struct {
	tenants  domain.TenantRepository
	config   LedgerConfig
	settings SettingsReader
	logger   *slog.Logger
	now      func() time.Time
}

func NewLedgerService(tenants domain.TenantRepository, cfg LedgerConfig, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		tenants: tenants,
		config:  cfg,
		logger:  logger.With("service", "ledger"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// WithSettings makes the revenue amounts follow the runtime settings.
func (s *LedgerService) WithSettings(settings SettingsReader) *LedgerService {
	s.settings = settings
	return s
}

func (s *LedgerService) amounts(ctx context.Context) LedgerConfig {
	if s.settings == nil {
		return s.config
	}
	current, err := s.settings.Current(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read runtime settings, using configured amounts", "error", err)
		return s.config
	}
	return LedgerConfig{PerMessageRevenue: current.PerMessageRevenue, MinWithdrawal: current.MinWithdrawal}
}

// PerMessageRevenue is the amount credited for one OTP message.
func (s *LedgerService) PerMessageRevenue(ctx context.Context) decimal.Decimal {
	return s.amounts(ctx).PerMessageRevenue
}

func (s *LedgerService) EnsureTenant(ctx context.Context, tenantID int64) (*domain.Tenant, error) {
	tenant, err := s.tenants.Ensure(ctx, tenantID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to ensure tenant: %w", err)
	}
	return tenant, nil
}

func (s *LedgerService) GetTenant(ctx context.Context, tenantID int64) (*domain.Tenant, error) {
	return s.tenants.Get(ctx, tenantID)
}

// Credit adds a manual adjustment to the tenant's balance and total earned.
func (s *LedgerService) Credit(ctx context.Context, tenantID int64, amount decimal.Decimal) (*domain.Tenant, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	tenant, err := s.tenants.Credit(ctx, tenantID, amount, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to credit tenant: %w", err)
	}
	revenueCreditedTotal.Add(amount.InexactFloat64())
	s.logger.InfoContext(ctx, "Tenant credited", "tenant_id", tenantID, "amount", amount.String(), "balance", tenant.Balance.String())
	return tenant, nil
}

// CreditForMessage credits the lease holder for msg at most once. A message that was already
// credited returns Credited=false and no error. On return msg.RevenueCredited reflects the store.
func (s *LedgerService) CreditForMessage(ctx context.Context, lease *poolDomain.Lease, msg *inboundDomain.InboundMessage, amount decimal.Decimal) (*domain.CreditResult, error) {
	if msg.RevenueCredited {
		messageCreditsCounter.WithLabelValues("already_credited").Inc()
		return &domain.CreditResult{Credited: false}, nil
	}

	result, err := s.tenants.CreditForMessage(ctx, domain.MessageCredit{
		MessageID: msg.ID,
		LeaseID:   lease.ID,
		TenantID:  lease.TenantID,
		Amount:    amount,
		At:        s.now(),
	})
	if err != nil {
		messageCreditsCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to credit message %s: %w", msg.ID, err)
	}
	msg.RevenueCredited = true

	if !result.Credited {
		messageCreditsCounter.WithLabelValues("already_credited").Inc()
		s.logger.DebugContext(ctx, "Message already credited", "message_id", msg.ID)
		return result, nil
	}
	messageCreditsCounter.WithLabelValues("credited").Inc()
	revenueCreditedTotal.Add(amount.InexactFloat64())
	s.logger.InfoContext(ctx, "Message revenue credited",
		"message_id", msg.ID,
		"lease_id", lease.ID,
		"tenant_id", lease.TenantID,
		"amount", amount.String(),
	)
	return result, nil
}

// ApproveWithdrawal debits an approved withdrawal. Requesting and approving happen outside the gateway.
func (s *LedgerService) ApproveWithdrawal(ctx context.Context, tenantID int64, amount decimal.Decimal) (*domain.Tenant, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	minimum := s.amounts(ctx).MinWithdrawal
	if amount.LessThan(minimum) {
		withdrawalsCounter.WithLabelValues("below_minimum").Inc()
		return nil, fmt.Errorf("%w: minimum is %s", domain.ErrBelowMinimumWithdrawal, minimum.String())
	}

	tenant, err := s.tenants.Debit(ctx, tenantID, amount, s.now())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientBalance):
			withdrawalsCounter.WithLabelValues("insufficient_balance").Inc()
		case errors.Is(err, domain.ErrTenantNotFound):
		default:
			withdrawalsCounter.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to debit tenant: %w", err)
		}
		return nil, err
	}
	withdrawalsCounter.WithLabelValues("approved").Inc()
	s.logger.InfoContext(ctx, "Withdrawal approved", "tenant_id", tenantID, "amount", amount.String(), "balance", tenant.Balance.String())
	return tenant, nil
}

func (s *LedgerService) SetBanned(ctx context.Context, tenantID int64, banned bool) error {
	if err := s.tenants.SetBanned(ctx, tenantID, banned); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Tenant ban flag updated", "tenant_id", tenantID, "banned", banned)
	return nil
}

// Summary totals every tenant, with tenants active in the last 24 hours and today's (UTC) usage.
func (s *LedgerService) Summary(ctx context.Context) (*domain.LedgerSummary, error) {
	now := s.now()
	sum, err := s.tenants.Summary(ctx, now, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to summarise ledger: %w", err)
	}
	return sum, nil
}

// DailyStats returns today's (UTC) usage for the tenant.
func (s *LedgerService) DailyStats(ctx context.Context, tenantID int64) (*domain.DailyStats, error) {
	return s.tenants.GetDailyStats(ctx, tenantID, domain.Day(s.now()))
}

// RecordNumbersTaken implements the pool's usage hook.
func (s *LedgerService) RecordNumbersTaken(ctx context.Context, tenantID int64, count int, at time.Time) error {
	if count <= 0 {
		return nil
	}
	return s.tenants.RecordNumbersTaken(ctx, tenantID, count, domain.Day(at))
}
