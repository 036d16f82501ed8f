package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TenantRepository persists tenants, their balances and daily statistics.
type TenantRepository interface {
	// Ensure returns the tenant, creating it with a zero balance if needed.
	Ensure(ctx context.Context, tenantID int64, now time.Time) (*Tenant, error)
	// Get returns ErrTenantNotFound for unknown tenants.
	Get(ctx context.Context, tenantID int64) (*Tenant, error)
	Credit(ctx context.Context, tenantID int64, amount decimal.Decimal, now time.Time) (*Tenant, error)
	// Debit returns ErrInsufficientBalance when the balance would go negative.
	Debit(ctx context.Context, tenantID int64, amount decimal.Decimal, now time.Time) (*Tenant, error)
	// CreditForMessage applies credit at most once per message. The flip of the message's
	// revenue_credited flag and the balance change are atomic.
	CreditForMessage(ctx context.Context, credit MessageCredit) (*CreditResult, error)
	SetBanned(ctx context.Context, tenantID int64, banned bool) error
	RecordNumbersTaken(ctx context.Context, tenantID int64, count int, day time.Time) error
	// GetDailyStats returns zeroed stats when nothing was recorded for the day.
	GetDailyStats(ctx context.Context, tenantID int64, day time.Time) (*DailyStats, error)
	// Summary counts tenants active since activeSince and totals the stats of day.
	Summary(ctx context.Context, day, activeSince time.Time) (*LedgerSummary, error)
}
