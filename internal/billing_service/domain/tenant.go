package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tenant is an account that leases numbers and earns revenue. Tenants are created on first
// use and never hard-deleted; banning is a flag.
type Tenant struct {
	ID               int64           `json:"id"`
	Balance          decimal.Decimal `json:"balance"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	TotalWithdrawn   decimal.Decimal `json:"total_withdrawn"`
	OTPReceivedCount int64           `json:"otp_received_count"`
	IsBanned         bool            `json:"is_banned"`
	CreatedAt        time.Time       `json:"created_at"`
	LastActivityAt   time.Time       `json:"last_activity_at"`
}

// DailyStats aggregates one tenant's usage for one UTC day.
type DailyStats struct {
	TenantID         int64           `json:"tenant_id"`
	Day              time.Time       `json:"day"`
	NumbersTaken     int             `json:"numbers_taken"`
	MessagesReceived int             `json:"messages_received"`
	RevenueEarned    decimal.Decimal `json:"revenue_earned"`
}

// MessageCredit is the revenue owed for one inbound message delivered over one lease.
type MessageCredit struct {
	MessageID uuid.UUID
	LeaseID   uuid.UUID
	TenantID  int64
	Amount    decimal.Decimal
	At        time.Time
}

// CreditResult reports whether a message credit was applied. Credited is false when the
// message had already been credited; that is the normal idempotent path.
type CreditResult struct {
	Credited bool
	Tenant   *Tenant
}

// LedgerSummary aggregates every tenant for the admin dashboard. Today covers one UTC day.
type LedgerSummary struct {
	Tenants        int64           `json:"tenants"`
	Banned         int64           `json:"banned"`
	ActiveLast24h  int64           `json:"active_last_24h"`
	TotalBalance   decimal.Decimal `json:"total_balance"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	OTPReceived    int64           `json:"otp_received"`
	Today          DailyTotals     `json:"today"`
}

// DailyTotals sums DailyStats over all tenants.
type DailyTotals struct {
	Day              time.Time       `json:"day"`
	NumbersTaken     int64           `json:"numbers_taken"`
	MessagesReceived int64           `json:"messages_received"`
	RevenueEarned    decimal.Decimal `json:"revenue_earned"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
