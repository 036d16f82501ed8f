package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PhoneNumber is a leasable identity held in the pool.
type PhoneNumber struct {
	ID          uuid.UUID `json:"id"`
	Number      string    `json:"number"`
	CountryCode string    `json:"country_code"`
	BatchName   string    `json:"batch_name,omitempty"`
	Leased      bool      `json:"leased"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewNumber is one entry of an import batch.
type NewNumber struct {
	Number      string `json:"number" validate:"required,min=8,max=20"`
	CountryCode string `json:"country_code" validate:"required,max=8"`
	CountryName string `json:"country_name,omitempty"`
	CountryFlag string `json:"country_flag,omitempty"`
	BatchName   string `json:"batch_name,omitempty"`
}

// ImportResult summarises an import batch.
type ImportResult struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
	Retired    int `json:"retired"`
}

// Lease binds one phone number to one tenant for as long as it is active.
// An inactive lease is never reactivated; a new allocation creates a new lease.
type Lease struct {
	ID             uuid.UUID       `json:"id"`
	PhoneNumberID  uuid.UUID       `json:"phone_number_id"`
	Number         string          `json:"number"`
	CountryCode    string          `json:"country_code"`
	CountryFlag    string          `json:"country_flag,omitempty"`
	TenantID       int64           `json:"tenant_id"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	ReleasedAt     sql.NullTime    `json:"released_at"`
	MessagesRouted int64           `json:"messages_routed"`
	RevenueAccrued decimal.Decimal `json:"revenue_accrued"`
	LastMessageAt  sql.NullTime    `json:"last_message_at"`
}

// ResetType records who retired a number.
type ResetType string

const (
	ResetTypeUser  ResetType = "user"
	ResetTypeAdmin ResetType = "admin"
)

// Retirement is the history row written when a number is hard-released.
// Retired numbers are never imported again.
type Retirement struct {
	ID          uuid.UUID `json:"id"`
	Number      string    `json:"number"`
	CountryCode string    `json:"country_code"`
	TenantID    int64     `json:"tenant_id"`
	ResetType   ResetType `json:"reset_type"`
	RetiredAt   time.Time `json:"retired_at"`
}

// CountryAggregate caches per-country counts. Ground truth is the phone_numbers table;
// the reconciler rewrites these values periodically.
type CountryAggregate struct {
	CountryCode string `json:"country_code"`
	Name        string `json:"name"`
	Flag        string `json:"flag"`
	Total       int    `json:"total"`
	Leased      int    `json:"leased"`
}

// Available is the number of unleased numbers in the country.
func (c CountryAggregate) Available() int {
	if c.Leased >= c.Total {
		return 0
	}
	return c.Total - c.Leased
}

// Exhausted reports whether every number of a non-empty country is leased.
func (c CountryAggregate) Exhausted() bool {
	return c.Total > 0 && c.Leased >= c.Total
}

// RateLimitState is the fixed-window allocation counter of one tenant.
type RateLimitState struct {
	TenantID       int64
	RequestCount   int
	WindowStart    time.Time
	SuspendedUntil time.Time // zero when not suspended
}
