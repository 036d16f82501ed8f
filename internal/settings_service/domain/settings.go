package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the operator-mutable policy shared by every gateway process. Until an operator
// saves it once, the configured defaults apply.
type Settings struct {
	AllocationEnabled        bool            `json:"allocation_enabled"`
	BatchSize                int             `json:"batch_size"`
	MaxActiveLeasesPerTenant int             `json:"max_active_leases_per_tenant"`
	PerMessageRevenue        decimal.Decimal `json:"per_message_revenue"`
	MinWithdrawal            decimal.Decimal `json:"min_withdrawal"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// Update is a partial change; nil fields keep their current value.
type Update struct {
	AllocationEnabled        *bool            `json:"allocation_enabled,omitempty"`
	BatchSize                *int             `json:"batch_size,omitempty"`
	MaxActiveLeasesPerTenant *int             `json:"max_active_leases_per_tenant,omitempty"`
	PerMessageRevenue        *decimal.Decimal `json:"per_message_revenue,omitempty"`
	MinWithdrawal            *decimal.Decimal `json:"min_withdrawal,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.AllocationEnabled == nil && u.BatchSize == nil && u.MaxActiveLeasesPerTenant == nil &&
		u.PerMessageRevenue == nil && u.MinWithdrawal == nil
}

// Apply returns a copy of s with u's fields set.
func (s Settings) Apply(u Update) Settings {
	if u.AllocationEnabled != nil {
		s.AllocationEnabled = *u.AllocationEnabled
	}
	if u.BatchSize != nil {
		s.BatchSize = *u.BatchSize
	}
	if u.MaxActiveLeasesPerTenant != nil {
		s.MaxActiveLeasesPerTenant = *u.MaxActiveLeasesPerTenant
	}
	if u.PerMessageRevenue != nil {
		s.PerMessageRevenue = *u.PerMessageRevenue
	}
	if u.MinWithdrawal != nil {
		s.MinWithdrawal = *u.MinWithdrawal
	}
	return s
}

func (s Settings) Validate() error {
	if s.BatchSize < 1 {
		return fmt.Errorf("%w: batch_size must be at least 1", ErrInvalidSettings)
	}
	if s.MaxActiveLeasesPerTenant < 1 {
		return fmt.Errorf("%w: max_active_leases_per_tenant must be at least 1", ErrInvalidSettings)
	}
	if s.PerMessageRevenue.IsNegative() {
		return fmt.Errorf("%w: per_message_revenue must not be negative", ErrInvalidSettings)
	}
	if s.MinWithdrawal.IsNegative() {
		return fmt.Errorf("%w: min_withdrawal must not be negative", ErrInvalidSettings)
	}
	return nil
}

// Repository stores the single settings row.
type Repository interface {
	// Get returns (nil, nil) while no settings were saved.
	Get(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}
