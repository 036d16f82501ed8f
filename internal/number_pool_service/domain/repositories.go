package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LeaseRepository owns the lease lifecycle. Allocate, SoftRelease and HardRelease must each be
// atomic: the flip of a number's leased flag and the lease row change happen together or not at all.
type LeaseRepository interface {
	// Allocate claims up to limit unleased numbers of countryCode for tenantID and returns the
	// new active leases. Fewer than limit (including zero) is not an error.
	Allocate(ctx context.Context, tenantID int64, countryCode string, limit int, now time.Time) ([]*Lease, error)
	// FindByID returns ErrLeaseNotFound when no lease has the id.
	FindByID(ctx context.Context, id uuid.UUID) (*Lease, error)
	// FindActiveByNumber returns (nil, nil) when the number has no active lease.
	FindActiveByNumber(ctx context.Context, number string) (*Lease, error)
	ListActiveByTenant(ctx context.Context, tenantID int64) ([]*Lease, error)
	CountActiveByTenant(ctx context.Context, tenantID int64) (int, error)
	// SoftRelease returns ErrLeaseNotActive if the lease was already released.
	SoftRelease(ctx context.Context, leaseID uuid.UUID, now time.Time) error
	// HardRelease deletes the number with its leases and messages and records the retirement.
	HardRelease(ctx context.Context, leaseID uuid.UUID, resetType ResetType, now time.Time) (*Retirement, error)
}

// NumberRepository imports numbers into the pool. Retired numbers are counted, never re-added.
type NumberRepository interface {
	Import(ctx context.Context, numbers []NewNumber, now time.Time) (ImportResult, error)
}

// CountryRepository reads and reconciles the per-country aggregates.
type CountryRepository interface {
	// Get returns ErrCountryNotFound for unknown codes.
	Get(ctx context.Context, countryCode string) (*CountryAggregate, error)
	List(ctx context.Context) ([]CountryAggregate, error)
	// Reconcile clears leased flags on numbers without an active lease and recomputes
	// every aggregate from the phone_numbers table.
	Reconcile(ctx context.Context) ([]CountryAggregate, error)
}

// RateLimitRepository persists per-tenant rate limit state.
type RateLimitRepository interface {
	// Get returns (nil, nil) when the tenant has no state yet.
	Get(ctx context.Context, tenantID int64) (*RateLimitState, error)
	Save(ctx context.Context, state *RateLimitState) error
	// Reset drops the tenant's state, lifting any suspension. Unknown tenants are not an error.
	Reset(ctx context.Context, tenantID int64) error
}
