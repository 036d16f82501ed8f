package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCapacityExceeded = errors.New("tenant has reached the maximum number of active leases")
	ErrPoolExhausted    = errors.New("no unleased numbers left for this country")
	ErrRateLimited      = errors.New("allocation rate limit exceeded")
	ErrLeaseNotFound    = errors.New("lease not found")
	ErrLeaseNotActive   = errors.New("lease is no longer active")
	ErrNotLeaseOwner    = errors.New("lease belongs to another tenant")
	ErrCountryNotFound  = errors.New("country not found")

	ErrAllocationDisabled = errors.New("allocation is disabled for maintenance")
)

// RateLimitedError is returned while a tenant is suspended from allocating.
type RateLimitedError struct {
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrRateLimited, e.Remaining.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
