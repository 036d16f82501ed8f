package memory

import (
	"context"
	"sort"
	"time"

	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/google/uuid"
)

// LeaseRepository implements poolDomain.LeaseRepository.
type LeaseRepository struct{ s *Store }

func (r *LeaseRepository) Allocate(ctx context.Context, tenantID int64, countryCode string, limit int, now time.Time) ([]*poolDomain.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*poolDomain.PhoneNumber
	for _, n := range s.numbers {
		if n.CountryCode == countryCode && !n.Leased {
			candidates = append(candidates, n)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].Number < candidates[j].Number
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	if len(candidates) == 0 {
		return []*poolDomain.Lease{}, nil
	}

	s.ensureTenantLocked(tenantID, now)
	country := s.countries[countryCode]

	leases := make([]*poolDomain.Lease, 0, len(candidates))
	for _, n := range candidates {
		n.Leased = true
		lease := &poolDomain.Lease{
			ID:            uuid.New(),
			PhoneNumberID: n.ID,
			Number:        n.Number,
			CountryCode:   n.CountryCode,
			TenantID:      tenantID,
			Active:        true,
			CreatedAt:     now,
		}
		if country != nil {
			lease.CountryFlag = country.Flag
			country.Leased++
		}
		s.leases[lease.ID] = lease
		leases = append(leases, copyLease(lease))
	}
	return leases, nil
}

func (r *LeaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*poolDomain.Lease, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leases[id]
	if !ok {
		return nil, poolDomain.ErrLeaseNotFound
	}
	return copyLease(l), nil
}

func (r *LeaseRepository) FindActiveByNumber(ctx context.Context, number string) (*poolDomain.Lease, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.leases {
		if l.Active && l.Number == number {
			return copyLease(l), nil
		}
	}
	return nil, nil
}

func (r *LeaseRepository) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*poolDomain.Lease, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	leases := []*poolDomain.Lease{}
	for _, l := range r.s.leases {
		if l.Active && l.TenantID == tenantID {
			leases = append(leases, copyLease(l))
		}
	}
	sortLeases(leases)
	return leases, nil
}

func (r *LeaseRepository) CountActiveByTenant(ctx context.Context, tenantID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, l := range r.s.leases {
		if l.Active && l.TenantID == tenantID {
			count++
		}
	}
	return count, nil
}

func (r *LeaseRepository) SoftRelease(ctx context.Context, leaseID uuid.UUID, now time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[leaseID]
	if !ok {
		return poolDomain.ErrLeaseNotFound
	}
	if !l.Active {
		return poolDomain.ErrLeaseNotActive
	}
	l.Active = false
	l.ReleasedAt.Time, l.ReleasedAt.Valid = now, true

	if n, ok := s.numbers[l.PhoneNumberID]; ok && n.Leased {
		n.Leased = false
		if c, ok := s.countries[n.CountryCode]; ok && c.Leased > 0 {
			c.Leased--
		}
	}
	return nil
}

func (r *LeaseRepository) HardRelease(ctx context.Context, leaseID uuid.UUID, resetType poolDomain.ResetType, now time.Time) (*poolDomain.Retirement, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[leaseID]
	if !ok {
		return nil, poolDomain.ErrLeaseNotFound
	}
	if !l.Active {
		return nil, poolDomain.ErrLeaseNotActive
	}

	for id, m := range s.messages {
		if m.Number.Valid && m.Number.String == l.Number {
			delete(s.sourceMessages, m.SourceMessageID)
			delete(s.messages, id)
		}
	}
	for id, other := range s.leases {
		if other.PhoneNumberID == l.PhoneNumberID {
			delete(s.leases, id)
		}
	}
	if n, ok := s.numbers[l.PhoneNumberID]; ok {
		if c, ok := s.countries[n.CountryCode]; ok {
			if c.Total > 0 {
				c.Total--
			}
			if n.Leased && c.Leased > 0 {
				c.Leased--
			}
		}
		delete(s.numberIndex, n.Number)
		delete(s.numbers, n.ID)
	}

	retirement := poolDomain.Retirement{
		ID:          uuid.New(),
		Number:      l.Number,
		CountryCode: l.CountryCode,
		TenantID:    l.TenantID,
		ResetType:   resetType,
		RetiredAt:   now,
	}
	s.retired = append(s.retired, retirement)
	return &retirement, nil
}

// NumberRepository implements poolDomain.NumberRepository.
type NumberRepository struct{ s *Store }

func (r *NumberRepository) Import(ctx context.Context, numbers []poolDomain.NewNumber, now time.Time) (poolDomain.ImportResult, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var result poolDomain.ImportResult
	for _, nn := range numbers {
		if r.isRetiredLocked(nn.Number) {
			result.Retired++
			continue
		}
		if _, exists := s.numberIndex[nn.Number]; exists {
			result.Duplicates++
			continue
		}
		c, ok := s.countries[nn.CountryCode]
		if !ok {
			c = &poolDomain.CountryAggregate{CountryCode: nn.CountryCode}
			s.countries[nn.CountryCode] = c
		}
		if nn.CountryName != "" {
			c.Name = nn.CountryName
		}
		if nn.CountryFlag != "" {
			c.Flag = nn.CountryFlag
		}
		n := &poolDomain.PhoneNumber{
			ID:          uuid.New(),
			Number:      nn.Number,
			CountryCode: nn.CountryCode,
			BatchName:   nn.BatchName,
			CreatedAt:   now,
		}
		s.numbers[n.ID] = n
		s.numberIndex[n.Number] = n.ID
		c.Total++
		result.Added++
	}
	return result, nil
}

func (r *NumberRepository) isRetiredLocked(number string) bool {
	for _, ret := range r.s.retired {
		if ret.Number == number {
			return true
		}
	}
	return false
}

// CountryRepository implements poolDomain.CountryRepository.
type CountryRepository struct{ s *Store }

func (r *CountryRepository) Get(ctx context.Context, countryCode string) (*poolDomain.CountryAggregate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.countries[countryCode]
	if !ok {
		return nil, poolDomain.ErrCountryNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CountryRepository) List(ctx context.Context) ([]poolDomain.CountryAggregate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.listLocked(), nil
}

func (r *CountryRepository) listLocked() []poolDomain.CountryAggregate {
	out := make([]poolDomain.CountryAggregate, 0, len(r.s.countries))
	for _, c := range r.s.countries {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountryCode < out[j].CountryCode })
	return out
}

func (r *CountryRepository) Reconcile(ctx context.Context) ([]poolDomain.CountryAggregate, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.countries {
		c.Total, c.Leased = 0, 0
	}
	for _, n := range s.numbers {
		if n.Leased && s.activeLeaseForNumberLocked(n.ID) == nil {
			n.Leased = false
		}
		c, ok := s.countries[n.CountryCode]
		if !ok {
			c = &poolDomain.CountryAggregate{CountryCode: n.CountryCode}
			s.countries[n.CountryCode] = c
		}
		c.Total++
		if n.Leased {
			c.Leased++
		}
	}
	return r.listLocked(), nil
}

// RateLimitRepository implements poolDomain.RateLimitRepository.
type RateLimitRepository struct{ s *Store }

func (r *RateLimitRepository) Get(ctx context.Context, tenantID int64) (*poolDomain.RateLimitState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.rateLimits[tenantID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r *RateLimitRepository) Save(ctx context.Context, state *poolDomain.RateLimitState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.rateLimits[state.TenantID] = *state
	return nil
}

func (r *RateLimitRepository) Reset(ctx context.Context, tenantID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.rateLimits, tenantID)
	return nil
}
