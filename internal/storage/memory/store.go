// Package memory is a process-local implementation of every repository the gateway uses.
// It backs STORE_DRIVER=memory for local runs and the concurrency tests. All state sits
// behind one mutex, so each repository call is atomic.
package memory

import (
	"sort"
	"sync"
	"time"

	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	inboundDomain "github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"github.com/google/uuid"
)

type statsKey struct {
	tenantID int64
	day      time.Time
}

// Store holds the whole data set in maps.
type Store struct {
	mu sync.Mutex

	numbers        map[uuid.UUID]*poolDomain.PhoneNumber
	numberIndex    map[string]uuid.UUID
	countries      map[string]*poolDomain.CountryAggregate
	leases         map[uuid.UUID]*poolDomain.Lease
	retired        []poolDomain.Retirement
	rateLimits     map[int64]poolDomain.RateLimitState
	tenants        map[int64]*billingDomain.Tenant
	stats          map[statsKey]*billingDomain.DailyStats
	messages       map[uuid.UUID]*inboundDomain.InboundMessage
	sourceMessages map[string]uuid.UUID
	settings       *settingsDomain.Settings
}

func NewStore() *Store {
	return &Store{
		numbers:        make(map[uuid.UUID]*poolDomain.PhoneNumber),
		numberIndex:    make(map[string]uuid.UUID),
		countries:      make(map[string]*poolDomain.CountryAggregate),
		leases:         make(map[uuid.UUID]*poolDomain.Lease),
		rateLimits:     make(map[int64]poolDomain.RateLimitState),
		tenants:        make(map[int64]*billingDomain.Tenant),
		stats:          make(map[statsKey]*billingDomain.DailyStats),
		messages:       make(map[uuid.UUID]*inboundDomain.InboundMessage),
		sourceMessages: make(map[string]uuid.UUID),
	}
}

// Leases returns the lease repository view.
func (s *Store) Leases() *LeaseRepository { return &LeaseRepository{s: s} }

// Numbers returns the number import view.
func (s *Store) Numbers() *NumberRepository { return &NumberRepository{s: s} }

// Countries returns the country aggregate view.
func (s *Store) Countries() *CountryRepository { return &CountryRepository{s: s} }

// RateLimits returns the rate limit state view.
func (s *Store) RateLimits() *RateLimitRepository { return &RateLimitRepository{s: s} }

// Tenants returns the tenant and ledger view.
func (s *Store) Tenants() *TenantRepository { return &TenantRepository{s: s} }

// Inbox returns the inbound message view.
func (s *Store) Inbox() *InboxRepository { return &InboxRepository{s: s} }

// Settings returns the runtime settings view.
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{s: s} }

// ensureTenantLocked must be called with s.mu held.
func (s *Store) ensureTenantLocked(tenantID int64, now time.Time) *billingDomain.Tenant {
	t, ok := s.tenants[tenantID]
	if !ok {
		t = &billingDomain.Tenant{ID: tenantID, CreatedAt: now, LastActivityAt: now}
		s.tenants[tenantID] = t
	}
	return t
}

// statsLocked must be called with s.mu held.
func (s *Store) statsLocked(tenantID int64, at time.Time) *billingDomain.DailyStats {
	key := statsKey{tenantID: tenantID, day: billingDomain.Day(at)}
	st, ok := s.stats[key]
	if !ok {
		st = &billingDomain.DailyStats{TenantID: tenantID, Day: key.day}
		s.stats[key] = st
	}
	return st
}

func (s *Store) activeLeaseForNumberLocked(numberID uuid.UUID) *poolDomain.Lease {
	for _, l := range s.leases {
		if l.PhoneNumberID == numberID && l.Active {
			return l
		}
	}
	return nil
}

func sortLeases(leases []*poolDomain.Lease) {
	sort.Slice(leases, func(i, j int) bool {
		if leases[i].CreatedAt.Equal(leases[j].CreatedAt) {
			return leases[i].Number < leases[j].Number
		}
		return leases[i].CreatedAt.Before(leases[j].CreatedAt)
	})
}

func copyLease(l *poolDomain.Lease) *poolDomain.Lease {
	c := *l
	return &c
}

func copyTenant(t *billingDomain.Tenant) *billingDomain.Tenant {
	c := *t
	return &c
}

func copyMessage(m *inboundDomain.InboundMessage) *inboundDomain.InboundMessage {
	c := *m
	return &c
}

func sortMessages(msgs []*inboundDomain.InboundMessage) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].ReceivedAt.Equal(msgs[j].ReceivedAt) {
			return msgs[i].SourceMessageID < msgs[j].SourceMessageID
		}
		return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
	})
}
