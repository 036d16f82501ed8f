package memory

import (
	"context"
	"time"

	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	inboundDomain "github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TenantRepository implements billingDomain.TenantRepository.
type TenantRepository struct{ s *Store }

func (r *TenantRepository) Ensure(ctx context.Context, tenantID int64, now time.Time) (*billingDomain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return copyTenant(r.s.ensureTenantLocked(tenantID, now)), nil
}

func (r *TenantRepository) Get(ctx context.Context, tenantID int64) (*billingDomain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[tenantID]
	if !ok {
		return nil, billingDomain.ErrTenantNotFound
	}
	return copyTenant(t), nil
}

func (r *TenantRepository) Credit(ctx context.Context, tenantID int64, amount decimal.Decimal, now time.Time) (*billingDomain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.ensureTenantLocked(tenantID, now)
	t.Balance = t.Balance.Add(amount)
	t.TotalEarned = t.TotalEarned.Add(amount)
	t.LastActivityAt = now
	return copyTenant(t), nil
}

func (r *TenantRepository) Debit(ctx context.Context, tenantID int64, amount decimal.Decimal, now time.Time) (*billingDomain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[tenantID]
	if !ok {
		return nil, billingDomain.ErrTenantNotFound
	}
	if t.Balance.LessThan(amount) {
		return nil, billingDomain.ErrInsufficientBalance
	}
	t.Balance = t.Balance.Sub(amount)
	t.TotalWithdrawn = t.TotalWithdrawn.Add(amount)
	t.LastActivityAt = now
	return copyTenant(t), nil
}

func (r *TenantRepository) CreditForMessage(ctx context.Context, credit billingDomain.MessageCredit) (*billingDomain.CreditResult, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[credit.MessageID]
	if !ok || msg.RevenueCredited {
		return &billingDomain.CreditResult{Credited: false}, nil
	}
	msg.RevenueCredited = true

	t := s.ensureTenantLocked(credit.TenantID, credit.At)
	t.Balance = t.Balance.Add(credit.Amount)
	t.TotalEarned = t.TotalEarned.Add(credit.Amount)
	t.OTPReceivedCount++
	t.LastActivityAt = credit.At

	if l, ok := s.leases[credit.LeaseID]; ok {
		l.MessagesRouted++
		l.RevenueAccrued = l.RevenueAccrued.Add(credit.Amount)
		l.LastMessageAt.Time, l.LastMessageAt.Valid = credit.At, true
	}

	st := s.statsLocked(credit.TenantID, credit.At)
	st.MessagesReceived++
	st.RevenueEarned = st.RevenueEarned.Add(credit.Amount)

	return &billingDomain.CreditResult{Credited: true, Tenant: copyTenant(t)}, nil
}

func (r *TenantRepository) SetBanned(ctx context.Context, tenantID int64, banned bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[tenantID]
	if !ok {
		return billingDomain.ErrTenantNotFound
	}
	t.IsBanned = banned
	return nil
}

func (r *TenantRepository) RecordNumbersTaken(ctx context.Context, tenantID int64, count int, day time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ensureTenantLocked(tenantID, day)
	r.s.statsLocked(tenantID, day).NumbersTaken += count
	return nil
}

func (r *TenantRepository) GetDailyStats(ctx context.Context, tenantID int64, day time.Time) (*billingDomain.DailyStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stats[statsKey{tenantID: tenantID, day: billingDomain.Day(day)}]
	if !ok {
		return &billingDomain.DailyStats{TenantID: tenantID, Day: billingDomain.Day(day)}, nil
	}
	cp := *st
	return &cp, nil
}

func (r *TenantRepository) Summary(ctx context.Context, day, activeSince time.Time) (*billingDomain.LedgerSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	day = billingDomain.Day(day)
	sum := &billingDomain.LedgerSummary{Today: billingDomain.DailyTotals{Day: day}}
	for _, t := range r.s.tenants {
		if t.IsBanned {
			sum.Banned++
			continue
		}
		sum.Tenants++
		if !t.LastActivityAt.Before(activeSince) {
			sum.ActiveLast24h++
		}
		sum.TotalBalance = sum.TotalBalance.Add(t.Balance)
		sum.TotalEarned = sum.TotalEarned.Add(t.TotalEarned)
		sum.TotalWithdrawn = sum.TotalWithdrawn.Add(t.TotalWithdrawn)
		sum.OTPReceived += t.OTPReceivedCount
	}
	for key, st := range r.s.stats {
		if !key.day.Equal(day) {
			continue
		}
		sum.Today.NumbersTaken += int64(st.NumbersTaken)
		sum.Today.MessagesReceived += int64(st.MessagesReceived)
		sum.Today.RevenueEarned = sum.Today.RevenueEarned.Add(st.RevenueEarned)
	}
	return sum, nil
}

// InboxRepository implements inboundDomain.InboxRepository.
type InboxRepository struct{ s *Store }

func (r *InboxRepository) Create(ctx context.Context, msg *inboundDomain.InboundMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.sourceMessages[msg.SourceMessageID]; exists {
		return inboundDomain.ErrDuplicateMessage
	}
	r.s.messages[msg.ID] = copyMessage(msg)
	r.s.sourceMessages[msg.SourceMessageID] = msg.ID
	return nil
}

// Get returns a copy of a stored message, or nil.
func (r *InboxRepository) Get(id uuid.UUID) *inboundDomain.InboundMessage {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil
	}
	return copyMessage(m)
}

func (r *InboxRepository) ListPending(ctx context.Context, limit int) ([]*inboundDomain.InboundMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pending := []*inboundDomain.InboundMessage{}
	for _, m := range r.s.messages {
		if m.State == inboundDomain.StatePending {
			pending = append(pending, copyMessage(m))
		}
	}
	sortMessages(pending)
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *InboxRepository) ListPendingForNumbers(ctx context.Context, numbers []string, limit int) ([]*inboundDomain.InboundMessage, error) {
	wanted := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		wanted[n] = struct{}{}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pending := []*inboundDomain.InboundMessage{}
	for _, m := range r.s.messages {
		if m.State != inboundDomain.StatePending || !m.Number.Valid {
			continue
		}
		if _, ok := wanted[m.Number.String]; ok {
			pending = append(pending, copyMessage(m))
		}
	}
	sortMessages(pending)
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *InboxRepository) CountByState(ctx context.Context) (map[inboundDomain.ProcessingState]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[inboundDomain.ProcessingState]int64{}
	for _, m := range r.s.messages {
		counts[m.State]++
	}
	return counts, nil
}

func (r *InboxRepository) MarkRouted(ctx context.Context, id uuid.UUID, tenantID int64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.State != inboundDomain.StatePending {
		return false, nil
	}
	m.State = inboundDomain.StateRouted
	m.ForwardedTo.Int64, m.ForwardedTo.Valid = tenantID, true
	m.ProcessedAt.Time, m.ProcessedAt.Valid = at, true
	return true, nil
}

func (r *InboxRepository) MarkDiscarded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.State != inboundDomain.StatePending {
		return false, nil
	}
	m.State = inboundDomain.StateDiscarded
	m.ProcessedAt.Time, m.ProcessedAt.Valid = at, true
	return true, nil
}

func (r *InboxRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, m := range r.s.messages {
		if m.State != inboundDomain.StatePending && m.ProcessedAt.Valid && m.ProcessedAt.Time.Before(cutoff) {
			delete(r.s.sourceMessages, m.SourceMessageID)
			delete(r.s.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *InboxRepository) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, m := range r.s.messages {
		if m.State == inboundDomain.StatePending && m.ReceivedAt.Before(cutoff) {
			delete(r.s.sourceMessages, m.SourceMessageID)
			delete(r.s.messages, id)
			deleted++
		}
	}
	return deleted, nil
}
