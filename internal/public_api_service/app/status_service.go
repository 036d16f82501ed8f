// Package app assembles read models that span several services for the public API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	inboundDomain "github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"golang.org/x/sync/errgroup"
)

type LedgerSummarizer interface {
	Summary(ctx context.Context) (*billingDomain.LedgerSummary, error)
}

type CountryLister interface {
	Countries(ctx context.Context) ([]poolDomain.CountryAggregate, error)
}

type MessageCounter interface {
	CountByState(ctx context.Context) (map[inboundDomain.ProcessingState]int64, error)
}

type SettingsReader interface {
	Current(ctx context.Context) (settingsDomain.Settings, error)
}

// PoolStatus totals the per-country aggregates. Exhausted lists the country codes with no
// number left, sorted.
type PoolStatus struct {
	Countries int      `json:"countries"`
	Numbers   int      `json:"numbers"`
	Leased    int      `json:"leased"`
	Available int      `json:"available"`
	Exhausted []string `json:"exhausted"`
}

// MessageStatus counts stored inbound messages per state.
type MessageStatus struct {
	Pending   int64 `json:"pending"`
	Routed    int64 `json:"routed"`
	Discarded int64 `json:"discarded"`
}

// Status is the admin dashboard snapshot.
type Status struct {
	Ledger      *billingDomain.LedgerSummary `json:"ledger"`
	Pool        PoolStatus                   `json:"pool"`
	Messages    MessageStatus                `json:"messages"`
	Settings    settingsDomain.Settings      `json:"settings"`
	GeneratedAt time.Time                    `json:"generated_at"`
}

// StatusService builds the admin status snapshot. The sources are read concurrently and any
// failing source fails the whole snapshot.
type StatusService struct {
	ledger    LedgerSummarizer
	countries CountryLister
	messages  MessageCounter
	settings  SettingsReader
	logger    *slog.Logger
	now       func() time.Time
}

func NewStatusService(ledger LedgerSummarizer, countries CountryLister, messages MessageCounter, settings SettingsReader, logger *slog.Logger) *StatusService {
	return &StatusService{
		ledger:    ledger,
		countries: countries,
		messages:  messages,
		settings:  settings,
		logger:    logger.With("component", "status_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (s *StatusService) WithClock(now func() time.Time) *StatusService {
	s.now = now
	return s
}

func (s *StatusService) Status(ctx context.Context) (*Status, error) {
	status := &Status{GeneratedAt: s.now(), Pool: PoolStatus{Exhausted: []string{}}}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sum, err := s.ledger.Summary(gctx)
		if err != nil {
			return err
		}
		status.Ledger = sum
		return nil
	})
	g.Go(func() error {
		countries, err := s.countries.Countries(gctx)
		if err != nil {
			return fmt.Errorf("failed to list countries: %w", err)
		}
		status.Pool = poolStatus(countries)
		return nil
	})
	g.Go(func() error {
		counts, err := s.messages.CountByState(gctx)
		if err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		status.Messages = MessageStatus{
			Pending:   counts[inboundDomain.StatePending],
			Routed:    counts[inboundDomain.StateRouted],
			Discarded: counts[inboundDomain.StateDiscarded],
		}
		return nil
	})
	g.Go(func() error {
		current, err := s.settings.Current(gctx)
		if err != nil {
			return err
		}
		status.Settings = current
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to build admin status", "error", err)
		return nil, err
	}
	return status, nil
}

func poolStatus(countries []poolDomain.CountryAggregate) PoolStatus {
	p := PoolStatus{Countries: len(countries), Exhausted: []string{}}
	for _, c := range countries {
		p.Numbers += c.Total
		p.Leased += c.Leased
		p.Available += c.Available()
		if c.Exhausted() {
			p.Exhausted = append(p.Exhausted, c.CountryCode)
		}
	}
	sort.Strings(p.Exhausted)
	return p
}
