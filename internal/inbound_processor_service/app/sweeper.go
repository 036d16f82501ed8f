package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
)

// MessageRouter routes a single message. *Router implements it.
type MessageRouter interface {
	Route(ctx context.Context, msg *domain.InboundMessage) (Outcome, error)
}

// SweepConfig controls the backlog sweep and retention.
type SweepConfig struct {
	BatchSize           int
	Interval            time.Duration
	ProcessedRetention  time.Duration
	StalePendingCeiling time.Duration
}

// SweepReport summarises one sweeper cycle.
type SweepReport struct {
	Scanned         int
	Routed          int
	Unassigned      int
	Discarded       int
	Failed          int
	DeletedTerminal int64
	DeletedStale    int64
}

// Sweeper retries pending messages that the fast path could not route and enforces retention.
type Sweeper struct {
	inbox  domain.InboxRepository
	router MessageRouter
	config SweepConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(inbox domain.InboxRepository, router MessageRouter, cfg SweepConfig, logger *slog.Logger) *Sweeper {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Sweeper{
		inbox:  inbox,
		router: router,
		config: cfg,
		logger: logger.With("component", "sweeper"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// RunCycle routes one batch of pending messages and applies retention. Per-message failures
// are counted in the report; only a failure to read the backlog or to delete is returned.
func (s *Sweeper) RunCycle(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	pending, err := s.inbox.ListPending(ctx, s.config.BatchSize)
	if err != nil {
		sweepCyclesCounter.WithLabelValues("error").Inc()
		return report, fmt.Errorf("failed to list pending messages: %w", err)
	}
	report.Scanned = len(pending)

	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := s.router.Route(ctx, msg)
		if err != nil {
			report.Failed++
			s.logger.ErrorContext(ctx, "Failed to route pending message", "message_id", msg.ID, "error", err)
			continue
		}
		switch outcome.Kind {
		case OutcomeRouted:
			report.Routed++
		case OutcomeUnassigned:
			report.Unassigned++
		case OutcomeDiscarded:
			report.Discarded++
		}
	}

	now := s.now()
	report.DeletedTerminal, err = s.inbox.DeleteTerminalBefore(ctx, now.Add(-s.config.ProcessedRetention))
	if err != nil {
		sweepCyclesCounter.WithLabelValues("error").Inc()
		return report, fmt.Errorf("failed to delete processed messages: %w", err)
	}
	report.DeletedStale, err = s.inbox.DeletePendingBefore(ctx, now.Add(-s.config.StalePendingCeiling))
	if err != nil {
		sweepCyclesCounter.WithLabelValues("error").Inc()
		return report, fmt.Errorf("failed to delete stale pending messages: %w", err)
	}
	sweepDeletedCounter.WithLabelValues("terminal").Add(float64(report.DeletedTerminal))
	sweepDeletedCounter.WithLabelValues("stale_pending").Add(float64(report.DeletedStale))
	sweepCyclesCounter.WithLabelValues("ok").Inc()

	if report.Scanned > 0 || report.DeletedTerminal > 0 || report.DeletedStale > 0 {
		s.logger.InfoContext(ctx, "Sweep cycle finished",
			"scanned", report.Scanned,
			"routed", report.Routed,
			"unassigned", report.Unassigned,
			"discarded", report.Discarded,
			"failed", report.Failed,
			"deleted_terminal", report.DeletedTerminal,
			"deleted_stale", report.DeletedStale,
		)
	}
	return report, nil
}

// Run drives cycles until ctx is cancelled. A failed cycle is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "Sweeper started", "interval", s.config.Interval, "batch_size", s.config.BatchSize)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "Sweep cycle failed", "error", err)
			}
		}
	}
}
