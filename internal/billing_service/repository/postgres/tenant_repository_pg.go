package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/billing_service/domain"
	"github.com/aradsms/otp_gateway/internal/platform/database"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const tenantColumns = `id, balance, total_earned, total_withdrawn, otp_received_count, is_banned, created_at, last_activity_at`

type PgTenantRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgTenantRepository(db database.DB, logger *slog.Logger) *PgTenantRepository {
	return &PgTenantRepository{db: db, logger: logger.With("component", "tenant_repository_pg")}
}

// scanTenant is a helper function to scan a single tenant row.
func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(
		&t.ID,
		&t.Balance,
		&t.TotalEarned,
		&t.TotalWithdrawn,
		&t.OTPReceivedCount,
		&t.IsBanned,
		&t.CreatedAt,
		&t.LastActivityAt,
	)
	if err != nil {
		return nil, err // Let caller handle pgx.ErrNoRows
	}
	return &t, nil
}

func ensureTenant(ctx context.Context, q database.Querier, tenantID int64, now time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO tenants (id, created_at, last_activity_at) VALUES ($1, $2, $2) ON CONFLICT (id) DO NOTHING`,
		tenantID, now)
	if err != nil {
		return fmt.Errorf("ensure tenant: %w", err)
	}
	return nil
}

func (r *PgTenantRepository) Ensure(ctx context.Context, tenantID int64, now time.Time) (*domain.Tenant, error) {
	if err := ensureTenant(ctx, r.db, tenantID, now); err != nil {
		r.logger.ErrorContext(ctx, "Error ensuring tenant", "tenant_id", tenantID, "error", err)
		return nil, database.Classify(err)
	}
	return r.Get(ctx, tenantID)
}

func (r *PgTenantRepository) Get(ctx context.Context, tenantID int64) (*domain.Tenant, error) {
	tenant, err := scanTenant(r.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting tenant", "tenant_id", tenantID, "error", err)
		return nil, database.Classify(err)
	}
	return tenant, nil
}

func (r *PgTenantRepository) Credit(ctx context.Context, tenantID int64, amount decimal.Decimal, now time.Time) (*domain.Tenant, error) {
	var tenant *domain.Tenant
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := ensureTenant(ctx, tx, tenantID, now); err != nil {
			return err
		}
		var err error
		tenant, err = scanTenant(tx.QueryRow(ctx, `
			UPDATE tenants SET balance = balance + $2, total_earned = total_earned + $2, last_activity_at = $3
			WHERE id = $1
			RETURNING `+tenantColumns,
			tenantID, amount, now))
		return err
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error crediting tenant", "tenant_id", tenantID, "error", err)
		return nil, database.Classify(err)
	}
	return tenant, nil
}

// Debit never lets the balance go negative; the WHERE clause and the CHECK constraint both guard it.
func (r *PgTenantRepository) Debit(ctx context.Context, tenantID int64, amount decimal.Decimal, now time.Time) (*domain.Tenant, error) {
	tenant, err := scanTenant(r.db.QueryRow(ctx, `
		UPDATE tenants SET balance = balance - $2, total_withdrawn = total_withdrawn + $2, last_activity_at = $3
		WHERE id = $1 AND balance >= $2
		RETURNING `+tenantColumns,
		tenantID, amount, now))
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.ErrorContext(ctx, "Error debiting tenant", "tenant_id", tenantID, "error", err)
		return nil, database.Classify(err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, tenantID).Scan(&exists); err != nil {
		return nil, database.Classify(err)
	}
	if !exists {
		return nil, domain.ErrTenantNotFound
	}
	return nil, domain.ErrInsufficientBalance
}

// CreditForMessage flips revenue_credited first; only the transaction that wins the flip
// touches the balance, the lease counters and the daily stats.
func (r *PgTenantRepository) CreditForMessage(ctx context.Context, credit domain.MessageCredit) (*domain.CreditResult, error) {
	result := &domain.CreditResult{}
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE inbound_messages SET revenue_credited = TRUE WHERE id = $1 AND NOT revenue_credited`,
			credit.MessageID)
		if err != nil {
			return fmt.Errorf("flip revenue_credited: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if err := ensureTenant(ctx, tx, credit.TenantID, credit.At); err != nil {
			return err
		}
		tenant, err := scanTenant(tx.QueryRow(ctx, `
			UPDATE tenants SET
				balance = balance + $2,
				total_earned = total_earned + $2,
				otp_received_count = otp_received_count + 1,
				last_activity_at = $3
			WHERE id = $1
			RETURNING `+tenantColumns,
			credit.TenantID, credit.Amount, credit.At))
		if err != nil {
			return fmt.Errorf("credit tenant: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE leases SET
				messages_routed = messages_routed + 1,
				revenue_accrued = revenue_accrued + $2,
				last_message_at = $3
			WHERE id = $1`,
			credit.LeaseID, credit.Amount, credit.At); err != nil {
			return fmt.Errorf("update lease counters: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO tenant_daily_stats (tenant_id, day, messages_received, revenue_earned)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (tenant_id, day) DO UPDATE SET
				messages_received = tenant_daily_stats.messages_received + 1,
				revenue_earned = tenant_daily_stats.revenue_earned + EXCLUDED.revenue_earned`,
			credit.TenantID, domain.Day(credit.At), credit.Amount); err != nil {
			return fmt.Errorf("update daily stats: %w", err)
		}

		result.Credited = true
		result.Tenant = tenant
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error crediting message", "message_id", credit.MessageID, "tenant_id", credit.TenantID, "error", err)
		return nil, database.Classify(err)
	}
	return result, nil
}

func (r *PgTenantRepository) SetBanned(ctx context.Context, tenantID int64, banned bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE tenants SET is_banned = $2 WHERE id = $1`, tenantID, banned)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating ban flag", "tenant_id", tenantID, "error", err)
		return database.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

func (r *PgTenantRepository) RecordNumbersTaken(ctx context.Context, tenantID int64, count int, day time.Time) error {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := ensureTenant(ctx, tx, tenantID, day); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO tenant_daily_stats (tenant_id, day, numbers_taken) VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id, day) DO UPDATE SET numbers_taken = tenant_daily_stats.numbers_taken + EXCLUDED.numbers_taken`,
			tenantID, domain.Day(day), count)
		return err
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error recording numbers taken", "tenant_id", tenantID, "error", err)
		return database.Classify(err)
	}
	return nil
}

func (r *PgTenantRepository) Summary(ctx context.Context, day, activeSince time.Time) (*domain.LedgerSummary, error) {
	sum := &domain.LedgerSummary{Today: domain.DailyTotals{Day: domain.Day(day)}}
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT is_banned),
			COUNT(*) FILTER (WHERE is_banned),
			COUNT(*) FILTER (WHERE NOT is_banned AND last_activity_at >= $1),
			COALESCE(SUM(balance) FILTER (WHERE NOT is_banned), 0),
			COALESCE(SUM(total_earned) FILTER (WHERE NOT is_banned), 0),
			COALESCE(SUM(total_withdrawn) FILTER (WHERE NOT is_banned), 0),
			COALESCE(SUM(otp_received_count) FILTER (WHERE NOT is_banned), 0)::BIGINT
		FROM tenants`, activeSince).Scan(
		&sum.Tenants, &sum.Banned, &sum.ActiveLast24h,
		&sum.TotalBalance, &sum.TotalEarned, &sum.TotalWithdrawn, &sum.OTPReceived,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error summarising tenants", "error", err)
		return nil, database.Classify(err)
	}

	err = r.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(numbers_taken), 0)::BIGINT,
			COALESCE(SUM(messages_received), 0)::BIGINT,
			COALESCE(SUM(revenue_earned), 0)
		FROM tenant_daily_stats WHERE day = $1`, sum.Today.Day).Scan(
		&sum.Today.NumbersTaken, &sum.Today.MessagesReceived, &sum.Today.RevenueEarned,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error summarising daily stats", "error", err)
		return nil, database.Classify(err)
	}
	return sum, nil
}

func (r *PgTenantRepository) GetDailyStats(ctx context.Context, tenantID int64, day time.Time) (*domain.DailyStats, error) {
	stats := &domain.DailyStats{TenantID: tenantID, Day: domain.Day(day)}
	err := r.db.QueryRow(ctx,
		`SELECT numbers_taken, messages_received, revenue_earned FROM tenant_daily_stats WHERE tenant_id = $1 AND day = $2`,
		tenantID, stats.Day).Scan(&stats.NumbersTaken, &stats.MessagesReceived, &stats.RevenueEarned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stats, nil
		}
		r.logger.ErrorContext(ctx, "Error getting daily stats", "tenant_id", tenantID, "error", err)
		return nil, database.Classify(err)
	}
	return stats, nil
}
