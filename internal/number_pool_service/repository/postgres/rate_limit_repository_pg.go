package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/platform/database"
	"github.com/jackc/pgx/v5"
)

type PgRateLimitRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgRateLimitRepository(db database.DB, logger *slog.Logger) *PgRateLimitRepository {
	return &PgRateLimitRepository{db: db, logger: logger}
}

func (r *PgRateLimitRepository) Get(ctx context.Context, tenantID int64) (*domain.RateLimitState, error) {
	state := &domain.RateLimitState{TenantID: tenantID}
	var suspendedUntil sql.NullTime
	err := r.db.QueryRow(ctx,
		`SELECT request_count, window_start, suspended_until FROM rate_limits WHERE tenant_id = $1`,
		tenantID).Scan(&state.RequestCount, &state.WindowStart, &suspendedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.ErrorContext(ctx, "Error getting rate limit state", "error", err, "tenant_id", tenantID)
		return nil, database.Classify(err)
	}
	if suspendedUntil.Valid {
		state.SuspendedUntil = suspendedUntil.Time
	}
	return state, nil
}

func (r *PgRateLimitRepository) Save(ctx context.Context, state *domain.RateLimitState) error {
	suspendedUntil := sql.NullTime{Time: state.SuspendedUntil, Valid: !state.SuspendedUntil.IsZero()}
	_, err := r.db.Exec(ctx, `
		INSERT INTO rate_limits (tenant_id, request_count, window_start, suspended_until)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE SET
			request_count = EXCLUDED.request_count,
			window_start = EXCLUDED.window_start,
			suspended_until = EXCLUDED.suspended_until`,
		state.TenantID, state.RequestCount, state.WindowStart, suspendedUntil)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error saving rate limit state", "error", err, "tenant_id", state.TenantID)
		return database.Classify(err)
	}
	return nil
}

func (r *PgRateLimitRepository) Reset(ctx context.Context, tenantID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM rate_limits WHERE tenant_id = $1`, tenantID); err != nil {
		r.logger.ErrorContext(ctx, "Error resetting rate limit state", "error", err, "tenant_id", tenantID)
		return database.Classify(err)
	}
	return nil
}
