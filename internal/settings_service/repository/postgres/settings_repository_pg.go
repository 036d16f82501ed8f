package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aradsms/otp_gateway/internal/platform/database"
	"github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"github.com/jackc/pgx/v5"
)

type PgSettingsRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgSettingsRepository(db database.DB, logger *slog.Logger) *PgSettingsRepository {
	return &PgSettingsRepository{db: db, logger: logger}
}

func (r *PgSettingsRepository) Get(ctx context.Context) (*domain.Settings, error) {
	var s domain.Settings
	err := r.db.QueryRow(ctx, `
		SELECT allocation_enabled, batch_size, max_active_leases_per_tenant, per_message_revenue, min_withdrawal, updated_at
		FROM runtime_settings WHERE id = 1`).
		Scan(&s.AllocationEnabled, &s.BatchSize, &s.MaxActiveLeasesPerTenant, &s.PerMessageRevenue, &s.MinWithdrawal, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.ErrorContext(ctx, "Error getting runtime settings", "error", err)
		return nil, database.Classify(err)
	}
	return &s, nil
}

func (r *PgSettingsRepository) Save(ctx context.Context, s *domain.Settings) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO runtime_settings (id, allocation_enabled, batch_size, max_active_leases_per_tenant, per_message_revenue, min_withdrawal, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			allocation_enabled = EXCLUDED.allocation_enabled,
			batch_size = EXCLUDED.batch_size,
			max_active_leases_per_tenant = EXCLUDED.max_active_leases_per_tenant,
			per_message_revenue = EXCLUDED.per_message_revenue,
			min_withdrawal = EXCLUDED.min_withdrawal,
			updated_at = EXCLUDED.updated_at`,
		s.AllocationEnabled, s.BatchSize, s.MaxActiveLeasesPerTenant, s.PerMessageRevenue, s.MinWithdrawal, s.UpdatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error saving runtime settings", "error", err)
		return database.Classify(err)
	}
	return nil
}
