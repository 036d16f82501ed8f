package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSettingsTest(t *testing.T) (*PgSettingsRepository, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewPgSettingsRepository(mockPool, slog.New(slog.NewTextHandler(io.Discard, nil))), mockPool
}

func TestPgSettingsRepository_Get(t *testing.T) {
	updatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("NotSavedYet", func(t *testing.T) {
		repo, mockPool := setupSettingsTest(t)
		defer mockPool.Close()
		mockPool.ExpectQuery(`FROM runtime_settings WHERE id = 1`).WillReturnError(pgx.ErrNoRows)

		s, err := repo.Get(context.Background())
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Saved", func(t *testing.T) {
		repo, mockPool := setupSettingsTest(t)
		defer mockPool.Close()
		mockPool.ExpectQuery(`FROM runtime_settings WHERE id = 1`).
			WillReturnRows(mockPool.NewRows([]string{"allocation_enabled", "batch_size", "max_active_leases_per_tenant", "per_message_revenue", "min_withdrawal", "updated_at"}).
				AddRow(false, 2, 10, decimal.RequireFromString("0.01"), decimal.RequireFromString("5"), updatedAt))

		s, err := repo.Get(context.Background())
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.False(t, s.AllocationEnabled)
		assert.Equal(t, 2, s.BatchSize)
		assert.Equal(t, 10, s.MaxActiveLeasesPerTenant)
		assert.True(t, s.PerMessageRevenue.Equal(decimal.RequireFromString("0.01")))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgSettingsRepository_Save(t *testing.T) {
	repo, mockPool := setupSettingsTest(t)
	defer mockPool.Close()

	s := &domain.Settings{
		AllocationEnabled:        true,
		BatchSize:                3,
		MaxActiveLeasesPerTenant: 20,
		PerMessageRevenue:        decimal.RequireFromString("0.005"),
		MinWithdrawal:            decimal.RequireFromString("3"),
		UpdatedAt:                time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	mockPool.ExpectExec(`INSERT INTO runtime_settings`).
		WithArgs(true, 3, 20, s.PerMessageRevenue, s.MinWithdrawal, s.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Save(context.Background(), s))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
