package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgCountryRepository_Get(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	repo := NewPgCountryRepository(mockPool, slog.New(slog.NewTextHandler(io.Discard, nil)))

	t.Run("Found", func(t *testing.T) {
		mockPool.ExpectQuery(`SELECT country_code, name, flag, total, leased FROM countries WHERE country_code = \$1`).
			WithArgs("GB").
			WillReturnRows(mockPool.NewRows([]string{"country_code", "name", "flag", "total", "leased"}).
				AddRow("GB", "United Kingdom", "🇬🇧", 10, 10))

		country, err := repo.Get(context.Background(), "GB")
		require.NoError(t, err)
		assert.Equal(t, "United Kingdom", country.Name)
		assert.True(t, country.Exhausted())
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool.ExpectQuery(`FROM countries WHERE country_code = \$1`).
			WithArgs("ZZ").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.Get(context.Background(), "ZZ")
		assert.ErrorIs(t, err, domain.ErrCountryNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
