package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aradsms/otp_gateway/internal/billing_service/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTenantTest(t *testing.T) (*PgTenantRepository, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgTenantRepository(mockPool, logger), mockPool
}

func TestPgTenantRepository_CreditForMessage_AlreadyCredited(t *testing.T) {
	repo, mockPool := setupTenantTest(t)
	defer mockPool.Close()

	credit := domain.MessageCredit{
		MessageID: uuid.New(),
		LeaseID:   uuid.New(),
		TenantID:  12,
		Amount:    decimal.RequireFromString("0.005"),
		At:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`UPDATE inbound_messages SET revenue_credited = TRUE WHERE id = \$1 AND NOT revenue_credited`).
		WithArgs(credit.MessageID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectCommit()

	result, err := repo.CreditForMessage(context.Background(), credit)
	require.NoError(t, err)
	assert.False(t, result.Credited)
	assert.Nil(t, result.Tenant)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgTenantRepository_CreditForMessage_FlipErrorRollsBack(t *testing.T) {
	repo, mockPool := setupTenantTest(t)
	defer mockPool.Close()

	dbErr := errors.New("database error")
	credit := domain.MessageCredit{MessageID: uuid.New(), TenantID: 12}

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`UPDATE inbound_messages SET revenue_credited = TRUE`).
		WithArgs(credit.MessageID).
		WillReturnError(dbErr)
	mockPool.ExpectRollback()

	_, err := repo.CreditForMessage(context.Background(), credit)
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgTenantRepository_Debit_Rejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(5)

	tests := []struct {
		name    string
		exists  bool
		wantErr error
	}{
		{name: "InsufficientBalance", exists: true, wantErr: domain.ErrInsufficientBalance},
		{name: "UnknownTenant", exists: false, wantErr: domain.ErrTenantNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mockPool := setupTenantTest(t)
			defer mockPool.Close()

			mockPool.ExpectQuery(`UPDATE tenants SET balance = balance - \$2`).
				WithArgs(int64(3), amount, now).
				WillReturnError(pgx.ErrNoRows)
			mockPool.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM tenants WHERE id = \$1\)`).
				WithArgs(int64(3)).
				WillReturnRows(mockPool.NewRows([]string{"exists"}).AddRow(tt.exists))

			_, err := repo.Debit(context.Background(), 3, amount, now)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mockPool.ExpectationsWereMet())
		})
	}
}

func TestPgTenantRepository_SetBanned_NotFound(t *testing.T) {
	repo, mockPool := setupTenantTest(t)
	defer mockPool.Close()

	mockPool.ExpectExec(`UPDATE tenants SET is_banned = \$2 WHERE id = \$1`).
		WithArgs(int64(3), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.SetBanned(context.Background(), 3, true), domain.ErrTenantNotFound)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgTenantRepository_RecordNumbersTaken(t *testing.T) {
	repo, mockPool := setupTenantTest(t)
	defer mockPool.Close()

	at := time.Date(2026, 3, 1, 17, 30, 0, 0, time.UTC)
	mockPool.ExpectBegin()
	mockPool.ExpectExec(`INSERT INTO tenants`).
		WithArgs(int64(3), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mockPool.ExpectExec(`INSERT INTO tenant_daily_stats \(tenant_id, day, numbers_taken\)`).
		WithArgs(int64(3), domain.Day(at), 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()

	require.NoError(t, repo.RecordNumbersTaken(context.Background(), 3, 2, at))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgTenantRepository_GetDailyStats_Empty(t *testing.T) {
	repo, mockPool := setupTenantTest(t)
	defer mockPool.Close()

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mockPool.ExpectQuery(`FROM tenant_daily_stats WHERE tenant_id = \$1 AND day = \$2`).
		WithArgs(int64(3), day).
		WillReturnError(pgx.ErrNoRows)

	stats, err := repo.GetDailyStats(context.Background(), 3, day.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NumbersTaken)
	assert.True(t, stats.RevenueEarned.IsZero())
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgTenantRepository_Summary(t *testing.T) {
	repo, mockPool := setupTenantTest(t)
	defer mockPool.Close()

	now := time.Date(2026, 3, 1, 17, 30, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)
	mockPool.ExpectQuery(`FROM tenants`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"tenants", "banned", "active", "balance", "earned", "withdrawn", "otp"}).
			AddRow(int64(4), int64(1), int64(2), decimal.RequireFromString("12.5"), decimal.RequireFromString("20"), decimal.RequireFromString("7.5"), int64(4000)))
	mockPool.ExpectQuery(`FROM tenant_daily_stats WHERE day = \$1`).
		WithArgs(domain.Day(now)).
		WillReturnRows(pgxmock.NewRows([]string{"numbers_taken", "messages_received", "revenue_earned"}).
			AddRow(int64(9), int64(30), decimal.RequireFromString("0.15")))

	sum, err := repo.Summary(context.Background(), now, since)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.Tenants)
	assert.Equal(t, int64(1), sum.Banned)
	assert.Equal(t, int64(2), sum.ActiveLast24h)
	assert.True(t, sum.TotalBalance.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, int64(4000), sum.OTPReceived)
	assert.Equal(t, domain.Day(now), sum.Today.Day)
	assert.Equal(t, int64(30), sum.Today.MessagesReceived)
	assert.True(t, sum.Today.RevenueEarned.Equal(decimal.RequireFromString("0.15")))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgTenantRepository_Summary_QueryError(t *testing.T) {
	repo, mockPool := setupTenantTest(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(`FROM tenants`).WillReturnError(errors.New("connection reset"))

	_, err := repo.Summary(context.Background(), time.Now(), time.Now().Add(-24*time.Hour))
	assert.Error(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
