package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupInboxTest(t *testing.T) (*PgInboxRepository, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgInboxRepository(mockPool, logger), mockPool
}

func TestPgInboxRepository_Create(t *testing.T) {
	receivedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Inserted", func(t *testing.T) {
		repo, mockPool := setupInboxTest(t)
		defer mockPool.Close()
		msg := domain.NewInboundMessage(uuid.New(), "tg-1", "+14155550100 code 1234", receivedAt, "+14155550100", "1234", domain.KindOTP)

		mockPool.ExpectExec(`INSERT INTO inbound_messages`).
			WithArgs(msg.ID, "tg-1", msg.Text, receivedAt, msg.Number, msg.Code, "otp", "pending", false, msg.ForwardedTo, msg.ProcessedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.Create(context.Background(), msg))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("Duplicate", func(t *testing.T) {
		repo, mockPool := setupInboxTest(t)
		defer mockPool.Close()
		msg := domain.NewInboundMessage(uuid.New(), "tg-1", "hello", receivedAt, "", "", domain.KindUnmatched)

		mockPool.ExpectExec(`ON CONFLICT \(source_message_id\) DO NOTHING`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		assert.ErrorIs(t, repo.Create(context.Background(), msg), domain.ErrDuplicateMessage)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgInboxRepository_MarkRouted(t *testing.T) {
	repo, mockPool := setupInboxTest(t)
	defer mockPool.Close()

	id := uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)

	mockPool.ExpectExec(`UPDATE inbound_messages SET state = 'routed'.*WHERE id = \$1 AND state = 'pending'`).
		WithArgs(id, int64(77), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	won, err := repo.MarkRouted(context.Background(), id, 77, at)
	require.NoError(t, err)
	assert.True(t, won)

	mockPool.ExpectExec(`UPDATE inbound_messages SET state = 'routed'`).
		WithArgs(id, int64(77), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	won, err = repo.MarkRouted(context.Background(), id, 77, at)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgInboxRepository_Retention(t *testing.T) {
	repo, mockPool := setupInboxTest(t)
	defer mockPool.Close()

	cutoff := time.Date(2026, 3, 1, 11, 45, 0, 0, time.UTC)
	mockPool.ExpectExec(`DELETE FROM inbound_messages WHERE state <> 'pending' AND processed_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	deleted, err := repo.DeleteTerminalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	dbErr := errors.New("database error")
	mockPool.ExpectExec(`DELETE FROM inbound_messages WHERE state = 'pending' AND received_at < \$1`).
		WithArgs(cutoff).
		WillReturnError(dbErr)
	_, err = repo.DeletePendingBefore(context.Background(), cutoff)
	assert.ErrorIs(t, err, dbErr)

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgInboxRepository_ListPendingForNumbers(t *testing.T) {
	t.Run("NoNumbersSkipsQuery", func(t *testing.T) {
		repo, mockPool := setupInboxTest(t)
		defer mockPool.Close()

		messages, err := repo.ListPendingForNumbers(context.Background(), nil, 10)
		require.NoError(t, err)
		assert.Empty(t, messages)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		repo, mockPool := setupInboxTest(t)
		defer mockPool.Close()
		numbers := []string{"+14155550100", "+14155550101"}

		mockPool.ExpectQuery(`WHERE state = 'pending' AND extracted_number = ANY\(\$1\)`).
			WithArgs(numbers, 10).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.ListPendingForNumbers(context.Background(), numbers, 10)
		assert.Error(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgInboxRepository_CountByState(t *testing.T) {
	repo, mockPool := setupInboxTest(t)
	defer mockPool.Close()

	mockPool.ExpectQuery(`SELECT state, COUNT\(\*\) FROM inbound_messages GROUP BY state`).
		WillReturnRows(pgxmock.NewRows([]string{"state", "count"}).
			AddRow("pending", int64(3)).
			AddRow("routed", int64(40)))

	counts, err := repo.CountByState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[domain.StatePending])
	assert.Equal(t, int64(40), counts[domain.StateRouted])
	assert.Zero(t, counts[domain.StateDiscarded])
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
