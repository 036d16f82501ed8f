package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/platform/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PgNumberRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgNumberRepository(db database.DB, logger *slog.Logger) *PgNumberRepository {
	return &PgNumberRepository{db: db, logger: logger}
}

// Import inserts the batch in one transaction. Retired numbers and numbers already in the pool
// are counted and skipped.
func (r *PgNumberRepository) Import(ctx context.Context, numbers []domain.NewNumber, now time.Time) (domain.ImportResult, error) {
	var result domain.ImportResult
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, n := range numbers {
			retired, err := isRetired(ctx, tx, n.Number)
			if err != nil {
				return err
			}
			if retired {
				result.Retired++
				continue
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO countries (country_code, name, flag) VALUES ($1, $2, $3)
				ON CONFLICT (country_code) DO UPDATE SET
					name = COALESCE(NULLIF(EXCLUDED.name, ''), countries.name),
					flag = COALESCE(NULLIF(EXCLUDED.flag, ''), countries.flag)`,
				n.CountryCode, n.CountryName, n.CountryFlag); err != nil {
				return fmt.Errorf("upsert country %s: %w", n.CountryCode, err)
			}

			tag, err := tx.Exec(ctx, `
				INSERT INTO phone_numbers (id, number, country_code, batch_name, leased, created_at)
				VALUES ($1, $2, $3, $4, FALSE, $5)
				ON CONFLICT (number) DO NOTHING`,
				uuid.New(), n.Number, n.CountryCode, n.BatchName, now)
			if err != nil {
				return fmt.Errorf("insert number %s: %w", n.Number, err)
			}
			if tag.RowsAffected() == 0 {
				result.Duplicates++
				continue
			}

			if _, err := tx.Exec(ctx, `UPDATE countries SET total = total + 1 WHERE country_code = $1`, n.CountryCode); err != nil {
				return fmt.Errorf("update country aggregate: %w", err)
			}
			result.Added++
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error importing numbers", "error", err, "batch_size", len(numbers))
		return domain.ImportResult{}, database.Classify(err)
	}
	return result, nil
}

func isRetired(ctx context.Context, q database.Querier, number string) (bool, error) {
	var retired bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM retired_numbers WHERE number = $1)`, number).Scan(&retired); err != nil {
		return false, fmt.Errorf("check retired number: %w", err)
	}
	return retired, nil
}
