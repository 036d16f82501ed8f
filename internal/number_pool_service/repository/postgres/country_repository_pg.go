package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/platform/database"
	"github.com/jackc/pgx/v5"
)

type PgCountryRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgCountryRepository(db database.DB, logger *slog.Logger) *PgCountryRepository {
	return &PgCountryRepository{db: db, logger: logger}
}

func (r *PgCountryRepository) Get(ctx context.Context, countryCode string) (*domain.CountryAggregate, error) {
	var c domain.CountryAggregate
	err := r.db.QueryRow(ctx,
		`SELECT country_code, name, flag, total, leased FROM countries WHERE country_code = $1`,
		countryCode).Scan(&c.CountryCode, &c.Name, &c.Flag, &c.Total, &c.Leased)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCountryNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting country aggregate", "error", err, "country_code", countryCode)
		return nil, database.Classify(err)
	}
	return &c, nil
}

func (r *PgCountryRepository) List(ctx context.Context) ([]domain.CountryAggregate, error) {
	return r.list(ctx, r.db)
}

func (r *PgCountryRepository) list(ctx context.Context, q database.Querier) ([]domain.CountryAggregate, error) {
	rows, err := q.Query(ctx, `SELECT country_code, name, flag, total, leased FROM countries ORDER BY country_code`)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing country aggregates", "error", err)
		return nil, database.Classify(err)
	}
	defer rows.Close()

	countries := []domain.CountryAggregate{}
	for rows.Next() {
		var c domain.CountryAggregate
		if err := rows.Scan(&c.CountryCode, &c.Name, &c.Flag, &c.Total, &c.Leased); err != nil {
			return nil, fmt.Errorf("scan country aggregate: %w", err)
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

func (r *PgCountryRepository) Reconcile(ctx context.Context) ([]domain.CountryAggregate, error) {
	var countries []domain.CountryAggregate
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE phone_numbers p SET leased = FALSE
			WHERE p.leased AND NOT EXISTS (
				SELECT 1 FROM leases l WHERE l.phone_number_id = p.id AND l.active
			)`)
		if err != nil {
			return fmt.Errorf("clear orphaned leased flags: %w", err)
		}
		if n := tag.RowsAffected(); n > 0 {
			r.logger.WarnContext(ctx, "Cleared leased flag on numbers without an active lease", "count", n)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE phone_numbers p SET leased = TRUE
			WHERE NOT p.leased AND EXISTS (
				SELECT 1 FROM leases l WHERE l.phone_number_id = p.id AND l.active
			)`); err != nil {
			return fmt.Errorf("restore leased flags: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE countries c SET
				total = COALESCE(s.total, 0),
				leased = COALESCE(s.leased, 0)
			FROM countries c2
			LEFT JOIN (
				SELECT country_code, COUNT(*) AS total, COUNT(*) FILTER (WHERE leased) AS leased
				FROM phone_numbers
				GROUP BY country_code
			) s ON s.country_code = c2.country_code
			WHERE c.country_code = c2.country_code`); err != nil {
			return fmt.Errorf("recompute country aggregates: %w", err)
		}

		countries, err = r.list(ctx, tx)
		return err
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error reconciling country aggregates", "error", err)
		return nil, database.Classify(err)
	}
	return countries, nil
}
