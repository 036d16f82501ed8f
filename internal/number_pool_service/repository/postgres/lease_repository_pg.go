package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/platform/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const leaseColumns = `
	l.id, l.phone_number_id, l.number, l.country_code, COALESCE(c.flag, ''), l.tenant_id, l.active,
	l.created_at, l.released_at, l.messages_routed, l.revenue_accrued, l.last_message_at`

type PgLeaseRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgLeaseRepository(db database.DB, logger *slog.Logger) *PgLeaseRepository {
	return &PgLeaseRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLease(row rowScanner) (*domain.Lease, error) {
	var l domain.Lease
	err := row.Scan(
		&l.ID, &l.PhoneNumberID, &l.Number, &l.CountryCode, &l.CountryFlag, &l.TenantID, &l.Active,
		&l.CreatedAt, &l.ReleasedAt, &l.MessagesRouted, &l.RevenueAccrued, &l.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Allocate claims numbers with FOR UPDATE SKIP LOCKED so concurrent allocations for the same
// country pick disjoint rows; the partial unique index on leases backs this up.
func (r *PgLeaseRepository) Allocate(ctx context.Context, tenantID int64, countryCode string, limit int, now time.Time) ([]*domain.Lease, error) {
	leases := []*domain.Lease{}
	if limit <= 0 {
		return leases, nil
	}

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO tenants (id, created_at, last_activity_at) VALUES ($1, $2, $2) ON CONFLICT (id) DO NOTHING`, tenantID, now); err != nil {
			return fmt.Errorf("ensure tenant: %w", err)
		}

		rows, err := tx.Query(ctx, `
			WITH claimed AS (
				UPDATE phone_numbers SET leased = TRUE
				WHERE NOT leased AND id IN (
					SELECT id FROM phone_numbers
					WHERE country_code = $1 AND NOT leased
					ORDER BY created_at, number
					LIMIT $2
					FOR UPDATE SKIP LOCKED
				)
				RETURNING id, number, country_code
			)
			INSERT INTO leases (id, phone_number_id, number, country_code, tenant_id, active, created_at)
			SELECT gen_random_uuid(), claimed.id, claimed.number, claimed.country_code, $3, TRUE, $4
			FROM claimed
			RETURNING id, phone_number_id, number, country_code, tenant_id, created_at`,
			countryCode, limit, tenantID, now)
		if err != nil {
			return fmt.Errorf("claim numbers: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			l := &domain.Lease{Active: true}
			if err := rows.Scan(&l.ID, &l.PhoneNumberID, &l.Number, &l.CountryCode, &l.TenantID, &l.CreatedAt); err != nil {
				return fmt.Errorf("scan claimed lease: %w", err)
			}
			leases = append(leases, l)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate claimed leases: %w", err)
		}
		if len(leases) == 0 {
			return nil
		}

		var flag string
		err = tx.QueryRow(ctx,
			`UPDATE countries SET leased = leased + $2 WHERE country_code = $1 RETURNING flag`,
			countryCode, len(leases)).Scan(&flag)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update country aggregate: %w", err)
		}
		for _, l := range leases {
			l.CountryFlag = flag
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error allocating numbers", "error", err, "tenant_id", tenantID, "country_code", countryCode)
		return nil, database.Classify(err)
	}
	return leases, nil
}

func (r *PgLeaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Lease, error) {
	query := `SELECT ` + leaseColumns + `
		FROM leases l LEFT JOIN countries c ON c.country_code = l.country_code
		WHERE l.id = $1`
	lease, err := scanLease(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLeaseNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting lease by ID", "error", err, "lease_id", id)
		return nil, database.Classify(err)
	}
	return lease, nil
}

func (r *PgLeaseRepository) FindActiveByNumber(ctx context.Context, number string) (*domain.Lease, error) {
	query := `SELECT ` + leaseColumns + `
		FROM leases l LEFT JOIN countries c ON c.country_code = l.country_code
		WHERE l.number = $1 AND l.active`
	lease, err := scanLease(r.db.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.ErrorContext(ctx, "Error finding active lease by number", "error", err, "number", number)
		return nil, database.Classify(err)
	}
	return lease, nil
}

func (r *PgLeaseRepository) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*domain.Lease, error) {
	query := `SELECT ` + leaseColumns + `
		FROM leases l LEFT JOIN countries c ON c.country_code = l.country_code
		WHERE l.tenant_id = $1 AND l.active
		ORDER BY l.created_at, l.number`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing active leases", "error", err, "tenant_id", tenantID)
		return nil, database.Classify(err)
	}
	defer rows.Close()

	leases := []*domain.Lease{}
	for rows.Next() {
		lease, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		leases = append(leases, lease)
	}
	return leases, rows.Err()
}

func (r *PgLeaseRepository) CountActiveByTenant(ctx context.Context, tenantID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM leases WHERE tenant_id = $1 AND active`, tenantID).Scan(&count)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error counting active leases", "error", err, "tenant_id", tenantID)
		return 0, database.Classify(err)
	}
	return count, nil
}

func (r *PgLeaseRepository) SoftRelease(ctx context.Context, leaseID uuid.UUID, now time.Time) error {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var numberID uuid.UUID
		var countryCode string
		err := tx.QueryRow(ctx,
			`UPDATE leases SET active = FALSE, released_at = $2 WHERE id = $1 AND active RETURNING phone_number_id, country_code`,
			leaseID, now).Scan(&numberID, &countryCode)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.inactiveOrMissing(ctx, tx, leaseID)
			}
			return fmt.Errorf("deactivate lease: %w", err)
		}

		tag, err := tx.Exec(ctx, `UPDATE phone_numbers SET leased = FALSE WHERE id = $1 AND leased`, numberID)
		if err != nil {
			return fmt.Errorf("unflip number: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE countries SET leased = GREATEST(leased - 1, 0) WHERE country_code = $1`, countryCode); err != nil {
			return fmt.Errorf("update country aggregate: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrLeaseNotActive) && !errors.Is(err, domain.ErrLeaseNotFound) {
		r.logger.ErrorContext(ctx, "Error releasing lease", "error", err, "lease_id", leaseID)
		return database.Classify(err)
	}
	return err
}

func (r *PgLeaseRepository) HardRelease(ctx context.Context, leaseID uuid.UUID, resetType domain.ResetType, now time.Time) (*domain.Retirement, error) {
	retirement := &domain.Retirement{ID: uuid.New(), ResetType: resetType, RetiredAt: now}

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var numberID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT phone_number_id, number, country_code, tenant_id FROM leases WHERE id = $1 AND active FOR UPDATE`,
			leaseID).Scan(&numberID, &retirement.Number, &retirement.CountryCode, &retirement.TenantID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.inactiveOrMissing(ctx, tx, leaseID)
			}
			return fmt.Errorf("lock lease: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM inbound_messages WHERE extracted_number = $1`, retirement.Number); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}

		// Leases cascade with the number.
		var wasLeased bool
		err = tx.QueryRow(ctx, `DELETE FROM phone_numbers WHERE id = $1 RETURNING leased`, numberID).Scan(&wasLeased)
		if err != nil {
			return fmt.Errorf("delete number: %w", err)
		}
		leasedDelta := 0
		if wasLeased {
			leasedDelta = 1
		}
		if _, err := tx.Exec(ctx,
			`UPDATE countries SET total = GREATEST(total - 1, 0), leased = GREATEST(leased - $2, 0) WHERE country_code = $1`,
			retirement.CountryCode, leasedDelta); err != nil {
			return fmt.Errorf("update country aggregate: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO retired_numbers (id, number, country_code, tenant_id, reset_type, retired_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			retirement.ID, retirement.Number, retirement.CountryCode, retirement.TenantID, string(resetType), now); err != nil {
			return fmt.Errorf("record retirement: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrLeaseNotActive) || errors.Is(err, domain.ErrLeaseNotFound) {
			return nil, err
		}
		r.logger.ErrorContext(ctx, "Error retiring number", "error", err, "lease_id", leaseID)
		return nil, database.Classify(err)
	}
	return retirement, nil
}

func (r *PgLeaseRepository) inactiveOrMissing(ctx context.Context, q database.Querier, leaseID uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leases WHERE id = $1)`, leaseID).Scan(&exists); err != nil {
		return fmt.Errorf("check lease existence: %w", err)
	}
	if exists {
		return domain.ErrLeaseNotActive
	}
	return domain.ErrLeaseNotFound
}
