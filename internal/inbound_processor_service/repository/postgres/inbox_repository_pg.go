package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	"github.com/aradsms/otp_gateway/internal/platform/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, source_message_id, text_content, received_at, extracted_number, extracted_code,
	kind, state, revenue_credited, forwarded_to, processed_at`

type PgInboxRepository struct {
	db     database.DB
	logger *slog.Logger
}

// NewPgInboxRepository creates a new PostgreSQL implementation of InboxRepository.
func NewPgInboxRepository(db database.DB, logger *slog.Logger) *PgInboxRepository {
	return &PgInboxRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a pending message. A repeated source_message_id is reported as ErrDuplicateMessage.
func (r *PgInboxRepository) Create(ctx context.Context, msg *domain.InboundMessage) error {
	query := `INSERT INTO inbound_messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source_message_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.SourceMessageID,
		msg.Text,
		msg.ReceivedAt,
		msg.Number,
		msg.Code,
		string(msg.Kind),
		string(msg.State),
		msg.RevenueCredited,
		msg.ForwardedTo,
		msg.ProcessedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert inbound message",
			"error", err,
			"message_id", msg.ID,
			"source_message_id", msg.SourceMessageID,
		)
		return database.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateMessage
	}

	r.logger.DebugContext(ctx, "Inbound message inserted", "message_id", msg.ID)
	return nil
}

func (r *PgInboxRepository) ListPending(ctx context.Context, limit int) ([]*domain.InboundMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM inbound_messages
		WHERE state = 'pending'
		ORDER BY received_at, source_message_id
		LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list pending messages", "error", err)
		return nil, database.Classify(err)
	}
	return scanMessages(rows)
}

func (r *PgInboxRepository) ListPendingForNumbers(ctx context.Context, numbers []string, limit int) ([]*domain.InboundMessage, error) {
	if len(numbers) == 0 {
		return []*domain.InboundMessage{}, nil
	}
	query := `SELECT ` + messageColumns + ` FROM inbound_messages
		WHERE state = 'pending' AND extracted_number = ANY($1)
		ORDER BY received_at, source_message_id
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, numbers, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list pending messages for numbers", "error", err, "numbers", len(numbers))
		return nil, database.Classify(err)
	}
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]*domain.InboundMessage, error) {
	defer rows.Close()

	messages := []*domain.InboundMessage{}
	for rows.Next() {
		var m domain.InboundMessage
		var kind, state string
		if err := rows.Scan(
			&m.ID, &m.SourceMessageID, &m.Text, &m.ReceivedAt, &m.Number, &m.Code,
			&kind, &state, &m.RevenueCredited, &m.ForwardedTo, &m.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan inbound message: %w", err)
		}
		m.Kind = domain.MessageKind(kind)
		m.State = domain.ProcessingState(state)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func (r *PgInboxRepository) CountByState(ctx context.Context) (map[domain.ProcessingState]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT state, COUNT(*) FROM inbound_messages GROUP BY state`)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to count messages by state", "error", err)
		return nil, database.Classify(err)
	}
	defer rows.Close()

	counts := map[domain.ProcessingState]int64{}
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[domain.ProcessingState(state)] = n
	}
	return counts, rows.Err()
}

func (r *PgInboxRepository) MarkRouted(ctx context.Context, id uuid.UUID, tenantID int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE inbound_messages SET state = 'routed', forwarded_to = $2, processed_at = $3 WHERE id = $1 AND state = 'pending'`,
		id, tenantID, at)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark message routed", "error", err, "message_id", id)
		return false, database.Classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgInboxRepository) MarkDiscarded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE inbound_messages SET state = 'discarded', processed_at = $2 WHERE id = $1 AND state = 'pending'`,
		id, at)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark message discarded", "error", err, "message_id", id)
		return false, database.Classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgInboxRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM inbound_messages WHERE state <> 'pending' AND processed_at < $1`, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete processed messages", "error", err)
		return 0, database.Classify(err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgInboxRepository) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM inbound_messages WHERE state = 'pending' AND received_at < $1`, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete stale pending messages", "error", err)
		return 0, database.Classify(err)
	}
	return tag.RowsAffected(), nil
}
