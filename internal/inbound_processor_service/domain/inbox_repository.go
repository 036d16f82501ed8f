package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateMessage = errors.New("message already tracked")
	// ErrNotificationDropped is returned by notifiers that shed load instead of queueing.
	ErrNotificationDropped = errors.New("tenant notification dropped")
)

// InboxRepository stores inbound messages. State transitions are conditional on the message
// still being pending, so concurrent routers cannot both win.
type InboxRepository interface {
	// Create returns ErrDuplicateMessage when the source message id is already stored.
	Create(ctx context.Context, msg *InboundMessage) error
	// ListPending returns up to limit pending messages, oldest first.
	ListPending(ctx context.Context, limit int) ([]*InboundMessage, error)
	// ListPendingForNumbers is ListPending restricted to messages extracted for numbers.
	ListPendingForNumbers(ctx context.Context, numbers []string, limit int) ([]*InboundMessage, error)
	// CountByState returns the number of stored messages per state. Absent states are zero.
	CountByState(ctx context.Context) (map[ProcessingState]int64, error)
	// MarkRouted moves a pending message to routed. It reports false if it was not pending.
	MarkRouted(ctx context.Context, id uuid.UUID, tenantID int64, at time.Time) (bool, error)
	// MarkDiscarded moves a pending message to discarded. It reports false if it was not pending.
	MarkDiscarded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// DeleteTerminalBefore removes routed and discarded messages processed before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeletePendingBefore removes pending messages received before cutoff.
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
