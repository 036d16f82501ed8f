package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// MessageKind is the classification produced by the extractor.
type MessageKind string

const (
	KindOTP       MessageKind = "otp"       // number and code found
	KindPlain     MessageKind = "plain"     // number found, no code
	KindUnmatched MessageKind = "unmatched" // no number
)

// ProcessingState tracks a message through routing.
type ProcessingState string

const (
	StatePending   ProcessingState = "pending"
	StateRouted    ProcessingState = "routed"
	StateDiscarded ProcessingState = "discarded"
)

// InboundMessage is one text observed on the shared upstream feed.
// Once State leaves pending it never returns.
type InboundMessage struct {
	ID              uuid.UUID       `json:"id"`
	SourceMessageID string          `json:"source_message_id"`
	Text            string          `json:"text"`
	ReceivedAt      time.Time       `json:"received_at"`
	Number          sql.NullString  `json:"number"`
	Code            sql.NullString  `json:"code"`
	Kind            MessageKind     `json:"kind"`
	State           ProcessingState `json:"state"`
	RevenueCredited bool            `json:"revenue_credited"`
	ForwardedTo     sql.NullInt64   `json:"forwarded_to"`
	ProcessedAt     sql.NullTime    `json:"processed_at"`
}

// NewInboundMessage builds a pending message from a feed event and its classification.
func NewInboundMessage(id uuid.UUID, sourceMessageID, text string, receivedAt time.Time, number, code string, kind MessageKind) *InboundMessage {
	return &InboundMessage{
		ID:              id,
		SourceMessageID: sourceMessageID,
		Text:            text,
		ReceivedAt:      receivedAt,
		Number:          sql.NullString{String: number, Valid: number != ""},
		Code:            sql.NullString{String: code, Valid: code != ""},
		Kind:            kind,
		State:           StatePending,
	}
}

// IsTerminal reports whether the message has left the pending state.
func (m *InboundMessage) IsTerminal() bool {
	return m.State != StatePending
}
