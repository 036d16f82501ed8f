package domain

import "time"

// FeedEvent is the JSON payload published on the upstream feed subject for every text
// observed in the shared channel.
type FeedEvent struct {
	SourceMessageID string    `json:"source_message_id" validate:"required"`
	Text            string    `json:"text"`
	ReceivedAt      time.Time `json:"received_at"`
}

// TenantNotification is published for the outbound transport to deliver to a tenant.
// Balance and RevenueAdded are only set when the message earned revenue.
type TenantNotification struct {
	TenantID     int64       `json:"tenant_id"`
	MessageID    string      `json:"message_id"`
	LeaseID      string      `json:"lease_id"`
	Number       string      `json:"number"`
	CountryCode  string      `json:"country_code"`
	CountryFlag  string      `json:"country_flag,omitempty"`
	Kind         MessageKind `json:"kind"`
	Code         string      `json:"code,omitempty"`
	Text         string      `json:"text"`
	ReceivedAt   time.Time   `json:"received_at"`
	RevenueAdded string      `json:"revenue_added,omitempty"`
	Balance      string      `json:"balance,omitempty"`
}

// SourceDeletion asks the feed adapter to remove the original text from the shared channel.
type SourceDeletion struct {
	SourceMessageID string `json:"source_message_id"`
}

// PoolExhaustedAlert tells operators a country has no unleased numbers left.
type PoolExhaustedAlert struct {
	CountryCode string    `json:"country_code"`
	CountryName string    `json:"country_name,omitempty"`
	Total       int       `json:"total"`
	Leased      int       `json:"leased"`
	At          time.Time `json:"at"`
}
