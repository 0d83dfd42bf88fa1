package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// SessionRepository keeps the bounded rolling window of recent turns per session.
type SessionRepository interface {
	// AddMessage appends a message and trims the window.
	AddMessage(ctx context.Context, sessionID string, message *schema.Message) error

	// LoadHistory retrieves the window for a session.
	LoadHistory(ctx context.Context, sessionID string) (*ConversationHistory, error)

	// ClearHistory removes the window for a session.
	ClearHistory(ctx context.Context, sessionID string) error

	// GetMessageCount returns the number of messages held for a session.
	GetMessageCount(ctx context.Context, sessionID string) (int, error)
}

// ConversationHistory represents loaded session data.
type ConversationHistory struct {
	SessionID string
	Messages  []*schema.Message
}

// MessageStore is the durable, append-only transcript store.
type MessageStore interface {
	AppendMessage(ctx context.Context, sessionID, role, content string, metadata map[string]any) error
}

// OrderStore is the data-access layer for orders. A missing order is (nil, nil).
type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}

// LogisticsService resolves a tracking number to a delivery status.
type LogisticsService interface {
	Status(ctx context.Context, trackingNumber string) (*LogisticsStatus, error)
}
