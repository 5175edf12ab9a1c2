package domain

import (
	"encoding/json"
	"time"
)

const EventOrderPlaced = "order.placed"

type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// OrderPlacedEvent is the payload published for every committed order.
type OrderPlacedEvent struct {
	OrderID     int64       `json:"order_id"`
	UserID      int64       `json:"user_id"`
	TotalAmount string      `json:"total_amount"`
	Items       []OrderItem `json:"items"`
	PlacedAt    time.Time   `json:"placed_at"`
}
