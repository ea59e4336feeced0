package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID           string    `bun:"order_id,pk" json:"order_id"`
	TenantID          string    `bun:"tenant_id,notnull" json:"tenant_id"`
	EventID           string    `bun:"event_id,notnull" json:"event_id"`
	UserID            string    `bun:"user_id,notnull" json:"user_id"`
	Status            string    `bun:"status,notnull" json:"status"`
	CheckoutSessionID string    `bun:"checkout_session_id" json:"checkout_session_id"`
	CompletedAt       time.Time `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// OrderItem is immutable after order creation.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID           int64   `bun:"id,pk,autoincrement" json:"id"`
	OrderID      string  `bun:"order_id,notnull" json:"order_id"`
	TicketTypeID string  `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	Quantity     int     `bun:"quantity,notnull" json:"quantity"`
	UnitPrice    float64 `bun:"unit_price,notnull" json:"unit_price"`
}
