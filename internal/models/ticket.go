package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	TicketStatusValid     = "valid"
	TicketStatusUsed      = "used"
	TicketStatusCancelled = "cancelled"
)

// Ticket is the issued, attendable unit. One row per purchased unit, each
// independently signed. Rows are never deleted; cancellation and check-in
// are status transitions only.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID     string    `bun:"ticket_id,pk" json:"ticket_id"`
	TenantID     string    `bun:"tenant_id,notnull" json:"tenant_id"`
	EventID      string    `bun:"event_id,notnull" json:"event_id"`
	TicketTypeID string    `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	OrderID      string    `bun:"order_id,notnull" json:"order_id"`
	UserID       string    `bun:"user_id,notnull" json:"user_id"`
	Status       string    `bun:"status,notnull" json:"status"`
	QRData       string    `bun:"qr_data,notnull" json:"qr_data"`
	QRSignature  string    `bun:"qr_signature,notnull" json:"qr_signature"`
	IssuedAt     time.Time `bun:"issued_at,notnull" json:"issued_at"`
	CheckedInAt  time.Time `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`
	CheckedInBy  string    `bun:"checked_in_by" json:"checked_in_by,omitempty"`
}

// CheckInLog is an append-only audit record. One row per scan attempt,
// whatever the outcome.
type CheckInLog struct {
	bun.BaseModel `bun:"table:checkin_logs"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	TicketID  string    `bun:"ticket_id,notnull" json:"ticket_id"`
	EventID   string    `bun:"event_id,notnull" json:"event_id"`
	ScannerID string    `bun:"scanner_id,notnull" json:"scanner_id"`
	Outcome   string    `bun:"outcome,notnull" json:"outcome"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
