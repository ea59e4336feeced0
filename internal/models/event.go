package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	EventID     string    `bun:"event_id,pk" json:"event_id"`
	TenantID    string    `bun:"tenant_id,notnull" json:"tenant_id"`
	OrganizerID string    `bun:"organizer_id,notnull" json:"organizer_id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Venue       string    `bun:"venue" json:"venue"`
	StartTime   time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime     time.Time `bun:"end_time,notnull" json:"end_time"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// TicketType is a purchasable category for an event ("General", "VIP").
// QuantitySold gates availability and is only ever moved by the atomic
// increment in the issuer db layer.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	TicketTypeID string  `bun:"ticket_type_id,pk" json:"ticket_type_id"`
	EventID      string  `bun:"event_id,notnull" json:"event_id"`
	Name         string  `bun:"name,notnull" json:"name"`
	Price        float64 `bun:"price,notnull" json:"price"`
	Capacity     int     `bun:"capacity,notnull" json:"capacity"`
	QuantitySold int     `bun:"quantity_sold,notnull,default:0" json:"quantity_sold"`
}

// EventStaff lists users allowed to scan tickets for an event, in addition
// to the organizer.
type EventStaff struct {
	bun.BaseModel `bun:"table:event_staff"`

	ID      int64  `bun:"id,pk,autoincrement" json:"id"`
	EventID string `bun:"event_id,notnull" json:"event_id"`
	UserID  string `bun:"user_id,notnull" json:"user_id"`
}
