package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event kinds published on the ticket-events topic. Consumers (analytics,
// organizer dashboards) are outside this service.
const (
	EventTicketIssued    = "ticket.issued"
	EventTicketCheckedIn = "ticket.checked_in"
)

// TicketEvent is the wire form of a ticket lifecycle event.
type TicketEvent struct {
	Kind       string    `json:"kind"`
	TenantID   string    `json:"tenant_id"`
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id,omitempty"`
	TicketIDs  []string  `json:"ticket_ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// PublishTicketEvent streams a ticket lifecycle event, keyed by event ID so
// per-event ordering is preserved.
func (p *Producer) PublishTicketEvent(ctx context.Context, event TicketEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EventID),
		Value: msgBytes,
	})
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
