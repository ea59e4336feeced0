package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventpass/internal/kafka"
	"eventpass/internal/logger"
	"eventpass/internal/models"
	"eventpass/internal/qr"
)

type DBLayer interface {
	GetEventByID(ctx context.Context, eventID string) (*models.Event, error)
	GetTicketTypesByEvent(ctx context.Context, eventID string) ([]models.TicketType, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	InsertTickets(ctx context.Context, tickets []models.Ticket) error
	IncrementSoldCount(ctx context.Context, ticketTypeID string, delta int) error
}

type Publisher interface {
	PublishTicketEvent(ctx context.Context, event kafka.TicketEvent) error
}

type Notifier interface {
	SendTicketConfirmation(to, eventName, ticketID string, qrPNG []byte) error
}

// Item is one line of an order: a ticket type and how many units of it.
type Item struct {
	TicketTypeID string
	Quantity     int
}

// IssueRequest carries the correlation fields extracted from a completed
// order.
type IssueRequest struct {
	OrderID     string
	EventID     string
	UserID      string
	Items       []Item
	NotifyEmail string
}

// Service allocates, signs and persists tickets for completed orders.
// Issue is idempotent per order so webhook redelivery is harmless.
type Service struct {
	DB     DBLayer
	Signer *qr.Signer
	Kafka  Publisher
	Mail   Notifier
	Logger *logger.Logger
}

func NewService(db DBLayer, signer *qr.Signer, publisher Publisher, notifier Notifier, log *logger.Logger) *Service {
	return &Service{DB: db, Signer: signer, Kafka: publisher, Mail: notifier, Logger: log}
}

// Issue creates one signed ticket row per purchased unit. If tickets already
// exist for the order it returns them unchanged, making retried webhooks and
// backfill calls no-ops.
func (s *Service) Issue(ctx context.Context, req IssueRequest) ([]models.Ticket, error) {
	event, err := s.DB.GetEventByID(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("order %s: event %s not found: %w", req.OrderID, req.EventID, err)
	}

	// Idempotency: existing rows for the order mean a previous invocation
	// already issued (webhook retry, backfill re-check).
	existing, err := s.DB.GetTicketsByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order %s: check existing tickets: %w", req.OrderID, err)
	}
	if len(existing) > 0 {
		s.Logger.LogTicket("ISSUE", req.OrderID, fmt.Sprintf("order already has %d tickets, skipping", len(existing)))
		return existing, nil
	}

	types, err := s.DB.GetTicketTypesByEvent(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("order %s: load ticket types: %w", req.OrderID, err)
	}
	typesByID := make(map[string]models.TicketType, len(types))
	for _, tt := range types {
		typesByID[tt.TicketTypeID] = tt
	}

	now := time.Now()
	var tickets []models.Ticket
	for _, item := range req.Items {
		if _, ok := typesByID[item.TicketTypeID]; !ok {
			return nil, fmt.Errorf("order %s: ticket type %s does not belong to event %s", req.OrderID, item.TicketTypeID, req.EventID)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("order %s: invalid quantity %d for ticket type %s", req.OrderID, item.Quantity, item.TicketTypeID)
		}

		for i := 0; i < item.Quantity; i++ {
			ticketID := uuid.New().String()
			payload := qr.NewPayload(ticketID, req.EventID, event.TenantID, now, event.EndTime)
			signature := s.Signer.Sign(payload)
			qrData, err := qr.Encode(payload, signature)
			if err != nil {
				return nil, fmt.Errorf("order %s: encode QR payload: %w", req.OrderID, err)
			}

			tickets = append(tickets, models.Ticket{
				TicketID:     ticketID,
				TenantID:     event.TenantID,
				EventID:      req.EventID,
				TicketTypeID: item.TicketTypeID,
				OrderID:      req.OrderID,
				UserID:       req.UserID,
				Status:       models.TicketStatusValid,
				QRData:       qrData,
				QRSignature:  signature,
				IssuedAt:     now,
			})
		}
	}

	if err := s.DB.InsertTickets(ctx, tickets); err != nil {
		return nil, fmt.Errorf("order %s: persist tickets: %w", req.OrderID, err)
	}
	s.Logger.LogTicket("ISSUE", req.OrderID, fmt.Sprintf("issued %d tickets for event %s", len(tickets), req.EventID))

	// Sold counts move in a single database-side increment per item so
	// concurrent completions never lose updates.
	for _, item := range req.Items {
		if err := s.DB.IncrementSoldCount(ctx, item.TicketTypeID, item.Quantity); err != nil {
			s.Logger.Error("TICKET", fmt.Sprintf("order %s: increment sold count for %s: %v", req.OrderID, item.TicketTypeID, err))
		}
	}

	s.publishIssued(ctx, event, req, tickets)
	s.notify(event, req, tickets)

	return tickets, nil
}

func (s *Service) publishIssued(ctx context.Context, event *models.Event, req IssueRequest, tickets []models.Ticket) {
	if s.Kafka == nil {
		return
	}
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.TicketID
	}
	err := s.Kafka.PublishTicketEvent(ctx, kafka.TicketEvent{
		Kind:       kafka.EventTicketIssued,
		TenantID:   event.TenantID,
		EventID:    req.EventID,
		OrderID:    req.OrderID,
		TicketIDs:  ids,
		OccurredAt: time.Now(),
	})
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish ticket.issued for order %s: %v", req.OrderID, err))
	}
}

// notify sends one confirmation per ticket. Mail is best-effort: failures
// are logged and never unwind issuance.
func (s *Service) notify(event *models.Event, req IssueRequest, tickets []models.Ticket) {
	if s.Mail == nil || req.NotifyEmail == "" {
		return
	}
	for _, t := range tickets {
		png, err := qr.Image(t.QRData)
		if err != nil {
			s.Logger.Error("MAIL", fmt.Sprintf("render QR for ticket %s: %v", t.TicketID, err))
			continue
		}
		if err := s.Mail.SendTicketConfirmation(req.NotifyEmail, event.Name, t.TicketID, png); err != nil {
			s.Logger.Error("MAIL", fmt.Sprintf("ticket %s: %v", t.TicketID, err))
			continue
		}
		s.Logger.LogMail(req.NotifyEmail, fmt.Sprintf("sent confirmation for ticket %s", t.TicketID))
	}
}
