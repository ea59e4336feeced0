package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eventpass/internal/kafka"
	"eventpass/internal/logger"
	"eventpass/internal/models"
	"eventpass/internal/qr"
)

// Status is the closed set of scan outcomes. Each validation step
// short-circuits with its own status so the scanner UI can render a
// specific message; ALREADY_USED is deliberately distinct from the invalid
// statuses so staff can tell a double-scan from fraud.
type Status string

const (
	StatusSuccess          Status = "SUCCESS"
	StatusParseError       Status = "PARSE_ERROR"
	StatusInvalidSignature Status = "INVALID_SIGNATURE"
	StatusTicketExpired    Status = "TICKET_EXPIRED"
	StatusWrongEvent       Status = "WRONG_EVENT"
	StatusUnauthorized     Status = "UNAUTHORIZED"
	StatusTicketNotFound   Status = "TICKET_NOT_FOUND"
	StatusAlreadyUsed      Status = "ALREADY_USED"
	StatusTicketCancelled  Status = "TICKET_CANCELLED"
)

// Result is what the scanner UI renders: the outcome plus attendee context
// for the staff member (who holds the ticket, what kind, and for
// ALREADY_USED, who scanned it before and when).
type Result struct {
	Status         Status    `json:"status"`
	TicketID       string    `json:"ticket_id,omitempty"`
	AttendeeID     string    `json:"attendee_id,omitempty"`
	TicketTypeName string    `json:"ticket_type_name,omitempty"`
	CheckedInAt    time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy    string    `json:"checked_in_by,omitempty"`
}

type DBLayer interface {
	IsAuthorizedScanner(ctx context.Context, eventID, userID string) (bool, error)
	GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
	GetTicketTypeByID(ctx context.Context, ticketTypeID string) (*models.TicketType, error)
	MarkTicketUsed(ctx context.Context, ticketID, scannerID string, at time.Time) (bool, error)
	CancelTicket(ctx context.Context, ticketID string) (bool, error)
	InsertCheckInLog(ctx context.Context, entry models.CheckInLog) error
}

type Publisher interface {
	PublishTicketEvent(ctx context.Context, event kafka.TicketEvent) error
}

// Service validates scanned QR payloads and performs the valid -> used
// transition. All double-scan races are resolved at the storage layer by
// the conditional update, never in process.
type Service struct {
	DB     DBLayer
	Signer *qr.Signer
	Kafka  Publisher
	Logger *logger.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

func NewService(db DBLayer, signer *qr.Signer, publisher Publisher, log *logger.Logger) *Service {
	return &Service{DB: db, Signer: signer, Kafka: publisher, Logger: log, now: time.Now}
}

// Validate runs the full scan pipeline against a transport string. Scanner
// authorization is checked before any ticket lookup so an unauthorized
// caller learns nothing about ticket existence.
func (s *Service) Validate(ctx context.Context, qrData, eventID, scannerID string) (Result, error) {
	payload, signature, err := qr.Decode(qrData)
	if err != nil {
		return s.reject(ctx, Result{Status: StatusParseError}, eventID, scannerID), nil
	}

	if !s.Signer.Verify(payload, signature) {
		return s.reject(ctx, Result{Status: StatusInvalidSignature, TicketID: payload.TicketID}, eventID, scannerID), nil
	}

	if payload.Expired(s.now()) {
		return s.reject(ctx, Result{Status: StatusTicketExpired, TicketID: payload.TicketID}, eventID, scannerID), nil
	}

	if payload.EventID != eventID {
		return s.reject(ctx, Result{Status: StatusWrongEvent, TicketID: payload.TicketID}, eventID, scannerID), nil
	}

	authorized, err := s.DB.IsAuthorizedScanner(ctx, eventID, scannerID)
	if err != nil {
		return Result{}, fmt.Errorf("authorize scanner %s for event %s: %w", scannerID, eventID, err)
	}
	if !authorized {
		return s.reject(ctx, Result{Status: StatusUnauthorized, TicketID: payload.TicketID}, eventID, scannerID), nil
	}

	ticket, err := s.DB.GetTicketByID(ctx, payload.TicketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.reject(ctx, Result{Status: StatusTicketNotFound, TicketID: payload.TicketID}, eventID, scannerID), nil
		}
		return Result{}, fmt.Errorf("load ticket %s: %w", payload.TicketID, err)
	}

	result := s.describe(ctx, ticket)
	s.appendLog(ctx, models.CheckInLog{
		TicketID:  ticket.TicketID,
		EventID:   eventID,
		ScannerID: scannerID,
		Outcome:   string(result.Status),
	})
	return result, nil
}

// CheckIn performs the optimistically-locked valid -> used transition. Two
// concurrent scans can both validate; exactly one wins the conditional
// update, the loser reports ALREADY_USED.
func (s *Service) CheckIn(ctx context.Context, ticketID, eventID, scannerID string) (Result, error) {
	authorized, err := s.DB.IsAuthorizedScanner(ctx, eventID, scannerID)
	if err != nil {
		return Result{}, fmt.Errorf("authorize scanner %s for event %s: %w", scannerID, eventID, err)
	}
	if !authorized {
		return s.reject(ctx, Result{Status: StatusUnauthorized, TicketID: ticketID}, eventID, scannerID), nil
	}

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.reject(ctx, Result{Status: StatusTicketNotFound, TicketID: ticketID}, eventID, scannerID), nil
		}
		return Result{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	if ticket.EventID != eventID {
		return s.reject(ctx, Result{Status: StatusWrongEvent, TicketID: ticketID}, eventID, scannerID), nil
	}

	at := s.now()
	moved, err := s.DB.MarkTicketUsed(ctx, ticketID, scannerID, at)
	if err != nil {
		return Result{}, fmt.Errorf("mark ticket %s used: %w", ticketID, err)
	}
	if !moved {
		// Lost the race or the ticket was never valid. Re-read to report
		// the settled state instead of guessing.
		current, err := s.DB.GetTicketByID(ctx, ticketID)
		if err != nil {
			return Result{}, fmt.Errorf("reload ticket %s: %w", ticketID, err)
		}
		result := s.describe(ctx, current)
		s.appendLog(ctx, models.CheckInLog{
			TicketID:  ticketID,
			EventID:   eventID,
			ScannerID: scannerID,
			Outcome:   string(result.Status),
		})
		s.Logger.LogCheckin(string(result.Status), ticketID, "conditional update matched no rows")
		return result, nil
	}

	result := Result{
		Status:         StatusSuccess,
		TicketID:       ticketID,
		AttendeeID:     ticket.UserID,
		TicketTypeName: s.ticketTypeName(ctx, ticket.TicketTypeID),
		CheckedInAt:    at,
		CheckedInBy:    scannerID,
	}
	s.appendLog(ctx, models.CheckInLog{
		TicketID:  ticketID,
		EventID:   eventID,
		ScannerID: scannerID,
		Outcome:   string(StatusSuccess),
	})
	s.Logger.LogCheckin(string(StatusSuccess), ticketID, fmt.Sprintf("checked in by %s", scannerID))

	if s.Kafka != nil {
		err := s.Kafka.PublishTicketEvent(ctx, kafka.TicketEvent{
			Kind:       kafka.EventTicketCheckedIn,
			TenantID:   ticket.TenantID,
			EventID:    eventID,
			TicketIDs:  []string{ticketID},
			OccurredAt: at,
		})
		if err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish ticket.checked_in for %s: %v", ticketID, err))
		}
	}

	return result, nil
}

// Cancel performs the administrative valid -> cancelled transition.
func (s *Service) Cancel(ctx context.Context, ticketID string) (Result, error) {
	moved, err := s.DB.CancelTicket(ctx, ticketID)
	if err != nil {
		return Result{}, fmt.Errorf("cancel ticket %s: %w", ticketID, err)
	}
	if !moved {
		current, err := s.DB.GetTicketByID(ctx, ticketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Result{Status: StatusTicketNotFound, TicketID: ticketID}, nil
			}
			return Result{}, fmt.Errorf("reload ticket %s: %w", ticketID, err)
		}
		return s.describe(ctx, current), nil
	}
	s.Logger.LogTicket("CANCEL", ticketID, "ticket cancelled")
	return Result{Status: StatusTicketCancelled, TicketID: ticketID}, nil
}

// describe maps a stored ticket's status to a scan outcome with attendee
// context.
func (s *Service) describe(ctx context.Context, ticket *models.Ticket) Result {
	result := Result{
		TicketID:       ticket.TicketID,
		AttendeeID:     ticket.UserID,
		TicketTypeName: s.ticketTypeName(ctx, ticket.TicketTypeID),
	}
	switch ticket.Status {
	case models.TicketStatusUsed:
		result.Status = StatusAlreadyUsed
		result.CheckedInAt = ticket.CheckedInAt
		result.CheckedInBy = ticket.CheckedInBy
	case models.TicketStatusCancelled:
		result.Status = StatusTicketCancelled
	default:
		result.Status = StatusSuccess
	}
	return result
}

func (s *Service) ticketTypeName(ctx context.Context, ticketTypeID string) string {
	tt, err := s.DB.GetTicketTypeByID(ctx, ticketTypeID)
	if err != nil {
		return ""
	}
	return tt.Name
}

// reject records a failed attempt and returns the result. Audit logging is
// best-effort; a log write failure never masks the scan outcome.
func (s *Service) reject(ctx context.Context, result Result, eventID, scannerID string) Result {
	s.appendLog(ctx, models.CheckInLog{
		TicketID:  result.TicketID,
		EventID:   eventID,
		ScannerID: scannerID,
		Outcome:   string(result.Status),
	})
	s.Logger.LogCheckin(string(result.Status), result.TicketID, "scan rejected")
	return result
}

func (s *Service) appendLog(ctx context.Context, entry models.CheckInLog) {
	entry.CreatedAt = s.now()
	if err := s.DB.InsertCheckInLog(ctx, entry); err != nil {
		s.Logger.Error("CHECKIN", fmt.Sprintf("append audit log for ticket %s: %v", entry.TicketID, err))
	}
}
