package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"eventpass/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// IsAuthorizedScanner reports whether the user may scan for the event:
// the organizer, or anyone on the event's staff list.
func (d *DB) IsAuthorizedScanner(ctx context.Context, eventID, userID string) (bool, error) {
	organizer, err := d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Where("event_id = ?", eventID).
		Where("organizer_id = ?", userID).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	if organizer {
		return true, nil
	}

	return d.Bun.NewSelect().
		Model((*models.EventStaff)(nil)).
		Where("event_id = ?", eventID).
		Where("user_id = ?", userID).
		Exists(ctx)
}

func (d *DB) GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketTypeByID(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	var tt models.TicketType
	err := d.Bun.NewSelect().
		Model(&tt).
		Where("ticket_type_id = ?", ticketTypeID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &tt, nil
}

// MarkTicketUsed is the optimistic lock: the status predicate means two
// concurrent scans can both validate but only one update matches a row.
// The loser sees false and reports the settled state.
func (d *DB) MarkTicketUsed(ctx context.Context, ticketID, scannerID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketStatusUsed).
		Set("checked_in_at = ?", at).
		Set("checked_in_by = ?", scannerID).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", models.TicketStatusValid).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CancelTicket moves valid -> cancelled under the same predicate.
func (d *DB) CancelTicket(ctx context.Context, ticketID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketStatusCancelled).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", models.TicketStatusValid).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *DB) InsertCheckInLog(ctx context.Context, entry models.CheckInLog) error {
	_, err := d.Bun.NewInsert().Model(&entry).Exec(ctx)
	return err
}

func (d *DB) GetCheckInLogsByTicket(ctx context.Context, ticketID string) ([]models.CheckInLog, error) {
	var logs []models.CheckInLog
	err := d.Bun.NewSelect().
		Model(&logs).
		Where("ticket_id = ?", ticketID).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
