package qr

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GraceWindow is added to a ticket's expiry beyond the event's end time to
// tolerate late checkouts and clock skew.
const GraceWindow = 2 * time.Hour

// ErrParse marks transport strings that are not valid signed payloads.
// Callers must treat this as a distinct outcome from signature failure.
var ErrParse = errors.New("qr: malformed payload")

// Payload is the logical content of a ticket QR code. It is built once at
// issuance, embedded into the ticket row, and re-parsed on every scan.
type Payload struct {
	TicketID  string `json:"tid"`
	EventID   string `json:"eid"`
	TenantID  string `json:"tnt"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// signedPayload is the wire form: the payload fields plus signature.
type signedPayload struct {
	Payload
	Signature string `json:"sig"`
}

// NewPayload builds a payload for a ticket, expiring at the event's end time
// plus the grace window.
func NewPayload(ticketID, eventID, tenantID string, issuedAt, eventEnd time.Time) Payload {
	return Payload{
		TicketID:  ticketID,
		EventID:   eventID,
		TenantID:  tenantID,
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: eventEnd.Add(GraceWindow).Unix(),
	}
}

// Expired reports whether the payload's expiry has passed at the given time.
func (p Payload) Expired(now time.Time) bool {
	return now.Unix() > p.ExpiresAt
}

// Encode serializes the payload and its signature to the transport string
// that gets rendered into the QR image.
func Encode(p Payload, signature string) (string, error) {
	data, err := json.Marshal(signedPayload{Payload: p, Signature: signature})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// Decode parses a transport string back into a payload and signature. Any
// structural defect (invalid JSON, missing required fields) is reported as
// ErrParse.
func Decode(data string) (Payload, string, error) {
	var sp signedPayload
	if err := json.Unmarshal([]byte(data), &sp); err != nil {
		return Payload{}, "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	if sp.TicketID == "" || sp.EventID == "" || sp.TenantID == "" || sp.ExpiresAt == 0 || sp.Signature == "" {
		return Payload{}, "", fmt.Errorf("%w: missing required fields", ErrParse)
	}
	return sp.Payload, sp.Signature, nil
}
