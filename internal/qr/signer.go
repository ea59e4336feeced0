package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer computes and verifies HMAC-SHA256 signatures over the canonical
// form of a ticket payload. The secret never leaves the process.
type Signer struct {
	secret []byte
}

// NewSigner normalizes the configured secret to 32 bytes.
func NewSigner(secret string) *Signer {
	hashed := sha256.Sum256([]byte(secret))
	return &Signer{secret: hashed[:]}
}

// canonical returns the stable serialization that signatures are computed
// over. The same logical payload must always produce the same string.
func canonical(p Payload) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", p.TicketID, p.EventID, p.TenantID, p.IssuedAt, p.ExpiresAt)
}

// Sign returns a hex-encoded HMAC-SHA256 digest of the payload.
func (s *Signer) Sign(p Payload) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical(p)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and compares in constant time. Malformed
// signatures simply fail verification, they never error.
func (s *Signer) Verify(p Payload, signature string) bool {
	expected := s.Sign(p)
	return hmac.Equal([]byte(expected), []byte(signature))
}
