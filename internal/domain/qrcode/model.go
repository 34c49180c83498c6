package qrcode

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// TokenTTL is how long an emergency token stays valid.
const TokenTTL = 365 * 24 * time.Hour

// QRCode maps to the qr_code table. At most one active row exists per
// patient (partial unique index); regeneration deactivates the rest.
type QRCode struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	Token      string     `db:"token" json:"token"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	ScanCount  int        `db:"scan_count" json:"scan_count"`
	MaxScans   int        `db:"max_scans" json:"max_scans"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Expired reports whether the token is past its expiry.
func (q *QRCode) Expired(now time.Time) bool { return now.After(q.ExpiresAt) }

// FirstResponder maps to the first_responder table: one append-only row
// per successful scan. ScannerUserID stays nil for anonymous scans.
type FirstResponder struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	QRCodeID      uuid.UUID  `db:"qr_code_id" json:"qr_code_id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	ScannerUserID *uuid.UUID `db:"scanner_user_id" json:"scanner_user_id,omitempty"`
	IPAddress     string     `db:"ip_address" json:"ip_address"`
	UserAgent     string     `db:"user_agent" json:"user_agent"`
	ScannedAt     time.Time  `db:"scanned_at" json:"scanned_at"`
}

// NewToken returns 32 random bytes hex-encoded. A broken entropy source is
// unrecoverable; minting a predictable emergency token would be worse than
// crashing.
func NewToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("qrcode: entropy source unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
