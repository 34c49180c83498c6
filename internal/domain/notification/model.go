package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds, one per event source.
const (
	KindAssignment  = "assignment"
	KindDiagnosis   = "diagnosis"
	KindLabResult   = "lab_result"
	KindAppointment = "appointment"
	KindSystem      = "system"
)

// Notification maps to the notification table. In-app only; nothing is
// delivered externally.
type Notification struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Kind      string    `db:"kind" json:"kind"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
