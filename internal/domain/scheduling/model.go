package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses.
const (
	StatusScheduled   = "SCHEDULED"
	StatusRescheduled = "RESCHEDULED"
	StatusCompleted   = "COMPLETED"
)

// Appointment maps to the appointment table.
type Appointment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	Reason      string     `db:"reason" json:"reason"`
	Notes       string     `db:"notes" json:"notes"`
	Status      string     `db:"status" json:"status"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
