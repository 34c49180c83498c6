package assignment

import (
	"time"

	"github.com/google/uuid"
)

// Assignment maps to the assignment table. A row is active while end_date
// is NULL; ending one is a soft delete so clinical records keep a valid
// provenance trail.
type Assignment struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DoctorID   uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	AssignedBy uuid.UUID  `db:"assigned_by" json:"assigned_by"`
	Notes      string     `db:"notes" json:"notes"`
	AssignedAt time.Time  `db:"assigned_at" json:"assigned_at"`
	EndDate    *time.Time `db:"end_date" json:"end_date,omitempty"`
}

// Active reports whether the assignment is currently in force.
func (a *Assignment) Active() bool { return a.EndDate == nil }
