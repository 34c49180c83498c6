package clinical

import (
	"time"

	"github.com/google/uuid"
)

// Diagnosis statuses.
const (
	DiagnosisPending   = "PENDING"
	DiagnosisCompleted = "COMPLETED"
)

// AbnormalStatus is the lab result status that flips is_abnormal.
const AbnormalStatus = "ABNORMAL"

// Diagnosis maps to the diagnosis table. Editable only while PENDING;
// completion is one-way and stamps completed_at.
type Diagnosis struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID         uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Title            string     `db:"title" json:"title"`
	Description      string     `db:"description" json:"description"`
	Treatment        string     `db:"treatment" json:"treatment"`
	Status           string     `db:"status" json:"status"`
	EmergencyVisible bool       `db:"emergency_visible" json:"emergency_visible"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// LabResult maps to the lab_result table. IsAbnormal is derived from
// Status, never set directly.
type LabResult struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	TechnicianID     uuid.UUID `db:"technician_id" json:"technician_id"`
	TestName         string    `db:"test_name" json:"test_name"`
	Status           string    `db:"status" json:"status"`
	IsAbnormal       bool      `db:"is_abnormal" json:"is_abnormal"`
	Notes            string    `db:"notes" json:"notes"`
	FileName         string    `db:"file_name" json:"file_name,omitempty"`
	FilePath         string    `db:"file_path" json:"file_path,omitempty"`
	FileSize         int64     `db:"file_size" json:"file_size,omitempty"`
	FileMime         string    `db:"file_mime" json:"file_mime,omitempty"`
	EmergencyVisible bool      `db:"emergency_visible" json:"emergency_visible"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
