package emergency

import (
	"time"

	"github.com/google/uuid"
)

// Allergy severities.
const (
	SeverityMild     = "MILD"
	SeverityModerate = "MODERATE"
	SeveritySevere   = "SEVERE"
)

// Restricted replaces fields the patient has hidden from the public
// emergency projection.
const Restricted = "Restricted"

// EmergencyInfo maps to the emergency_info table, one row per patient.
// KnownAllergies is a comma-joined mirror of the allergy rows kept for
// fast display on the scan page.
type EmergencyInfo struct {
	ID                       uuid.UUID `db:"id" json:"id"`
	PatientID                uuid.UUID `db:"patient_id" json:"patient_id"`
	EmergencyContactName     string    `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone    string    `db:"emergency_contact_phone" json:"emergency_contact_phone"`
	EmergencyContactRelation string    `db:"emergency_contact_relation" json:"emergency_contact_relation"`
	KnownAllergies           string    `db:"known_allergies" json:"known_allergies"`
	KnownConditions          string    `db:"known_conditions" json:"known_conditions"`
	Notes                    string    `db:"notes" json:"notes"`
	CreatedAt                time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time `db:"updated_at" json:"updated_at"`
}

// Allergy maps to the allergy table. One row per (patient, name),
// case-insensitively.
type Allergy struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Name      string    `db:"name" json:"name"`
	Severity  string    `db:"severity" json:"severity"`
	Reaction  string    `db:"reaction" json:"reaction"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RecordSummary is the minimal clinical projection shown to responders:
// title, status and date, nothing authored by a doctor.
type RecordSummary struct {
	Title  string    `json:"title"`
	Status string    `json:"status"`
	Date   time.Time `json:"date"`
}

// Profile is the public emergency search result.
type Profile struct {
	BusinessID  string          `json:"business_id"`
	Name        string          `json:"name"`
	Gender      string          `json:"gender"`
	DateOfBirth *time.Time      `json:"date_of_birth,omitempty"`
	BloodType   string          `json:"blood_type"`
	Disability  string          `json:"disability"`
	Info        *EmergencyInfo  `json:"emergency_info,omitempty"`
	Allergies   []*Allergy      `json:"allergies"`
	Diagnoses   []RecordSummary `json:"diagnoses"`
	LabResults  []RecordSummary `json:"lab_results"`
}
