package identity

import (
	"crypto/rand"
	"encoding/base32"
	"time"

	"github.com/google/uuid"
)

// User statuses.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Doctor subtypes. The subtype decides which clinical records a doctor may
// author: diagnoses for medical doctors, lab results for lab technicians.
const (
	DoctorTypeMedical = "MEDICAL_DOCTOR"
	DoctorTypeLabTech = "LAB_TECHNICIAN"
)

// User maps to the app_user table. Exactly one profile is populated,
// matching Role; Profile() returns whichever it is.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	BusinessID   string     `db:"business_id" json:"business_id"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	Phone        string     `db:"phone" json:"phone"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	Gender       string     `db:"gender" json:"gender"`
	DateOfBirth  *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	TokenVersion int        `db:"token_version" json:"-"`
	Status       string     `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Doctor  *DoctorProfile  `json:"doctor_profile,omitempty"`
	Patient *PatientProfile `json:"patient_profile,omitempty"`
}

// Profile returns the role profile as an untyped value, or nil for admins.
func (u *User) Profile() interface{} {
	switch {
	case u.Doctor != nil:
		return u.Doctor
	case u.Patient != nil:
		return u.Patient
	}
	return nil
}

// DoctorProfile maps to the doctor_profile table.
type DoctorProfile struct {
	UserID        uuid.UUID `db:"user_id" json:"-"`
	LicenseNumber string    `db:"license_number" json:"license_number"`
	DoctorType    string    `db:"doctor_type" json:"doctor_type"`
	Facility      string    `db:"facility" json:"facility"`
	Status        string    `db:"status" json:"status"`
}

// PatientProfile maps to the patient_profile table. The *_visible flags
// gate what the public emergency projection is allowed to show.
type PatientProfile struct {
	UserID            uuid.UUID `db:"user_id" json:"-"`
	BloodType         string    `db:"blood_type" json:"blood_type"`
	Disability        string    `db:"disability" json:"disability"`
	InsuranceStatus   string    `db:"insurance_status" json:"insurance_status"`
	BloodTypeVisible  bool      `db:"blood_type_visible" json:"blood_type_visible"`
	DisabilityVisible bool      `db:"disability_visible" json:"disability_visible"`
	Status            string    `db:"status" json:"status"`
}

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewBusinessID builds a human-shareable identifier like PT-K7M2Q9X4C1.
// These go on wristbands and QR lookups, so they stay short and caseless.
func NewBusinessID(prefix string) string {
	buf := make([]byte, 7)
	if _, err := rand.Read(buf); err != nil {
		panic("identity: entropy source unavailable: " + err.Error())
	}
	return prefix + "-" + base32NoPad.EncodeToString(buf)[:10]
}
