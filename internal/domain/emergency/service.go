package emergency

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthnet/healthnet/internal/domain/assignment"
	"github.com/healthnet/healthnet/internal/domain/clinical"
	"github.com/healthnet/healthnet/internal/domain/identity"
	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/db"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

// PatientDirectory is the slice of the identity service the emergency
// projections need. Satisfied by *identity.Service.
type PatientDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*identity.User, error)
	GetByBusinessID(ctx context.Context, businessID string) (*identity.User, error)
}

// ClinicalReader supplies the emergency-visible chart slices.
// Satisfied by *clinical.Service.
type ClinicalReader interface {
	EmergencyVisibleDiagnoses(ctx context.Context, patientID uuid.UUID) ([]*clinical.Diagnosis, error)
	EmergencyVisibleLabResults(ctx context.Context, patientID uuid.UUID) ([]*clinical.LabResult, error)
}

// Gate is the assignment check for doctor reads. Satisfied by
// *assignment.Service.
type Gate interface {
	CheckActive(ctx context.Context, doctorID, patientID uuid.UUID) (*assignment.Assignment, error)
}

type Service struct {
	repo     Repository
	users    PatientDirectory
	clinical ClinicalReader
	gate     Gate
	tx       db.TxRunner
}

func NewService(repo Repository, users PatientDirectory, clinicalReader ClinicalReader, gate Gate, tx db.TxRunner) *Service {
	return &Service{repo: repo, users: users, clinical: clinicalReader, gate: gate, tx: tx}
}

// GetInfo returns the patient's emergency info, or an empty record if none
// has been saved yet.
func (s *Service) GetInfo(ctx context.Context, patientID uuid.UUID) (*EmergencyInfo, error) {
	info, err := s.repo.GetInfo(ctx, patientID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &EmergencyInfo{PatientID: patientID}, nil
		}
		return nil, err
	}
	return info, nil
}

// UpdateInfoInput carries the patient-editable emergency info fields.
type UpdateInfoInput struct {
	EmergencyContactName     string `json:"emergency_contact_name"`
	EmergencyContactPhone    string `json:"emergency_contact_phone"`
	EmergencyContactRelation string `json:"emergency_contact_relation"`
	KnownConditions          string `json:"known_conditions"`
	Notes                    string `json:"notes"`
}

func (s *Service) UpdateInfo(ctx context.Context, patientID uuid.UUID, in UpdateInfoInput) (*EmergencyInfo, error) {
	info, err := s.GetInfo(ctx, patientID)
	if err != nil {
		return nil, err
	}
	info.PatientID = patientID
	info.EmergencyContactName = in.EmergencyContactName
	info.EmergencyContactPhone = in.EmergencyContactPhone
	info.EmergencyContactRelation = in.EmergencyContactRelation
	info.KnownConditions = in.KnownConditions
	info.Notes = in.Notes
	if err := s.repo.UpsertInfo(ctx, info); err != nil {
		return nil, err
	}
	return s.GetInfo(ctx, patientID)
}

// AllergyInput is the payload for adding or updating an allergy.
type AllergyInput struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Reaction string `json:"reaction"`
}

// AddOrUpdateAllergy upserts by case-insensitive name and mirrors the name
// into known_allergies, both inside one transaction. The invariant: one
// allergy row per name per patient, and the name appears exactly once in
// the mirror string.
func (s *Service) AddOrUpdateAllergy(ctx context.Context, patientID uuid.UUID, in AllergyInput) (*Allergy, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, httperr.BadRequest("name is required")
	}
	switch in.Severity {
	case SeverityMild, SeverityModerate, SeveritySevere:
	default:
		return nil, httperr.BadRequest("severity must be MILD, MODERATE or SEVERE")
	}

	var result *Allergy
	err := s.tx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetAllergyByName(ctx, patientID, name)
		switch {
		case err == nil:
			existing.Severity = in.Severity
			existing.Reaction = in.Reaction
			if err := s.repo.UpdateAllergy(ctx, existing); err != nil {
				return err
			}
			result = existing
		case err == pgx.ErrNoRows:
			a := &Allergy{PatientID: patientID, Name: name, Severity: in.Severity, Reaction: in.Reaction}
			if err := s.repo.CreateAllergy(ctx, a); err != nil {
				return err
			}
			result = a
		default:
			return err
		}
		return s.mirrorAllergy(ctx, patientID, name)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) mirrorAllergy(ctx context.Context, patientID uuid.UUID, name string) error {
	info, err := s.GetInfo(ctx, patientID)
	if err != nil {
		return err
	}
	for _, part := range strings.Split(info.KnownAllergies, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return nil
		}
	}
	if info.KnownAllergies == "" {
		info.KnownAllergies = name
	} else {
		info.KnownAllergies += ", " + name
	}
	info.PatientID = patientID
	return s.repo.UpsertInfo(ctx, info)
}

// ListAllergies applies the same read policy as the clinical chart.
func (s *Service) ListAllergies(ctx context.Context, caller auth.Principal, patientID uuid.UUID) ([]*Allergy, error) {
	switch caller.Role {
	case auth.RolePatient:
		if caller.UserID != patientID {
			return nil, httperr.Forbidden("patients may only view their own allergies")
		}
	case auth.RoleDoctor:
		if _, err := s.gate.CheckActive(ctx, caller.UserID, patientID); err != nil {
			return nil, err
		}
	case auth.RoleAdmin:
	default:
		return nil, httperr.Forbidden("access denied")
	}
	return s.repo.ListAllergies(ctx, patientID)
}

// PatientAllergies lists a patient's allergies with no caller policy, for
// projections that have already done their own authorization (QR scans run
// token checks instead of a role check).
func (s *Service) PatientAllergies(ctx context.Context, patientID uuid.UUID) ([]*Allergy, error) {
	return s.repo.ListAllergies(ctx, patientID)
}

// Search is the public emergency lookup by business id. Hidden fields come
// back as the literal "Restricted"; inactive patients are fully restricted.
func (s *Service) Search(ctx context.Context, businessID string) (*Profile, error) {
	u, err := s.users.GetByBusinessID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if u.Role != auth.RolePatient {
		return nil, httperr.NotFound("user not found")
	}
	if u.Status != identity.StatusActive {
		return nil, httperr.Forbidden("restricted")
	}
	return s.BuildProfile(ctx, u)
}

// BuildProfile assembles the search response for an already-resolved
// patient. The QR scan view is assembled separately in its own package;
// the two projections must not share an assembly path.
func (s *Service) BuildProfile(ctx context.Context, u *identity.User) (*Profile, error) {
	p := &Profile{
		BusinessID:  u.BusinessID,
		Name:        u.Name,
		Gender:      u.Gender,
		DateOfBirth: u.DateOfBirth,
		BloodType:   Restricted,
		Disability:  Restricted,
	}
	if u.Patient != nil {
		if u.Patient.BloodTypeVisible {
			p.BloodType = u.Patient.BloodType
		}
		if u.Patient.DisabilityVisible {
			p.Disability = u.Patient.Disability
		}
	}

	if info, err := s.GetInfo(ctx, u.ID); err == nil {
		p.Info = info
	}
	if allergies, err := s.repo.ListAllergies(ctx, u.ID); err == nil {
		p.Allergies = allergies
	}

	diags, err := s.clinical.EmergencyVisibleDiagnoses(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	for _, d := range diags {
		p.Diagnoses = append(p.Diagnoses, RecordSummary{Title: d.Title, Status: d.Status, Date: d.CreatedAt})
	}

	labs, err := s.clinical.EmergencyVisibleLabResults(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	for _, l := range labs {
		p.LabResults = append(p.LabResults, RecordSummary{Title: l.TestName, Status: l.Status, Date: l.CreatedAt})
	}
	return p, nil
}
