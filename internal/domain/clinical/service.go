package clinical

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthnet/healthnet/internal/domain/assignment"
	"github.com/healthnet/healthnet/internal/domain/identity"
	"github.com/healthnet/healthnet/internal/domain/notification"
	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/blobstore"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

// Gate is the assignment check every doctor write goes through.
// Satisfied by *assignment.Service.
type Gate interface {
	CheckActive(ctx context.Context, doctorID, patientID uuid.UUID) (*assignment.Assignment, error)
	AssignedCounterparts(ctx context.Context, patientID uuid.UUID, doctorType string) ([]uuid.UUID, error)
}

// DoctorDirectory reports a doctor's subtype. Satisfied by *identity.Service.
type DoctorDirectory interface {
	DoctorType(ctx context.Context, userID uuid.UUID) (string, error)
}

type Service struct {
	diagnoses DiagnosisRepository
	labs      LabResultRepository
	gate      Gate
	doctors   DoctorDirectory
	notifier  *notification.Notifier
	blobs     blobstore.BlobStore
}

func NewService(diagnoses DiagnosisRepository, labs LabResultRepository, gate Gate, doctors DoctorDirectory, notifier *notification.Notifier, blobs blobstore.BlobStore) *Service {
	return &Service{diagnoses: diagnoses, labs: labs, gate: gate, doctors: doctors, notifier: notifier, blobs: blobs}
}

// requireSubtype checks the caller is a doctor of the given subtype AND
// actively assigned to the patient, in that order.
func (s *Service) requireSubtype(ctx context.Context, doctorID, patientID uuid.UUID, subtype string) error {
	dt, err := s.doctors.DoctorType(ctx, doctorID)
	if err != nil {
		return err
	}
	if dt != subtype {
		return httperr.Forbidden("this action requires a %s", subtype)
	}
	_, err = s.gate.CheckActive(ctx, doctorID, patientID)
	return err
}

// CreateDiagnosisInput is the doctor payload for a new diagnosis.
type CreateDiagnosisInput struct {
	PatientID        uuid.UUID `json:"patient_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Treatment        string    `json:"treatment"`
	Status           string    `json:"status"`
	EmergencyVisible bool      `json:"emergency_visible"`
}

func (s *Service) CreateDiagnosis(ctx context.Context, doctorID uuid.UUID, in CreateDiagnosisInput) (*Diagnosis, error) {
	if in.Title == "" {
		return nil, httperr.BadRequest("title is required")
	}
	if in.Status == "" {
		in.Status = DiagnosisPending
	}
	if in.Status != DiagnosisPending && in.Status != DiagnosisCompleted {
		return nil, httperr.BadRequest("status must be PENDING or COMPLETED")
	}
	if err := s.requireSubtype(ctx, doctorID, in.PatientID, identity.DoctorTypeMedical); err != nil {
		return nil, err
	}

	d := &Diagnosis{
		PatientID:        in.PatientID,
		DoctorID:         doctorID,
		Title:            in.Title,
		Description:      in.Description,
		Treatment:        in.Treatment,
		Status:           in.Status,
		EmergencyVisible: in.EmergencyVisible,
	}
	if d.Status == DiagnosisCompleted {
		now := time.Now()
		d.CompletedAt = &now
	}
	if err := s.diagnoses.Create(ctx, d); err != nil {
		return nil, err
	}

	s.notifier.Notify(in.PatientID, notification.KindDiagnosis,
		"New diagnosis", fmt.Sprintf("A new diagnosis %q was recorded for you.", d.Title))
	if labs, err := s.gate.AssignedCounterparts(ctx, in.PatientID, identity.DoctorTypeLabTech); err == nil {
		s.notifier.NotifyAll(labs, notification.KindDiagnosis,
			"New diagnosis for your patient", fmt.Sprintf("Diagnosis %q was recorded for a patient assigned to you.", d.Title))
	}
	return s.diagnoses.GetByID(ctx, d.ID)
}

// UpdateDiagnosisInput carries the editable diagnosis fields.
type UpdateDiagnosisInput struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	Treatment        *string `json:"treatment"`
	EmergencyVisible *bool   `json:"emergency_visible"`
}

func (s *Service) UpdateDiagnosis(ctx context.Context, doctorID, id uuid.UUID, in UpdateDiagnosisInput) (*Diagnosis, error) {
	d, err := s.getDiagnosis(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.DoctorID != doctorID {
		return nil, httperr.Forbidden("only the authoring doctor may edit a diagnosis")
	}
	if d.Status == DiagnosisCompleted {
		return nil, httperr.DomainState("a completed diagnosis cannot be edited")
	}
	if in.Title != nil {
		if *in.Title == "" {
			return nil, httperr.BadRequest("title cannot be empty")
		}
		d.Title = *in.Title
	}
	if in.Description != nil {
		d.Description = *in.Description
	}
	if in.Treatment != nil {
		d.Treatment = *in.Treatment
	}
	if in.EmergencyVisible != nil {
		d.EmergencyVisible = *in.EmergencyVisible
	}
	if err := s.diagnoses.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) CompleteDiagnosis(ctx context.Context, doctorID, id uuid.UUID) (*Diagnosis, error) {
	d, err := s.getDiagnosis(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.DoctorID != doctorID {
		return nil, httperr.Forbidden("only the authoring doctor may complete a diagnosis")
	}
	if d.Status == DiagnosisCompleted {
		return nil, httperr.DomainState("diagnosis is already completed")
	}
	now := time.Now()
	d.Status = DiagnosisCompleted
	d.CompletedAt = &now
	if err := s.diagnoses.Update(ctx, d); err != nil {
		return nil, err
	}

	s.notifier.Notify(d.PatientID, notification.KindDiagnosis,
		"Diagnosis completed", fmt.Sprintf("Your diagnosis %q has been marked completed.", d.Title))
	return d, nil
}

func (s *Service) getDiagnosis(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	d, err := s.diagnoses.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, httperr.NotFound("diagnosis not found")
		}
		return nil, err
	}
	return d, nil
}

// ListDiagnoses enforces the read gate: doctors must be assigned, patients
// only see their own chart.
func (s *Service) ListDiagnoses(ctx context.Context, caller auth.Principal, patientID uuid.UUID, limit, offset int) ([]*Diagnosis, int, error) {
	if err := s.authorizeRead(ctx, caller, patientID); err != nil {
		return nil, 0, err
	}
	return s.diagnoses.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) authorizeRead(ctx context.Context, caller auth.Principal, patientID uuid.UUID) error {
	switch caller.Role {
	case auth.RolePatient:
		if caller.UserID != patientID {
			return httperr.Forbidden("patients may only view their own records")
		}
		return nil
	case auth.RoleDoctor:
		_, err := s.gate.CheckActive(ctx, caller.UserID, patientID)
		return err
	case auth.RoleAdmin:
		return nil
	}
	return httperr.Forbidden("access denied")
}

// CreateLabResultInput is the technician payload; File is optional.
type CreateLabResultInput struct {
	PatientID        uuid.UUID
	TestName         string
	Status           string
	Notes            string
	EmergencyVisible bool
	FileName         string
	FileMime         string
	File             io.Reader
}

func (s *Service) CreateLabResult(ctx context.Context, technicianID uuid.UUID, in CreateLabResultInput) (*LabResult, error) {
	if in.TestName == "" || in.Status == "" {
		return nil, httperr.BadRequest("test_name and status are required")
	}
	if err := s.requireSubtype(ctx, technicianID, in.PatientID, identity.DoctorTypeLabTech); err != nil {
		return nil, err
	}

	l := &LabResult{
		PatientID:        in.PatientID,
		TechnicianID:     technicianID,
		TestName:         in.TestName,
		Status:           in.Status,
		IsAbnormal:       in.Status == AbnormalStatus,
		Notes:            in.Notes,
		EmergencyVisible: in.EmergencyVisible,
	}

	if in.File != nil {
		meta, err := s.blobs.Upload(ctx, in.FileName, in.FileMime, in.File)
		if err != nil {
			return nil, httperr.Wrap(httperr.KindBadRequest, "file upload rejected", err)
		}
		l.FileName = meta.FileName
		l.FilePath = meta.Path
		l.FileSize = meta.Size
		l.FileMime = meta.ContentType
	}

	if err := s.labs.Create(ctx, l); err != nil {
		return nil, err
	}

	title := "New lab result"
	if l.IsAbnormal {
		title = "Abnormal lab result"
	}
	s.notifier.Notify(in.PatientID, notification.KindLabResult,
		title, fmt.Sprintf("A result for %q is available.", l.TestName))
	if mds, err := s.gate.AssignedCounterparts(ctx, in.PatientID, identity.DoctorTypeMedical); err == nil {
		s.notifier.NotifyAll(mds, notification.KindLabResult,
			title, fmt.Sprintf("A result for %q was recorded for a patient assigned to you.", l.TestName))
	}
	return s.labs.GetByID(ctx, l.ID)
}

func (s *Service) ListLabResults(ctx context.Context, caller auth.Principal, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	if err := s.authorizeRead(ctx, caller, patientID); err != nil {
		return nil, 0, err
	}
	return s.labs.ListByPatient(ctx, patientID, limit, offset)
}

// EmergencyVisibleDiagnoses and EmergencyVisibleLabResults are used by the
// public emergency projections; no gate, callers apply their own policy.
func (s *Service) EmergencyVisibleDiagnoses(ctx context.Context, patientID uuid.UUID) ([]*Diagnosis, error) {
	return s.diagnoses.ListEmergencyVisible(ctx, patientID)
}

func (s *Service) EmergencyVisibleLabResults(ctx context.Context, patientID uuid.UUID) ([]*LabResult, error) {
	return s.labs.ListEmergencyVisible(ctx, patientID)
}
