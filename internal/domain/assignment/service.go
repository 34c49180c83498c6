package assignment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthnet/healthnet/internal/domain/identity"
	"github.com/healthnet/healthnet/internal/domain/notification"
	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

// UserDirectory is the slice of the identity service the assignment logic
// needs. Satisfied by *identity.Service.
type UserDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

type Service struct {
	repo     Repository
	users    UserDirectory
	notifier *notification.Notifier
}

func NewService(repo Repository, users UserDirectory, notifier *notification.Notifier) *Service {
	return &Service{repo: repo, users: users, notifier: notifier}
}

// CheckActive is the authorization boundary for every doctor action on a
// patient's data. No active assignment means a hard 403, never an empty
// result.
func (s *Service) CheckActive(ctx context.Context, doctorID, patientID uuid.UUID) (*Assignment, error) {
	a, err := s.repo.GetActivePair(ctx, doctorID, patientID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, httperr.Forbidden("you are not assigned to this patient")
		}
		return nil, err
	}
	return a, nil
}

func (s *Service) Create(ctx context.Context, adminID, doctorID, patientID uuid.UUID, notes string) (*Assignment, error) {
	doctor, err := s.users.Get(ctx, doctorID)
	if err != nil {
		return nil, httperr.NotFound("doctor not found")
	}
	if doctor.Role != auth.RoleDoctor {
		return nil, httperr.BadRequest("doctor_id does not reference a doctor")
	}
	patient, err := s.users.Get(ctx, patientID)
	if err != nil {
		return nil, httperr.NotFound("patient not found")
	}
	if patient.Role != auth.RolePatient {
		return nil, httperr.BadRequest("patient_id does not reference a patient")
	}

	if _, err := s.repo.GetActivePair(ctx, doctorID, patientID); err == nil {
		return nil, httperr.Conflict("an active assignment already exists for this pair")
	} else if err != pgx.ErrNoRows {
		return nil, err
	}

	a := &Assignment{
		DoctorID:   doctorID,
		PatientID:  patientID,
		AssignedBy: adminID,
		Notes:      notes,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.notifier.Notify(doctorID, notification.KindAssignment,
		"New patient assigned",
		fmt.Sprintf("%s (%s) has been assigned to your care.", patient.Name, patient.BusinessID))
	s.notifier.Notify(patientID, notification.KindAssignment,
		"New care provider",
		fmt.Sprintf("%s has been assigned as your care provider.", doctor.Name))
	return a, nil
}

// End closes an assignment by stamping end_date. The row stays.
func (s *Service) End(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, httperr.NotFound("assignment not found")
		}
		return nil, err
	}
	if !a.Active() {
		return nil, httperr.DomainState("assignment is already ended")
	}
	if err := s.repo.End(ctx, id); err != nil {
		return nil, err
	}

	patient, err := s.users.Get(ctx, a.PatientID)
	if err == nil {
		s.notifier.Notify(a.DoctorID, notification.KindAssignment,
			"Assignment ended",
			fmt.Sprintf("Your assignment to %s (%s) has ended.", patient.Name, patient.BusinessID))
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Assignment, int, error) {
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assignment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, activeOnly bool, limit, offset int) ([]*Assignment, int, error) {
	return s.repo.ListAll(ctx, activeOnly, limit, offset)
}

// AssignedCounterparts returns the user ids of all doctors actively
// assigned to the patient whose doctor subtype matches doctorType. Used to
// fan out clinical notifications.
func (s *Service) AssignedCounterparts(ctx context.Context, patientID uuid.UUID, doctorType string) ([]uuid.UUID, error) {
	items, _, err := s.repo.ListByPatient(ctx, patientID, 1000, 0)
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for _, a := range items {
		u, err := s.users.Get(ctx, a.DoctorID)
		if err != nil || u.Doctor == nil {
			continue
		}
		if doctorType == "" || u.Doctor.DoctorType == doctorType {
			out = append(out, a.DoctorID)
		}
	}
	return out, nil
}
