package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthnet/healthnet/internal/domain/assignment"
	"github.com/healthnet/healthnet/internal/domain/notification"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

// Gate is the assignment check. Satisfied by *assignment.Service.
type Gate interface {
	CheckActive(ctx context.Context, doctorID, patientID uuid.UUID) (*assignment.Assignment, error)
}

type Service struct {
	repo     Repository
	gate     Gate
	notifier *notification.Notifier
	now      func() time.Time
}

func NewService(repo Repository, gate Gate, notifier *notification.Notifier) *Service {
	return &Service{repo: repo, gate: gate, notifier: notifier, now: time.Now}
}

// CreateInput is the doctor payload for booking an appointment.
type CreateInput struct {
	PatientID   uuid.UUID `json:"patient_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Reason      string    `json:"reason"`
	Notes       string    `json:"notes"`
}

func (s *Service) Create(ctx context.Context, doctorID uuid.UUID, in CreateInput) (*Appointment, error) {
	if in.ScheduledAt.IsZero() {
		return nil, httperr.BadRequest("scheduled_at is required")
	}
	if in.ScheduledAt.Before(s.now()) {
		return nil, httperr.BadRequest("scheduled_at must be in the future")
	}
	if _, err := s.gate.CheckActive(ctx, doctorID, in.PatientID); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:   in.PatientID,
		DoctorID:    doctorID,
		ScheduledAt: in.ScheduledAt,
		Reason:      in.Reason,
		Notes:       in.Notes,
		Status:      StatusScheduled,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.notifier.Notify(in.PatientID, notification.KindAppointment,
		"Appointment scheduled",
		fmt.Sprintf("An appointment has been scheduled for %s.", in.ScheduledAt.Format(time.RFC1123)))
	return s.repo.GetByID(ctx, a.ID)
}

// Reschedule moves an appointment. Allowed only while the current slot is
// still ahead and the appointment is not completed.
func (s *Service) Reschedule(ctx context.Context, doctorID, id uuid.UUID, newTime time.Time) (*Appointment, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, httperr.Forbidden("only the owning doctor may reschedule this appointment")
	}
	if a.Status == StatusCompleted {
		return nil, httperr.DomainState("a completed appointment cannot be rescheduled")
	}
	if a.ScheduledAt.Before(s.now()) {
		return nil, httperr.DomainState("a past appointment cannot be rescheduled")
	}
	if newTime.IsZero() || newTime.Before(s.now()) {
		return nil, httperr.BadRequest("new time must be in the future")
	}

	a.ScheduledAt = newTime
	a.Status = StatusRescheduled
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.notifier.Notify(a.PatientID, notification.KindAppointment,
		"Appointment rescheduled",
		fmt.Sprintf("Your appointment has been moved to %s.", newTime.Format(time.RFC1123)))
	return a, nil
}

// Complete closes out an appointment after it has taken place.
func (s *Service) Complete(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, httperr.Forbidden("only the owning doctor may complete this appointment")
	}
	if a.Status == StatusCompleted {
		return nil, httperr.DomainState("appointment is already completed")
	}
	if a.ScheduledAt.After(s.now()) {
		return nil, httperr.DomainState("an appointment cannot be completed before its scheduled time")
	}

	now := s.now()
	a.Status = StatusCompleted
	a.CompletedAt = &now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.notifier.Notify(a.PatientID, notification.KindAppointment,
		"Appointment completed", "Your appointment has been marked completed.")
	return a, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, httperr.NotFound("appointment not found")
		}
		return nil, err
	}
	return a, nil
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
