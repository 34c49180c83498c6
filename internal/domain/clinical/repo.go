package clinical

import (
	"context"

	"github.com/google/uuid"
)

type DiagnosisRepository interface {
	Create(ctx context.Context, d *Diagnosis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error)
	Update(ctx context.Context, d *Diagnosis) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Diagnosis, int, error)
	ListEmergencyVisible(ctx context.Context, patientID uuid.UUID) ([]*Diagnosis, error)
}

type LabResultRepository interface {
	Create(ctx context.Context, r *LabResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error)
	ListEmergencyVisible(ctx context.Context, patientID uuid.UUID) ([]*LabResult, error)
}
