package assignment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error)
	GetActivePair(ctx context.Context, doctorID, patientID uuid.UUID) (*Assignment, error)
	End(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Assignment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assignment, int, error)
	ListAll(ctx context.Context, activeOnly bool, limit, offset int) ([]*Assignment, int, error)
}
