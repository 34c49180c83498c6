package emergency

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetInfo(ctx context.Context, patientID uuid.UUID) (*EmergencyInfo, error)
	UpsertInfo(ctx context.Context, info *EmergencyInfo) error

	GetAllergyByName(ctx context.Context, patientID uuid.UUID, name string) (*Allergy, error)
	CreateAllergy(ctx context.Context, a *Allergy) error
	UpdateAllergy(ctx context.Context, a *Allergy) error
	ListAllergies(ctx context.Context, patientID uuid.UUID) ([]*Allergy, error)
}
