package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	CreateDoctorProfile(ctx context.Context, p *DoctorProfile) error
	CreatePatientProfile(ctx context.Context, p *PatientProfile) error

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByBusinessID(ctx context.Context, businessID string) (*User, error)

	List(ctx context.Context, role, search string, limit, offset int) ([]*User, int, error)

	UpdateUser(ctx context.Context, u *User) error
	UpdatePatientProfile(ctx context.Context, p *PatientProfile) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error

	BumpTokenVersion(ctx context.Context, id uuid.UUID) (int, error)
	TokenVersion(ctx context.Context, id uuid.UUID) (int, error)
}
