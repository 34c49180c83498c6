package qrcode

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, q *QRCode) error
	GetByToken(ctx context.Context, token string) (*QRCode, error)
	DeactivateAllForPatient(ctx context.Context, patientID uuid.UUID) error
	RecordScan(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*QRCode, error)

	CreateResponder(ctx context.Context, fr *FirstResponder) error
	ListRespondersByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FirstResponder, int, error)
}
