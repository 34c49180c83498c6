package qrcode

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthnet/healthnet/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, patient_id, token, expires_at, is_active, scan_count, max_scans, last_used_at, created_at`

func (r *repoPG) scan(row pgx.Row) (*QRCode, error) {
	var q QRCode
	err := row.Scan(&q.ID, &q.PatientID, &q.Token, &q.ExpiresAt, &q.IsActive,
		&q.ScanCount, &q.MaxScans, &q.LastUsedAt, &q.CreatedAt)
	return &q, err
}

func (r *repoPG) Create(ctx context.Context, q *QRCode) error {
	q.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO qr_code (id, patient_id, token, expires_at, is_active, max_scans)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		q.ID, q.PatientID, q.Token, q.ExpiresAt, q.IsActive, q.MaxScans)
	return err
}

func (r *repoPG) GetByToken(ctx context.Context, token string) (*QRCode, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM qr_code WHERE token = $1`, token))
}

func (r *repoPG) DeactivateAllForPatient(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE qr_code SET is_active = FALSE WHERE patient_id = $1 AND is_active = TRUE`, patientID)
	return err
}

func (r *repoPG) RecordScan(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE qr_code SET scan_count = scan_count + 1, last_used_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*QRCode, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cols+` FROM qr_code WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*QRCode
	for rows.Next() {
		q, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, nil
}

func (r *repoPG) CreateResponder(ctx context.Context, fr *FirstResponder) error {
	fr.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO first_responder (id, qr_code_id, patient_id, scanner_user_id, ip_address, user_agent)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		fr.ID, fr.QRCodeID, fr.PatientID, fr.ScannerUserID, fr.IPAddress, fr.UserAgent)
	return err
}

func (r *repoPG) ListRespondersByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FirstResponder, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM first_responder WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, qr_code_id, patient_id, scanner_user_id, ip_address, user_agent, scanned_at
		FROM first_responder WHERE patient_id = $1
		ORDER BY scanned_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*FirstResponder
	for rows.Next() {
		var fr FirstResponder
		if err := rows.Scan(&fr.ID, &fr.QRCodeID, &fr.PatientID, &fr.ScannerUserID, &fr.IPAddress, &fr.UserAgent, &fr.ScannedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &fr)
	}
	return items, total, nil
}
