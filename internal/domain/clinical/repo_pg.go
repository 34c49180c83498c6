package clinical

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

type diagnosisRepoPG struct{ pool *pgxpool.Pool }

func NewDiagnosisRepoPG(pool *pgxpool.Pool) DiagnosisRepository { return &diagnosisRepoPG{pool: pool} }

const diagCols = `id, patient_id, doctor_id, title, description, treatment, status, emergency_visible, completed_at, created_at, updated_at`

func scanDiagnosis(row pgx.Row) (*Diagnosis, error) {
	var d Diagnosis
	err := row.Scan(&d.ID, &d.PatientID, &d.DoctorID, &d.Title, &d.Description, &d.Treatment,
		&d.Status, &d.EmergencyVisible, &d.CompletedAt, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *diagnosisRepoPG) Create(ctx context.Context, d *Diagnosis) error {
	d.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO diagnosis (id, patient_id, doctor_id, title, description, treatment, status, emergency_visible, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.PatientID, d.DoctorID, d.Title, d.Description, d.Treatment, d.Status, d.EmergencyVisible, d.CompletedAt)
	return err
}

func (r *diagnosisRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	return scanDiagnosis(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+diagCols+` FROM diagnosis WHERE id = $1`, id))
}

func (r *diagnosisRepoPG) Update(ctx context.Context, d *Diagnosis) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE diagnosis SET title = $2, description = $3, treatment = $4, status = $5,
			emergency_visible = $6, completed_at = $7, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Title, d.Description, d.Treatment, d.Status, d.EmergencyVisible, d.CompletedAt)
	return err
}

func (r *diagnosisRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Diagnosis, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM diagnosis WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+diagCols+` FROM diagnosis WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *diagnosisRepoPG) ListEmergencyVisible(ctx context.Context, patientID uuid.UUID) ([]*Diagnosis, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+diagCols+` FROM diagnosis WHERE patient_id = $1 AND emergency_visible = TRUE
		ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, nil
}

type labResultRepoPG struct{ pool *pgxpool.Pool }

func NewLabResultRepoPG(pool *pgxpool.Pool) LabResultRepository { return &labResultRepoPG{pool: pool} }

const labCols = `id, patient_id, technician_id, test_name, status, is_abnormal, notes, file_name, file_path, file_size, file_mime, emergency_visible, created_at, updated_at`

func scanLabResult(row pgx.Row) (*LabResult, error) {
	var l LabResult
	err := row.Scan(&l.ID, &l.PatientID, &l.TechnicianID, &l.TestName, &l.Status, &l.IsAbnormal,
		&l.Notes, &l.FileName, &l.FilePath, &l.FileSize, &l.FileMime, &l.EmergencyVisible, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *labResultRepoPG) Create(ctx context.Context, l *LabResult) error {
	l.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO lab_result (id, patient_id, technician_id, test_name, status, is_abnormal, notes, file_name, file_path, file_size, file_mime, emergency_visible)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		l.ID, l.PatientID, l.TechnicianID, l.TestName, l.Status, l.IsAbnormal, l.Notes,
		l.FileName, l.FilePath, l.FileSize, l.FileMime, l.EmergencyVisible)
	return err
}

func (r *labResultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return scanLabResult(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+labCols+` FROM lab_result WHERE id = $1`, id))
}

func (r *labResultRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM lab_result WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+labCols+` FROM lab_result WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LabResult
	for rows.Next() {
		l, err := scanLabResult(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, nil
}

func (r *labResultRepoPG) ListEmergencyVisible(ctx context.Context, patientID uuid.UUID) ([]*LabResult, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+labCols+` FROM lab_result WHERE patient_id = $1 AND emergency_visible = TRUE
		ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LabResult
	for rows.Next() {
		l, err := scanLabResult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, nil
}
