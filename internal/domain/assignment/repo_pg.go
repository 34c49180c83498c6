package assignment

import (
	"context"
	"fmt"

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

const cols = `id, doctor_id, patient_id, assigned_by, notes, assigned_at, end_date`

func (r *repoPG) scan(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.AssignedBy, &a.Notes, &a.AssignedAt, &a.EndDate)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Assignment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO assignment (id, doctor_id, patient_id, assigned_by, notes)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.DoctorID, a.PatientID, a.AssignedBy, a.Notes)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM assignment WHERE id = $1`, id))
}

func (r *repoPG) GetActivePair(ctx context.Context, doctorID, patientID uuid.UUID) (*Assignment, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+cols+` FROM assignment
		WHERE doctor_id = $1 AND patient_id = $2 AND end_date IS NULL`, doctorID, patientID))
}

func (r *repoPG) End(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE assignment SET end_date = NOW() WHERE id = $1 AND end_date IS NULL`, id)
	return err
}

func (r *repoPG) list(ctx context.Context, filter string, args []interface{}, limit, offset int) ([]*Assignment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM assignment `+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	next := len(args) + 1
	query := `SELECT ` + cols + ` FROM assignment ` + filter +
		fmt.Sprintf(` ORDER BY assigned_at DESC LIMIT $%d OFFSET $%d`, next, next+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Assignment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Assignment, int, error) {
	return r.list(ctx, `WHERE doctor_id = $1 AND end_date IS NULL`, []interface{}{doctorID}, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Assignment, int, error) {
	return r.list(ctx, `WHERE patient_id = $1 AND end_date IS NULL`, []interface{}{patientID}, limit, offset)
}

func (r *repoPG) ListAll(ctx context.Context, activeOnly bool, limit, offset int) ([]*Assignment, int, error) {
	filter := `WHERE 1=1`
	if activeOnly {
		filter += ` AND end_date IS NULL`
	}
	return r.list(ctx, filter, nil, limit, offset)
}
