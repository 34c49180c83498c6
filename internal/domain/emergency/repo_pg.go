package emergency

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

const infoCols = `id, patient_id, emergency_contact_name, emergency_contact_phone, emergency_contact_relation, known_allergies, known_conditions, notes, created_at, updated_at`

func (r *repoPG) GetInfo(ctx context.Context, patientID uuid.UUID) (*EmergencyInfo, error) {
	var i EmergencyInfo
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+infoCols+` FROM emergency_info WHERE patient_id = $1`, patientID).
		Scan(&i.ID, &i.PatientID, &i.EmergencyContactName, &i.EmergencyContactPhone, &i.EmergencyContactRelation,
			&i.KnownAllergies, &i.KnownConditions, &i.Notes, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *repoPG) UpsertInfo(ctx context.Context, info *EmergencyInfo) error {
	if info.ID == uuid.Nil {
		info.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_info (id, patient_id, emergency_contact_name, emergency_contact_phone, emergency_contact_relation, known_allergies, known_conditions, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (patient_id) DO UPDATE SET
			emergency_contact_name = EXCLUDED.emergency_contact_name,
			emergency_contact_phone = EXCLUDED.emergency_contact_phone,
			emergency_contact_relation = EXCLUDED.emergency_contact_relation,
			known_allergies = EXCLUDED.known_allergies,
			known_conditions = EXCLUDED.known_conditions,
			notes = EXCLUDED.notes,
			updated_at = NOW()`,
		info.ID, info.PatientID, info.EmergencyContactName, info.EmergencyContactPhone,
		info.EmergencyContactRelation, info.KnownAllergies, info.KnownConditions, info.Notes)
	return err
}

const allergyCols = `id, patient_id, name, severity, reaction, created_at, updated_at`

func scanAllergy(row pgx.Row) (*Allergy, error) {
	var a Allergy
	err := row.Scan(&a.ID, &a.PatientID, &a.Name, &a.Severity, &a.Reaction, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) GetAllergyByName(ctx context.Context, patientID uuid.UUID, name string) (*Allergy, error) {
	return scanAllergy(r.conn(ctx).QueryRow(ctx, `
		SELECT `+allergyCols+` FROM allergy WHERE patient_id = $1 AND LOWER(name) = LOWER($2)`, patientID, name))
}

func (r *repoPG) CreateAllergy(ctx context.Context, a *Allergy) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO allergy (id, patient_id, name, severity, reaction)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.PatientID, a.Name, a.Severity, a.Reaction)
	return err
}

func (r *repoPG) UpdateAllergy(ctx context.Context, a *Allergy) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE allergy SET severity = $2, reaction = $3, updated_at = NOW() WHERE id = $1`,
		a.ID, a.Severity, a.Reaction)
	return err
}

func (r *repoPG) ListAllergies(ctx context.Context, patientID uuid.UUID) ([]*Allergy, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+allergyCols+` FROM allergy WHERE patient_id = $1 ORDER BY name`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Allergy
	for rows.Next() {
		a, err := scanAllergy(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}
