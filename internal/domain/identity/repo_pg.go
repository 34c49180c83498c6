package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthnet/healthnet/internal/platform/auth"
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

const cols = `id, business_id, name, email, phone, password_hash, role, gender, date_of_birth, token_version, status, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.BusinessID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash,
		&u.Role, &u.Gender, &u.DateOfBirth, &u.TokenVersion, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *repoPG) CreateUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO app_user (id, business_id, name, email, phone, password_hash, role, gender, date_of_birth, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.BusinessID, u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, u.Gender, u.DateOfBirth, u.Status)
	return err
}

func (r *repoPG) CreateDoctorProfile(ctx context.Context, p *DoctorProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_profile (user_id, license_number, doctor_type, facility, status)
		VALUES ($1,$2,$3,$4,$5)`,
		p.UserID, p.LicenseNumber, p.DoctorType, p.Facility, p.Status)
	return err
}

func (r *repoPG) CreatePatientProfile(ctx context.Context, p *PatientProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_profile (user_id, blood_type, disability, insurance_status, blood_type_visible, disability_visible, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.UserID, p.BloodType, p.Disability, p.InsuranceStatus, p.BloodTypeVisible, p.DisabilityVisible, p.Status)
	return err
}

// loadProfile attaches the role profile matching u.Role.
func (r *repoPG) loadProfile(ctx context.Context, u *User) error {
	switch u.Role {
	case auth.RoleDoctor:
		var p DoctorProfile
		err := r.conn(ctx).QueryRow(ctx, `
			SELECT user_id, license_number, doctor_type, facility, status
			FROM doctor_profile WHERE user_id = $1`, u.ID).
			Scan(&p.UserID, &p.LicenseNumber, &p.DoctorType, &p.Facility, &p.Status)
		if err != nil {
			return err
		}
		u.Doctor = &p
	case auth.RolePatient:
		var p PatientProfile
		err := r.conn(ctx).QueryRow(ctx, `
			SELECT user_id, blood_type, disability, insurance_status, blood_type_visible, disability_visible, status
			FROM patient_profile WHERE user_id = $1`, u.ID).
			Scan(&p.UserID, &p.BloodType, &p.Disability, &p.InsuranceStatus, &p.BloodTypeVisible, &p.DisabilityVisible, &p.Status)
		if err != nil {
			return err
		}
		u.Patient = &p
	}
	return nil
}

func (r *repoPG) getBy(ctx context.Context, where string, arg interface{}) (*User, error) {
	u, err := r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM app_user WHERE `+where, arg))
	if err != nil {
		return nil, err
	}
	if err := r.loadProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, `LOWER(email) = LOWER($1)`, email)
}

func (r *repoPG) GetByBusinessID(ctx context.Context, businessID string) (*User, error) {
	return r.getBy(ctx, `business_id = $1`, businessID)
}

func (r *repoPG) List(ctx context.Context, role, search string, limit, offset int) ([]*User, int, error) {
	filter := `WHERE 1=1`
	var args []interface{}
	idx := 1
	if role != "" {
		filter += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, role)
		idx++
	}
	if search != "" {
		filter += fmt.Sprintf(` AND (name ILIKE $%d OR email ILIKE $%d OR business_id = $%d)`, idx, idx, idx+1)
		args = append(args, "%"+search+"%", search)
		idx += 2
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM app_user `+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + cols + ` FROM app_user ` + filter +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	for _, u := range users {
		if err := r.loadProfile(ctx, u); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

func (r *repoPG) UpdateUser(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE app_user SET name = $2, phone = $3, gender = $4, date_of_birth = $5, updated_at = NOW()
		WHERE id = $1`,
		u.ID, u.Name, u.Phone, u.Gender, u.DateOfBirth)
	return err
}

func (r *repoPG) UpdatePatientProfile(ctx context.Context, p *PatientProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_profile SET blood_type = $2, disability = $3, insurance_status = $4,
			blood_type_visible = $5, disability_visible = $6
		WHERE user_id = $1`,
		p.UserID, p.BloodType, p.Disability, p.InsuranceStatus, p.BloodTypeVisible, p.DisabilityVisible)
	return err
}

func (r *repoPG) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE app_user SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	return err
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE app_user SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

func (r *repoPG) BumpTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var v int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE app_user SET token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1 RETURNING token_version`, id).Scan(&v)
	return v, err
}

func (r *repoPG) TokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var v int
	err := r.conn(ctx).QueryRow(ctx, `SELECT token_version FROM app_user WHERE id = $1`, id).Scan(&v)
	return v, err
}
