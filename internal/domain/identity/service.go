package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/db"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

type Service struct {
	repo   Repository
	issuer *auth.TokenIssuer
	tx     db.TxRunner
}

func NewService(repo Repository, issuer *auth.TokenIssuer, tx db.TxRunner) *Service {
	return &Service{repo: repo, issuer: issuer, tx: tx}
}

// TokenVersion satisfies auth.SessionChecker.
func (s *Service) TokenVersion(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.TokenVersion(ctx, userID)
}

// LoginResult is the /auth/login payload.
type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Login checks credentials, bumps token_version and issues a token carrying
// the new value. Every token minted before this call is dead afterwards.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, httperr.BadRequest("email and password are required")
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, httperr.Unauthorized("invalid credentials")
		}
		return nil, err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return nil, httperr.Unauthorized("invalid credentials")
	}
	if u.Status != StatusActive {
		return nil, httperr.Forbidden("account is inactive")
	}

	version, err := s.repo.BumpTokenVersion(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.TokenVersion = version

	token, err := s.issuer.Issue(u.ID, u.Role, u.Email, version)
	if err != nil {
		return nil, httperr.Internal("could not issue token", err)
	}
	return &LoginResult{Token: token, User: u}, nil
}

// Logout invalidates every outstanding token for the user.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	_, err := s.repo.BumpTokenVersion(ctx, userID)
	return err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, httperr.NotFound("user not found")
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) GetByBusinessID(ctx context.Context, businessID string) (*User, error) {
	u, err := s.repo.GetByBusinessID(ctx, businessID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, httperr.NotFound("user not found")
		}
		return nil, err
	}
	return u, nil
}

// UpdateProfileInput carries the self-service editable fields.
type UpdateProfileInput struct {
	Name        string     `json:"name"`
	Phone       string     `json:"phone"`
	Gender      string     `json:"gender"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (*User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Name != "" {
		u.Name = in.Name
	}
	if in.Phone != "" {
		u.Phone = in.Phone
	}
	if in.Gender != "" {
		u.Gender = in.Gender
	}
	if in.DateOfBirth != nil {
		u.DateOfBirth = in.DateOfBirth
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return httperr.BadRequest("new password must be at least 8 characters")
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(u.PasswordHash, oldPassword) {
		return httperr.Unauthorized("current password is incorrect")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return httperr.Internal("could not hash password", err)
	}
	return s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		_, err := s.repo.BumpTokenVersion(ctx, userID)
		return err
	})
}

// CreateDoctorInput is the admin payload for onboarding a doctor.
type CreateDoctorInput struct {
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Password      string     `json:"password"`
	Gender        string     `json:"gender"`
	DateOfBirth   *time.Time `json:"date_of_birth"`
	LicenseNumber string     `json:"license_number"`
	DoctorType    string     `json:"doctor_type"`
	Facility      string     `json:"facility"`
}

func (s *Service) CreateDoctor(ctx context.Context, in CreateDoctorInput) (*User, error) {
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, httperr.BadRequest("name, email and password are required")
	}
	if in.DoctorType != DoctorTypeMedical && in.DoctorType != DoctorTypeLabTech {
		return nil, httperr.BadRequest("doctor_type must be MEDICAL_DOCTOR or LAB_TECHNICIAN")
	}
	if in.LicenseNumber == "" {
		return nil, httperr.BadRequest("license_number is required")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, httperr.Internal("could not hash password", err)
	}
	u := &User{
		BusinessID:   NewBusinessID("DR"),
		Name:         in.Name,
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         auth.RoleDoctor,
		Gender:       in.Gender,
		DateOfBirth:  in.DateOfBirth,
		Status:       StatusActive,
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateUser(ctx, u); err != nil {
			return err
		}
		return s.repo.CreateDoctorProfile(ctx, &DoctorProfile{
			UserID:        u.ID,
			LicenseNumber: in.LicenseNumber,
			DoctorType:    in.DoctorType,
			Facility:      in.Facility,
			Status:        StatusActive,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, u.ID)
}

// CreatePatientInput is the admin payload for registering a patient.
type CreatePatientInput struct {
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	Password        string     `json:"password"`
	Gender          string     `json:"gender"`
	DateOfBirth     *time.Time `json:"date_of_birth"`
	BloodType       string     `json:"blood_type"`
	Disability      string     `json:"disability"`
	InsuranceStatus string     `json:"insurance_status"`
}

func (s *Service) CreatePatient(ctx context.Context, in CreatePatientInput) (*User, error) {
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, httperr.BadRequest("name, email and password are required")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, httperr.Internal("could not hash password", err)
	}
	u := &User{
		BusinessID:   NewBusinessID("PT"),
		Name:         in.Name,
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         auth.RolePatient,
		Gender:       in.Gender,
		DateOfBirth:  in.DateOfBirth,
		Status:       StatusActive,
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateUser(ctx, u); err != nil {
			return err
		}
		return s.repo.CreatePatientProfile(ctx, &PatientProfile{
			UserID:            u.ID,
			BloodType:         in.BloodType,
			Disability:        in.Disability,
			InsuranceStatus:   in.InsuranceStatus,
			BloodTypeVisible:  true,
			DisabilityVisible: true,
			Status:            StatusActive,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, u.ID)
}

// VisibilityInput toggles which sensitive profile fields the public
// emergency views may show. Nil fields are left unchanged.
type VisibilityInput struct {
	BloodTypeVisible  *bool `json:"blood_type_visible"`
	DisabilityVisible *bool `json:"disability_visible"`
}

// UpdateVisibility lets a patient decide whether blood type and disability
// appear in emergency lookups; hidden fields come back as "Restricted".
func (s *Service) UpdateVisibility(ctx context.Context, patientID uuid.UUID, in VisibilityInput) (*User, error) {
	u, err := s.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if u.Patient == nil {
		return nil, httperr.Forbidden("user is not a patient")
	}
	if in.BloodTypeVisible != nil {
		u.Patient.BloodTypeVisible = *in.BloodTypeVisible
	}
	if in.DisabilityVisible != nil {
		u.Patient.DisabilityVisible = *in.DisabilityVisible
	}
	if err := s.repo.UpdatePatientProfile(ctx, u.Patient); err != nil {
		return nil, err
	}
	return s.Get(ctx, patientID)
}

// SeedAdmin creates the bootstrap ADMIN account. Idempotent on email.
func (s *Service) SeedAdmin(ctx context.Context, name, email, password string) (*User, error) {
	if existing, err := s.repo.GetByEmail(ctx, email); err == nil {
		return existing, nil
	} else if err != pgx.ErrNoRows {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, httperr.Internal("could not hash password", err)
	}
	u := &User{
		BusinessID:   NewBusinessID("AD"),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		Status:       StatusActive,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, role, search string, limit, offset int) ([]*User, int, error) {
	if role != "" && role != auth.RoleAdmin && role != auth.RoleDoctor && role != auth.RolePatient {
		return nil, 0, httperr.BadRequest("invalid role filter")
	}
	return s.repo.List(ctx, role, search, limit, offset)
}

// SetStatus flips a user ACTIVE/INACTIVE. Deactivation also bumps the
// token counter so live sessions end immediately.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*User, error) {
	if status != StatusActive && status != StatusInactive {
		return nil, httperr.BadRequest("status must be ACTIVE or INACTIVE")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	err := s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		if status == StatusInactive {
			if _, err := s.repo.BumpTokenVersion(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// DoctorType reports a doctor's subtype. Clinical record services use it to
// decide who may author what.
func (s *Service) DoctorType(ctx context.Context, userID uuid.UUID) (string, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.Doctor == nil {
		return "", httperr.Forbidden("user is not a doctor")
	}
	return u.Doctor.DoctorType, nil
}
