package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/db"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

type mockRepo struct {
	users    map[uuid.UUID]*User
	doctors  map[uuid.UUID]*DoctorProfile
	patients map[uuid.UUID]*PatientProfile
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:    make(map[uuid.UUID]*User),
		doctors:  make(map[uuid.UUID]*DoctorProfile),
		patients: make(map[uuid.UUID]*PatientProfile),
	}
}

func (m *mockRepo) CreateUser(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) CreateDoctorProfile(ctx context.Context, p *DoctorProfile) error {
	cp := *p
	m.doctors[p.UserID] = &cp
	return nil
}

func (m *mockRepo) CreatePatientProfile(ctx context.Context, p *PatientProfile) error {
	cp := *p
	m.patients[p.UserID] = &cp
	return nil
}

func (m *mockRepo) attach(u *User) *User {
	cp := *u
	if d, ok := m.doctors[u.ID]; ok {
		dc := *d
		cp.Doctor = &dc
	}
	if p, ok := m.patients[u.ID]; ok {
		pc := *p
		cp.Patient = &pc
	}
	return &cp
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m.attach(u), nil
}

func (m *mockRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return m.attach(u), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) GetByBusinessID(ctx context.Context, businessID string) (*User, error) {
	for _, u := range m.users {
		if u.BusinessID == businessID {
			return m.attach(u), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) List(ctx context.Context, role, search string, limit, offset int) ([]*User, int, error) {
	var out []*User
	for _, u := range m.users {
		if role != "" && u.Role != role {
			continue
		}
		out = append(out, m.attach(u))
	}
	return out, len(out), nil
}

func (m *mockRepo) UpdateUser(ctx context.Context, u *User) error {
	stored, ok := m.users[u.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Name, stored.Phone, stored.Gender, stored.DateOfBirth = u.Name, u.Phone, u.Gender, u.DateOfBirth
	return nil
}

func (m *mockRepo) UpdatePatientProfile(ctx context.Context, p *PatientProfile) error {
	cp := *p
	m.patients[p.UserID] = &cp
	return nil
}

func (m *mockRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	m.users[id].PasswordHash = hash
	return nil
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	m.users[id].Status = status
	return nil
}

func (m *mockRepo) BumpTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	u, ok := m.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	u.TokenVersion++
	return u.TokenVersion, nil
}

func (m *mockRepo) TokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	u, ok := m.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return u.TokenVersion, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	return NewService(repo, issuer, db.Passthrough), repo
}

func seedUser(t *testing.T, repo *mockRepo, role, password, status string) *User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &User{
		BusinessID:   NewBusinessID("PT"),
		Name:         "Test User",
		Email:        "user@example.com",
		PasswordHash: hash,
		Role:         role,
		Status:       status,
	}
	repo.CreateUser(context.Background(), u)
	return u
}

func TestLoginIssuesTokenWithBumpedVersion(t *testing.T) {
	svc, repo := newTestService()
	u := seedUser(t, repo, auth.RolePatient, "secret123", StatusActive)

	res, err := svc.Login(context.Background(), "user@example.com", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.User.TokenVersion != 1 {
		t.Fatalf("expected token_version 1, got %d", res.User.TokenVersion)
	}

	claims, err := auth.NewTokenIssuer("test-secret", time.Hour).Parse(res.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Version != 1 {
		t.Fatalf("expected claim version 1, got %d", claims.Version)
	}
	if claims.Subject != u.ID.String() {
		t.Fatalf("subject mismatch")
	}
}

func TestLoginInvalidatesEarlierSessions(t *testing.T) {
	svc, repo := newTestService()
	u := seedUser(t, repo, auth.RolePatient, "secret123", StatusActive)

	first, _ := svc.Login(context.Background(), u.Email, "secret123")
	svc.Login(context.Background(), u.Email, "secret123")

	claims, _ := auth.NewTokenIssuer("test-secret", time.Hour).Parse(first.Token)
	current, _ := svc.TokenVersion(context.Background(), u.ID)
	if claims.Version == current {
		t.Fatal("first token should be stale after second login")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, repo := newTestService()
	seedUser(t, repo, auth.RolePatient, "secret123", StatusActive)

	if _, err := svc.Login(context.Background(), "user@example.com", "wrong"); !httperr.IsKind(err, httperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody@example.com", "secret123"); !httperr.IsKind(err, httperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized for unknown email, got %v", err)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc, repo := newTestService()
	seedUser(t, repo, auth.RolePatient, "secret123", StatusInactive)

	if _, err := svc.Login(context.Background(), "user@example.com", "secret123"); !httperr.IsKind(err, httperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo := newTestService()
	u := seedUser(t, repo, auth.RolePatient, "secret123", StatusActive)

	if err := svc.ChangePassword(context.Background(), u.ID, "wrong", "newsecret123"); !httperr.IsKind(err, httperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized for wrong old password, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), u.ID, "secret123", "short"); !httperr.IsKind(err, httperr.KindBadRequest) {
		t.Fatalf("expected bad request for short password, got %v", err)
	}

	versionBefore := repo.users[u.ID].TokenVersion
	if err := svc.ChangePassword(context.Background(), u.ID, "secret123", "newsecret123"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if repo.users[u.ID].TokenVersion != versionBefore+1 {
		t.Fatal("expected token_version bump after password change")
	}
	if !auth.VerifyPassword(repo.users[u.ID].PasswordHash, "newsecret123") {
		t.Fatal("new password not stored")
	}
}

func TestCreateDoctor(t *testing.T) {
	svc, repo := newTestService()

	in := CreateDoctorInput{
		Name: "Dr. Amara", Email: "Amara@Example.com", Password: "secret123",
		LicenseNumber: "MD-9921", DoctorType: DoctorTypeMedical, Facility: "Central",
	}
	u, err := svc.CreateDoctor(context.Background(), in)
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	if !strings.HasPrefix(u.BusinessID, "DR-") || len(u.BusinessID) != 13 {
		t.Fatalf("bad business id %q", u.BusinessID)
	}
	if u.Email != "amara@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if u.Doctor == nil || u.Doctor.DoctorType != DoctorTypeMedical {
		t.Fatal("doctor profile missing")
	}
	if _, ok := repo.doctors[u.ID]; !ok {
		t.Fatal("profile row not created")
	}

	in.DoctorType = "SURGEON"
	if _, err := svc.CreateDoctor(context.Background(), in); !httperr.IsKind(err, httperr.KindBadRequest) {
		t.Fatalf("expected bad request for unknown doctor_type, got %v", err)
	}
}

func TestCreatePatientDefaultsVisibility(t *testing.T) {
	svc, _ := newTestService()

	u, err := svc.CreatePatient(context.Background(), CreatePatientInput{
		Name: "Pat", Email: "pat@example.com", Password: "secret123", BloodType: "O+",
	})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	if !strings.HasPrefix(u.BusinessID, "PT-") {
		t.Fatalf("bad business id %q", u.BusinessID)
	}
	if u.Patient == nil || !u.Patient.BloodTypeVisible || !u.Patient.DisabilityVisible {
		t.Fatal("visibility flags should default to true")
	}
}

func TestUpdateVisibility(t *testing.T) {
	svc, repo := newTestService()

	u, err := svc.CreatePatient(context.Background(), CreatePatientInput{
		Name: "Pat", Email: "pat@example.com", Password: "secret123", BloodType: "O+",
	})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}

	hide := false
	updated, err := svc.UpdateVisibility(context.Background(), u.ID, VisibilityInput{BloodTypeVisible: &hide})
	if err != nil {
		t.Fatalf("update visibility: %v", err)
	}
	if updated.Patient.BloodTypeVisible {
		t.Fatal("blood_type_visible should be off")
	}
	if !updated.Patient.DisabilityVisible {
		t.Fatal("untouched flag should stay on")
	}
	if repo.patients[u.ID].BloodTypeVisible {
		t.Fatal("flag not persisted")
	}

	show := true
	updated, err = svc.UpdateVisibility(context.Background(), u.ID, VisibilityInput{BloodTypeVisible: &show})
	if err != nil {
		t.Fatalf("update visibility: %v", err)
	}
	if !updated.Patient.BloodTypeVisible {
		t.Fatal("flag should flip back on")
	}
}

func TestUpdateVisibilityRequiresPatientProfile(t *testing.T) {
	svc, repo := newTestService()
	u := seedUser(t, repo, auth.RoleDoctor, "secret123", StatusActive)

	hide := false
	if _, err := svc.UpdateVisibility(context.Background(), u.ID, VisibilityInput{BloodTypeVisible: &hide}); !httperr.IsKind(err, httperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSetStatusInactiveEndsSessions(t *testing.T) {
	svc, repo := newTestService()
	u := seedUser(t, repo, auth.RoleDoctor, "secret123", StatusActive)

	if _, err := svc.SetStatus(context.Background(), u.ID, "SUSPENDED"); !httperr.IsKind(err, httperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}

	updated, err := svc.SetStatus(context.Background(), u.ID, StatusInactive)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Status != StatusInactive {
		t.Fatalf("status not updated")
	}
	if repo.users[u.ID].TokenVersion == 0 {
		t.Fatal("expected token_version bump on deactivation")
	}
}

func TestNewBusinessIDShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewBusinessID("PT")
		if !strings.HasPrefix(id, "PT-") || len(id) != 13 {
			t.Fatalf("bad id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
