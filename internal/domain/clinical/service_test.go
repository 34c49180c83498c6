package clinical

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/healthnet/healthnet/internal/domain/assignment"
	"github.com/healthnet/healthnet/internal/domain/identity"
	"github.com/healthnet/healthnet/internal/domain/notification"
	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/blobstore"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

type mockDiagRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Diagnosis
}

func (m *mockDiagRepo) Create(ctx context.Context, d *Diagnosis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDiagRepo) GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDiagRepo) Update(ctx context.Context, d *Diagnosis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDiagRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Diagnosis, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Diagnosis
	for _, d := range m.items {
		if d.PatientID == patientID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockDiagRepo) ListEmergencyVisible(ctx context.Context, patientID uuid.UUID) ([]*Diagnosis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Diagnosis
	for _, d := range m.items {
		if d.PatientID == patientID && d.EmergencyVisible {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockLabRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*LabResult
}

func (m *mockLabRepo) Create(ctx context.Context, l *LabResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	cp := *l
	m.items[l.ID] = &cp
	return nil
}

func (m *mockLabRepo) GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (m *mockLabRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LabResult
	for _, l := range m.items {
		if l.PatientID == patientID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockLabRepo) ListEmergencyVisible(ctx context.Context, patientID uuid.UUID) ([]*LabResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LabResult
	for _, l := range m.items {
		if l.PatientID == patientID && l.EmergencyVisible {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

// mockGate approves exactly the doctor/patient pairs listed in assigned.
type mockGate struct {
	assigned     map[[2]uuid.UUID]bool
	counterparts map[string][]uuid.UUID
}

func (m *mockGate) CheckActive(ctx context.Context, doctorID, patientID uuid.UUID) (*assignment.Assignment, error) {
	if m.assigned[[2]uuid.UUID{doctorID, patientID}] {
		return &assignment.Assignment{DoctorID: doctorID, PatientID: patientID}, nil
	}
	return nil, httperr.Forbidden("you are not assigned to this patient")
}

func (m *mockGate) AssignedCounterparts(ctx context.Context, patientID uuid.UUID, doctorType string) ([]uuid.UUID, error) {
	return m.counterparts[doctorType], nil
}

type mockDoctors struct {
	types map[uuid.UUID]string
}

func (m *mockDoctors) DoctorType(ctx context.Context, userID uuid.UUID) (string, error) {
	t, ok := m.types[userID]
	if !ok {
		return "", httperr.Forbidden("user is not a doctor")
	}
	return t, nil
}

type mockNotifRepo struct {
	mu    sync.Mutex
	items []*notification.Notification
}

func (m *mockNotifRepo) Create(ctx context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, n)
	return nil
}

func (m *mockNotifRepo) GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	return nil, pgx.ErrNoRows
}

func (m *mockNotifRepo) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*notification.Notification, int, error) {
	return nil, 0, nil
}

func (m *mockNotifRepo) MarkRead(ctx context.Context, id uuid.UUID) error        { return nil }
func (m *mockNotifRepo) MarkAllRead(ctx context.Context, id uuid.UUID) error     { return nil }
func (m *mockNotifRepo) UnreadCount(ctx context.Context, id uuid.UUID) (int, error) { return 0, nil }

func (m *mockNotifRepo) recipients() map[uuid.UUID]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]int{}
	for _, n := range m.items {
		out[n.UserID]++
	}
	return out
}

type fixture struct {
	svc       *Service
	diags     *mockDiagRepo
	labs      *mockLabRepo
	gate      *mockGate
	notifRepo *mockNotifRepo

	md      uuid.UUID
	labTech uuid.UUID
	patient uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		diags:     &mockDiagRepo{items: make(map[uuid.UUID]*Diagnosis)},
		labs:      &mockLabRepo{items: make(map[uuid.UUID]*LabResult)},
		notifRepo: &mockNotifRepo{},
		md:        uuid.New(),
		labTech:   uuid.New(),
		patient:   uuid.New(),
	}
	f.gate = &mockGate{
		assigned: map[[2]uuid.UUID]bool{
			{f.md, f.patient}:      true,
			{f.labTech, f.patient}: true,
		},
		counterparts: map[string][]uuid.UUID{
			identity.DoctorTypeMedical: {f.md},
			identity.DoctorTypeLabTech: {f.labTech},
		},
	}
	doctors := &mockDoctors{types: map[uuid.UUID]string{
		f.md:      identity.DoctorTypeMedical,
		f.labTech: identity.DoctorTypeLabTech,
	}}
	notifier := notification.NewNotifier(notification.NewService(f.notifRepo), zerolog.Nop())
	f.svc = NewService(f.diags, f.labs, f.gate, doctors, notifier, blobstore.NewMemoryStore())
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCreateDiagnosisRequiresMedicalDoctor(t *testing.T) {
	f := newFixture()
	in := CreateDiagnosisInput{PatientID: f.patient, Title: "Hypertension"}

	if _, err := f.svc.CreateDiagnosis(context.Background(), f.labTech, in); !httperr.IsKind(err, httperr.KindForbidden) {
		t.Fatalf("lab technician should be forbidden, got %v", err)
	}
	if _, err := f.svc.CreateDiagnosis(context.Background(), f.md, in); err != nil {
		t.Fatalf("medical doctor should succeed: %v", err)
	}
}

func TestCreateDiagnosisRequiresAssignment(t *testing.T) {
	f := newFixture()
	stranger := uuid.New()
	// a medical doctor with no assignment
	f.svc.doctors.(*mockDoctors).types[stranger] = identity.DoctorTypeMedical

	_, err := f.svc.CreateDiagnosis(context.Background(), stranger, CreateDiagnosisInput{PatientID: f.patient, Title: "Flu"})
	if !httperr.IsKind(err, httperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateDiagnosisCompletedAtCreation(t *testing.T) {
	f := newFixture()
	d, err := f.svc.CreateDiagnosis(context.Background(), f.md, CreateDiagnosisInput{
		PatientID: f.patient, Title: "Fracture", Status: DiagnosisCompleted,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Status != DiagnosisCompleted || d.CompletedAt == nil {
		t.Fatal("explicit COMPLETED should stamp completed_at")
	}
}

func TestDiagnosisNotificationsFanOut(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateDiagnosis(context.Background(), f.md, CreateDiagnosisInput{PatientID: f.patient, Title: "Asthma"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// patient + assigned lab technician
	waitFor(t, func() bool {
		got := f.notifRepo.recipients()
		return got[f.patient] == 1 && got[f.labTech] == 1
	})
}

func TestUpdateDiagnosisRules(t *testing.T) {
	f := newFixture()
	d, _ := f.svc.CreateDiagnosis(context.Background(), f.md, CreateDiagnosisInput{PatientID: f.patient, Title: "Asthma"})

	title := "Asthma (mild)"
	if _, err := f.svc.UpdateDiagnosis(context.Background(), uuid.New(), d.ID, UpdateDiagnosisInput{Title: &title}); !httperr.IsKind(err, httperr.KindForbidden) {
		t.Fatalf("non-author should be forbidden, got %v", err)
	}

	updated, err := f.svc.UpdateDiagnosis(context.Background(), f.md, d.ID, UpdateDiagnosisInput{Title: &title})
	if err != nil {
		t.Fatalf("author update while pending: %v", err)
	}
	if updated.Title != title {
		t.Fatalf("title not updated")
	}

	if _, err := f.svc.CompleteDiagnosis(context.Background(), f.md, d.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.UpdateDiagnosis(context.Background(), f.md, d.ID, UpdateDiagnosisInput{Title: &title}); !httperr.IsKind(err, httperr.KindDomainState) {
		t.Fatalf("editing a completed diagnosis should fail with 422, got %v", err)
	}
}

func TestCompleteDiagnosisTwiceFails(t *testing.T) {
	f := newFixture()
	d, _ := f.svc.CreateDiagnosis(context.Background(), f.md, CreateDiagnosisInput{PatientID: f.patient, Title: "Asthma"})

	done, err := f.svc.CompleteDiagnosis(context.Background(), f.md, d.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if _, err := f.svc.CompleteDiagnosis(context.Background(), f.md, d.ID); !httperr.IsKind(err, httperr.KindDomainState) {
		t.Fatalf("expected domain state error, got %v", err)
	}
}

func TestCreateLabResultDerivesAbnormal(t *testing.T) {
	f := newFixture()

	l, err := f.svc.CreateLabResult(context.Background(), f.labTech, CreateLabResultInput{
		PatientID: f.patient, TestName: "CBC", Status: "ABNORMAL",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !l.IsAbnormal {
		t.Fatal("status ABNORMAL should set is_abnormal")
	}

	l2, _ := f.svc.CreateLabResult(context.Background(), f.labTech, CreateLabResultInput{
		PatientID: f.patient, TestName: "CBC", Status: "NORMAL",
	})
	if l2.IsAbnormal {
		t.Fatal("status NORMAL should not set is_abnormal")
	}
}

func TestCreateLabResultRequiresLabTechnician(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateLabResult(context.Background(), f.md, CreateLabResultInput{
		PatientID: f.patient, TestName: "CBC", Status: "NORMAL",
	})
	if !httperr.IsKind(err, httperr.KindForbidden) {
		t.Fatalf("medical doctor should be forbidden, got %v", err)
	}
}

func TestCreateLabResultStoresFile(t *testing.T) {
	f := newFixture()

	l, err := f.svc.CreateLabResult(context.Background(), f.labTech, CreateLabResultInput{
		PatientID: f.patient, TestName: "X-Ray", Status: "NORMAL",
		FileName: "scan.png", FileMime: "image/png",
		File: strings.NewReader("fake png bytes"),
	})
	if err != nil {
		t.Fatalf("create with file: %v", err)
	}
	if l.FilePath == "" || l.FileSize == 0 || l.FileMime != "image/png" {
		t.Fatalf("file metadata not recorded: %+v", l)
	}
}

func TestListDiagnosesReadGate(t *testing.T) {
	f := newFixture()
	f.svc.CreateDiagnosis(context.Background(), f.md, CreateDiagnosisInput{PatientID: f.patient, Title: "Asthma"})

	// patient reading someone else's chart
	other := auth.Principal{UserID: uuid.New(), Role: auth.RolePatient}
	if _, _, err := f.svc.ListDiagnoses(context.Background(), other, f.patient, 20, 0); !httperr.IsKind(err, httperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// patient reading own chart
	self := auth.Principal{UserID: f.patient, Role: auth.RolePatient}
	items, _, err := f.svc.ListDiagnoses(context.Background(), self, f.patient, 20, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("patient should read own chart: %v (%d items)", err, len(items))
	}

	// unassigned doctor
	stranger := auth.Principal{UserID: uuid.New(), Role: auth.RoleDoctor}
	if _, _, err := f.svc.ListDiagnoses(context.Background(), stranger, f.patient, 20, 0); !httperr.IsKind(err, httperr.KindForbidden) {
		t.Fatalf("unassigned doctor should be forbidden, got %v", err)
	}
}
