package qrcode

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthnet/healthnet/internal/domain/clinical"
	"github.com/healthnet/healthnet/internal/domain/emergency"
	"github.com/healthnet/healthnet/internal/domain/identity"
	"github.com/healthnet/healthnet/internal/platform/db"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

type mockRepo struct {
	codes      map[uuid.UUID]*QRCode
	responders []*FirstResponder
}

func newMockRepo() *mockRepo { return &mockRepo{codes: make(map[uuid.UUID]*QRCode)} }

func (m *mockRepo) Create(ctx context.Context, q *QRCode) error {
	q.ID = uuid.New()
	q.CreatedAt = time.Now()
	cp := *q
	m.codes[q.ID] = &cp
	return nil
}

func (m *mockRepo) GetByToken(ctx context.Context, token string) (*QRCode, error) {
	for _, q := range m.codes {
		if q.Token == token {
			cp := *q
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) DeactivateAllForPatient(ctx context.Context, patientID uuid.UUID) error {
	for _, q := range m.codes {
		if q.PatientID == patientID {
			q.IsActive = false
		}
	}
	return nil
}

func (m *mockRepo) RecordScan(ctx context.Context, id uuid.UUID) error {
	if q, ok := m.codes[id]; ok {
		q.ScanCount++
		now := time.Now()
		q.LastUsedAt = &now
	}
	return nil
}

func (m *mockRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*QRCode, error) {
	var out []*QRCode
	for _, q := range m.codes {
		if q.PatientID == patientID {
			cp := *q
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) CreateResponder(ctx context.Context, fr *FirstResponder) error {
	fr.ID = uuid.New()
	fr.ScannedAt = time.Now()
	m.responders = append(m.responders, fr)
	return nil
}

func (m *mockRepo) ListRespondersByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FirstResponder, int, error) {
	var out []*FirstResponder
	for _, fr := range m.responders {
		if fr.PatientID == patientID {
			out = append(out, fr)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) activeCount(patientID uuid.UUID) int {
	n := 0
	for _, q := range m.codes {
		if q.PatientID == patientID && q.IsActive {
			n++
		}
	}
	return n
}

type mockUsers struct {
	users map[uuid.UUID]*identity.User
	reads int
}

func (m *mockUsers) Get(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, httperr.NotFound("user not found")
	}
	m.reads++
	return u, nil
}

type mockEmergency struct {
	reads     int
	info      map[uuid.UUID]*emergency.EmergencyInfo
	allergies map[uuid.UUID][]*emergency.Allergy
}

func (m *mockEmergency) GetInfo(ctx context.Context, patientID uuid.UUID) (*emergency.EmergencyInfo, error) {
	m.reads++
	if i, ok := m.info[patientID]; ok {
		return i, nil
	}
	return &emergency.EmergencyInfo{PatientID: patientID}, nil
}

func (m *mockEmergency) PatientAllergies(ctx context.Context, patientID uuid.UUID) ([]*emergency.Allergy, error) {
	m.reads++
	return m.allergies[patientID], nil
}

type mockChart struct {
	reads     int
	diagnoses map[uuid.UUID][]*clinical.Diagnosis
	labs      map[uuid.UUID][]*clinical.LabResult
}

func (m *mockChart) EmergencyVisibleDiagnoses(ctx context.Context, patientID uuid.UUID) ([]*clinical.Diagnosis, error) {
	m.reads++
	return m.diagnoses[patientID], nil
}

func (m *mockChart) EmergencyVisibleLabResults(ctx context.Context, patientID uuid.UUID) ([]*clinical.LabResult, error) {
	m.reads++
	return m.labs[patientID], nil
}

type fixture struct {
	svc     *Service
	repo    *mockRepo
	users   *mockUsers
	emer    *mockEmergency
	chart   *mockChart
	patient uuid.UUID
	clock   time.Time
}

// dataReads counts every patient-data access across the directories a scan
// can touch. Failed scans must leave it at zero.
func (f *fixture) dataReads() int {
	return f.users.reads + f.emer.reads + f.chart.reads
}

func newFixture() *fixture {
	f := &fixture{
		repo:    newMockRepo(),
		emer:    &mockEmergency{info: map[uuid.UUID]*emergency.EmergencyInfo{}, allergies: map[uuid.UUID][]*emergency.Allergy{}},
		chart:   &mockChart{diagnoses: map[uuid.UUID][]*clinical.Diagnosis{}, labs: map[uuid.UUID][]*clinical.LabResult{}},
		patient: uuid.New(),
		clock:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.users = &mockUsers{users: map[uuid.UUID]*identity.User{
		f.patient: {
			ID: f.patient, BusinessID: "PT-K7M2Q9X4C1", Name: "Pat Doe", Status: identity.StatusActive,
			Patient: &identity.PatientProfile{
				UserID: f.patient, BloodType: "O+", Disability: "None",
				BloodTypeVisible: true, DisabilityVisible: true,
			},
		},
	}}
	f.svc = NewService(f.repo, f.users, f.emer, f.chart, db.Passthrough, "https://api.healthnet.example")
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func TestGenerateKeepsSingleActiveCode(t *testing.T) {
	f := newFixture()

	first, err := f.svc.Generate(context.Background(), f.patient)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := f.svc.Generate(context.Background(), f.patient)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}

	if f.repo.activeCount(f.patient) != 1 {
		t.Fatalf("expected 1 active code, got %d", f.repo.activeCount(f.patient))
	}
	if f.repo.codes[first.QRCode.ID].IsActive {
		t.Fatal("first code should be deactivated")
	}
	if !f.repo.codes[second.QRCode.ID].IsActive {
		t.Fatal("second code should be active")
	}
}

func TestGenerateTokenAndPayloadShape(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Generate(context.Background(), f.patient)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(res.QRCode.Token) {
		t.Fatalf("token should be 64 hex chars, got %q", res.QRCode.Token)
	}
	wantExpiry := f.clock.Add(TokenTTL)
	if !res.QRCode.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry %v, want %v", res.QRCode.ExpiresAt, wantExpiry)
	}
	if res.URL != "https://api.healthnet.example/api/qr/v/"+res.QRCode.Token {
		t.Fatalf("unexpected url %q", res.URL)
	}
	if len(res.Image) == 0 || res.Image[:22] != "data:image/png;base64," {
		t.Fatal("image should be a base64 png data uri")
	}
}

func TestGenerateUnknownPatient(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Generate(context.Background(), uuid.New()); !httperr.IsKind(err, httperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestScanUnknownToken(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Scan(context.Background(), "deadbeef", nil, "1.2.3.4", "ua")
	if !httperr.IsKind(err, httperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.dataReads() != 0 {
		t.Fatal("no patient data should be touched for an unknown token")
	}
}

func TestScanDeactivatedToken(t *testing.T) {
	f := newFixture()
	old, _ := f.svc.Generate(context.Background(), f.patient)
	f.svc.Generate(context.Background(), f.patient)
	f.users.reads = 0 // Generate resolves the patient; scans must not.

	_, err := f.svc.Scan(context.Background(), old.QRCode.Token, nil, "1.2.3.4", "ua")
	if !httperr.IsKind(err, httperr.KindDomainState) {
		t.Fatalf("expected domain state error, got %v", err)
	}
	if f.dataReads() != 0 {
		t.Fatal("no patient data should be touched for a deactivated token")
	}
	if len(f.repo.responders) != 0 {
		t.Fatal("failed scans must not be recorded")
	}
}

func TestScanExpiredToken(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.Generate(context.Background(), f.patient)
	f.users.reads = 0

	f.clock = f.clock.Add(TokenTTL + time.Hour)
	_, err := f.svc.Scan(context.Background(), res.QRCode.Token, nil, "1.2.3.4", "ua")
	if !httperr.IsKind(err, httperr.KindDomainState) {
		t.Fatalf("expected domain state error, got %v", err)
	}
	if f.dataReads() != 0 {
		t.Fatal("no patient data should be touched for an expired token")
	}
}

func TestScanRecordsResponderAndCount(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.Generate(context.Background(), f.patient)

	scanner := uuid.New()
	out, err := f.svc.Scan(context.Background(), res.QRCode.Token, &scanner, "1.2.3.4", "ambulance-app")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if out.ScanCount != 1 {
		t.Fatalf("scan count %d", out.ScanCount)
	}
	if out.Patient.BusinessID != "PT-K7M2Q9X4C1" {
		t.Fatalf("unexpected patient %q", out.Patient.BusinessID)
	}
	if len(f.repo.responders) != 1 {
		t.Fatalf("expected 1 responder row, got %d", len(f.repo.responders))
	}
	fr := f.repo.responders[0]
	if fr.ScannerUserID == nil || *fr.ScannerUserID != scanner {
		t.Fatal("scanner not recorded")
	}
	if fr.IPAddress != "1.2.3.4" || fr.UserAgent != "ambulance-app" {
		t.Fatal("request metadata not recorded")
	}

	// anonymous scan
	out2, err := f.svc.Scan(context.Background(), res.QRCode.Token, nil, "5.6.7.8", "browser")
	if err != nil {
		t.Fatalf("anonymous scan: %v", err)
	}
	if out2.ScanCount != 2 {
		t.Fatalf("scan count %d", out2.ScanCount)
	}
	if f.repo.responders[1].ScannerUserID != nil {
		t.Fatal("anonymous scan should leave scanner nil")
	}
}

func TestScanViewHonorsVisibilityFlags(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.Generate(context.Background(), f.patient)

	f.users.users[f.patient].Patient.BloodTypeVisible = false
	out, err := f.svc.Scan(context.Background(), res.QRCode.Token, nil, "", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if out.Patient.BloodType != "Restricted" {
		t.Fatalf("hidden blood type should read Restricted, got %q", out.Patient.BloodType)
	}
	if out.Patient.Disability != "None" {
		t.Fatalf("visible disability should pass through, got %q", out.Patient.Disability)
	}

	f.users.users[f.patient].Patient.BloodTypeVisible = true
	out, err = f.svc.Scan(context.Background(), res.QRCode.Token, nil, "", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if out.Patient.BloodType != "O+" {
		t.Fatalf("re-shown blood type should pass through, got %q", out.Patient.BloodType)
	}
}

func TestScanViewCarriesEmergencyData(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.Generate(context.Background(), f.patient)

	f.emer.info[f.patient] = &emergency.EmergencyInfo{PatientID: f.patient, KnownAllergies: "Peanut"}
	f.emer.allergies[f.patient] = []*emergency.Allergy{{PatientID: f.patient, Name: "Peanut", Severity: emergency.SeveritySevere}}
	f.chart.diagnoses[f.patient] = []*clinical.Diagnosis{{PatientID: f.patient, Title: "Asthma", Status: clinical.DiagnosisCompleted}}
	f.chart.labs[f.patient] = []*clinical.LabResult{{PatientID: f.patient, TestName: "CBC", Status: "NORMAL"}}

	out, err := f.svc.Scan(context.Background(), res.QRCode.Token, nil, "", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if out.Patient.Info == nil || out.Patient.Info.KnownAllergies != "Peanut" {
		t.Fatal("emergency info missing from scan view")
	}
	if len(out.Patient.Allergies) != 1 || out.Patient.Allergies[0].Name != "Peanut" {
		t.Fatal("allergies missing from scan view")
	}
	if len(out.Patient.Diagnoses) != 1 || out.Patient.Diagnoses[0].Title != "Asthma" {
		t.Fatal("diagnoses missing from scan view")
	}
	if len(out.Patient.LabResults) != 1 || out.Patient.LabResults[0].Title != "CBC" {
		t.Fatal("lab results missing from scan view")
	}
}

func TestScanRespectsMaxScans(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.Generate(context.Background(), f.patient)
	f.repo.codes[res.QRCode.ID].MaxScans = 1

	if _, err := f.svc.Scan(context.Background(), res.QRCode.Token, nil, "", ""); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if _, err := f.svc.Scan(context.Background(), res.QRCode.Token, nil, "", ""); !httperr.IsKind(err, httperr.KindDomainState) {
		t.Fatalf("expected scan limit error, got %v", err)
	}
}

func TestResolveReturnsBusinessID(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.Generate(context.Background(), f.patient)

	businessID, err := f.svc.Resolve(context.Background(), res.QRCode.Token, "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if businessID != "PT-K7M2Q9X4C1" {
		t.Fatalf("unexpected business id %q", businessID)
	}
}
