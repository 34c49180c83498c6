package qrcode

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	qr "github.com/skip2/go-qrcode"

	"github.com/healthnet/healthnet/internal/domain/clinical"
	"github.com/healthnet/healthnet/internal/domain/emergency"
	"github.com/healthnet/healthnet/internal/domain/identity"
	"github.com/healthnet/healthnet/internal/platform/db"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

// PatientDirectory resolves patients. Satisfied by *identity.Service.
type PatientDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// EmergencyReader supplies the patient-maintained emergency data.
// Satisfied by *emergency.Service.
type EmergencyReader interface {
	GetInfo(ctx context.Context, patientID uuid.UUID) (*emergency.EmergencyInfo, error)
	PatientAllergies(ctx context.Context, patientID uuid.UUID) ([]*emergency.Allergy, error)
}

// ChartReader supplies the emergency-visible chart slices. Satisfied by
// *clinical.Service.
type ChartReader interface {
	EmergencyVisibleDiagnoses(ctx context.Context, patientID uuid.UUID) ([]*clinical.Diagnosis, error)
	EmergencyVisibleLabResults(ctx context.Context, patientID uuid.UUID) ([]*clinical.LabResult, error)
}

type Service struct {
	repo    Repository
	users   PatientDirectory
	info    EmergencyReader
	chart   ChartReader
	tx      db.TxRunner
	baseURL string
	now     func() time.Time
}

func NewService(repo Repository, users PatientDirectory, info EmergencyReader, chart ChartReader, tx db.TxRunner, baseURL string) *Service {
	return &Service{repo: repo, users: users, info: info, chart: chart, tx: tx, baseURL: baseURL, now: time.Now}
}

// GenerateResult is the payload returned to the patient: the token, its
// scannable URL and a base64 PNG ready for an <img> tag.
type GenerateResult struct {
	QRCode *QRCode `json:"qr_code"`
	URL    string  `json:"url"`
	Image  string  `json:"image"`
}

// Generate mints a fresh token. Deactivating the old tokens and inserting
// the new one happen in one transaction so the one-active-token invariant
// holds even under concurrent regeneration.
func (s *Service) Generate(ctx context.Context, patientID uuid.UUID) (*GenerateResult, error) {
	if _, err := s.users.Get(ctx, patientID); err != nil {
		return nil, err
	}

	q := &QRCode{
		PatientID: patientID,
		Token:     NewToken(),
		ExpiresAt: s.now().Add(TokenTTL),
		IsActive:  true,
	}
	err := s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.DeactivateAllForPatient(ctx, patientID); err != nil {
			return err
		}
		return s.repo.Create(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/qr/v/%s", s.baseURL, q.Token)
	png, err := qr.Encode(url, qr.Medium, 256)
	if err != nil {
		return nil, httperr.Internal("could not render qr code", err)
	}
	return &GenerateResult{
		QRCode: q,
		URL:    url,
		Image:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// restricted replaces fields the patient has chosen to hide from scans.
const restricted = "Restricted"

// RecordEntry is one line of chart history shown to a responder.
type RecordEntry struct {
	Title  string    `json:"title"`
	Status string    `json:"status"`
	Date   time.Time `json:"date"`
}

// PatientView is the responder-facing projection a scan unlocks. Its field
// selection lives in this package on purpose: the public emergency search
// builds its own response, and widening one view must never widen the
// other as a side effect.
type PatientView struct {
	BusinessID  string                   `json:"business_id"`
	Name        string                   `json:"name"`
	Gender      string                   `json:"gender"`
	DateOfBirth *time.Time               `json:"date_of_birth,omitempty"`
	BloodType   string                   `json:"blood_type"`
	Disability  string                   `json:"disability"`
	Info        *emergency.EmergencyInfo `json:"emergency_info,omitempty"`
	Allergies   []*emergency.Allergy     `json:"allergies,omitempty"`
	Diagnoses   []RecordEntry            `json:"diagnoses,omitempty"`
	LabResults  []RecordEntry            `json:"lab_results,omitempty"`
}

// ScanResult pairs the responder view with the code that unlocked it.
type ScanResult struct {
	Patient   *PatientView `json:"patient"`
	ScanCount int          `json:"scan_count"`
}

// Scan validates the token and returns the responder view. The token
// checks run strictly before any patient data is read: unknown, then
// deactivated, then expired, then over the scan cap.
func (s *Service) Scan(ctx context.Context, token string, scannerUserID *uuid.UUID, ip, userAgent string) (*ScanResult, error) {
	q, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, httperr.NotFound("qr code not found")
		}
		return nil, err
	}
	if !q.IsActive {
		return nil, httperr.DomainState("qr code has been deactivated")
	}
	if q.Expired(s.now()) {
		return nil, httperr.DomainState("qr code has expired")
	}
	if q.MaxScans > 0 && q.ScanCount >= q.MaxScans {
		return nil, httperr.DomainState("qr code scan limit reached")
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateResponder(ctx, &FirstResponder{
			QRCodeID:      q.ID,
			PatientID:     q.PatientID,
			ScannerUserID: scannerUserID,
			IPAddress:     ip,
			UserAgent:     userAgent,
		}); err != nil {
			return err
		}
		return s.repo.RecordScan(ctx, q.ID)
	})
	if err != nil {
		return nil, err
	}

	view, err := s.buildView(ctx, q.PatientID)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Patient: view, ScanCount: q.ScanCount + 1}, nil
}

func (s *Service) buildView(ctx context.Context, patientID uuid.UUID) (*PatientView, error) {
	u, err := s.users.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	v := &PatientView{
		BusinessID:  u.BusinessID,
		Name:        u.Name,
		Gender:      u.Gender,
		DateOfBirth: u.DateOfBirth,
		BloodType:   restricted,
		Disability:  restricted,
	}
	if u.Patient != nil {
		if u.Patient.BloodTypeVisible {
			v.BloodType = u.Patient.BloodType
		}
		if u.Patient.DisabilityVisible {
			v.Disability = u.Patient.Disability
		}
	}

	if info, err := s.info.GetInfo(ctx, patientID); err == nil {
		v.Info = info
	}
	if allergies, err := s.info.PatientAllergies(ctx, patientID); err == nil {
		v.Allergies = allergies
	}

	diags, err := s.chart.EmergencyVisibleDiagnoses(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for _, d := range diags {
		v.Diagnoses = append(v.Diagnoses, RecordEntry{Title: d.Title, Status: d.Status, Date: d.CreatedAt})
	}

	labs, err := s.chart.EmergencyVisibleLabResults(ctx, patientID)
	if err != nil {
		return nil, err
	}
	for _, l := range labs {
		v.LabResults = append(v.LabResults, RecordEntry{Title: l.TestName, Status: l.Status, Date: l.CreatedAt})
	}
	return v, nil
}

// Resolve runs the scan checks and returns the patient's business id for
// the public redirect.
func (s *Service) Resolve(ctx context.Context, token, ip, userAgent string) (string, error) {
	res, err := s.Scan(ctx, token, nil, ip, userAgent)
	if err != nil {
		return "", err
	}
	return res.Patient.BusinessID, nil
}

func (s *Service) MyCodes(ctx context.Context, patientID uuid.UUID) ([]*QRCode, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) ScanHistory(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FirstResponder, int, error) {
	return s.repo.ListRespondersByPatient(ctx, patientID, limit, offset)
}
