package clinical

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthnet/healthnet/internal/domain/auditevent"
	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/httperr"
	"github.com/healthnet/healthnet/pkg/pagination"
)

type Handler struct {
	svc      *Service
	recorder *auditevent.Recorder
}

func NewHandler(svc *Service, recorder *auditevent.Recorder) *Handler {
	return &Handler{svc: svc, recorder: recorder}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	doctor := g.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/diagnoses", h.createDiagnosis)
	doctor.PUT("/diagnoses/:id", h.updateDiagnosis)
	doctor.POST("/diagnoses/:id/complete", h.completeDiagnosis)
	doctor.POST("/lab-results", h.createLabResult)
	doctor.GET("/patients/:id/records", h.patientRecords)

	patient := g.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.GET("/records", h.ownRecords)
}

func (h *Handler) record(c echo.Context, action, entityType string, entityID uuid.UUID, after interface{}) {
	actor := auth.UserIDFromContext(c.Request().Context())
	h.recorder.Record(auditevent.Entry{
		ActorUserID: &actor,
		Action:      action,
		EntityType:  entityType,
		EntityID:    &entityID,
		After:       after,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
}

func (h *Handler) createDiagnosis(c echo.Context) error {
	var in CreateDiagnosisInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	doctorID := auth.UserIDFromContext(c.Request().Context())
	d, err := h.svc.CreateDiagnosis(c.Request().Context(), doctorID, in)
	if err != nil {
		return err
	}
	h.record(c, auditevent.ActionCreate, "diagnosis", d.ID, d)
	return httperr.OK(c, http.StatusCreated, "diagnosis created", d)
}

func (h *Handler) updateDiagnosis(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid diagnosis id")
	}
	var in UpdateDiagnosisInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	doctorID := auth.UserIDFromContext(c.Request().Context())
	d, err := h.svc.UpdateDiagnosis(c.Request().Context(), doctorID, id, in)
	if err != nil {
		return err
	}
	h.record(c, auditevent.ActionUpdate, "diagnosis", d.ID, d)
	return httperr.OK(c, http.StatusOK, "diagnosis updated", d)
}

func (h *Handler) completeDiagnosis(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid diagnosis id")
	}
	doctorID := auth.UserIDFromContext(c.Request().Context())
	d, err := h.svc.CompleteDiagnosis(c.Request().Context(), doctorID, id)
	if err != nil {
		return err
	}
	h.record(c, auditevent.ActionUpdate, "diagnosis", d.ID, d)
	return httperr.OK(c, http.StatusOK, "diagnosis completed", d)
}

// createLabResult accepts multipart form data so a report file can ride
// along with the metadata.
func (h *Handler) createLabResult(c echo.Context) error {
	patientID, err := uuid.Parse(c.FormValue("patient_id"))
	if err != nil {
		return httperr.BadRequest("invalid patient_id")
	}
	in := CreateLabResultInput{
		PatientID:        patientID,
		TestName:         c.FormValue("test_name"),
		Status:           c.FormValue("status"),
		Notes:            c.FormValue("notes"),
		EmergencyVisible: c.FormValue("emergency_visible") == "true",
	}

	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return httperr.BadRequest("could not read uploaded file")
		}
		defer f.Close()
		in.File = f
		in.FileName = fh.Filename
		in.FileMime = fh.Header.Get("Content-Type")
	}

	technicianID := auth.UserIDFromContext(c.Request().Context())
	l, err := h.svc.CreateLabResult(c.Request().Context(), technicianID, in)
	if err != nil {
		return err
	}
	h.record(c, auditevent.ActionCreate, "lab_result", l.ID, l)
	return httperr.OK(c, http.StatusCreated, "lab result created", l)
}

// recordsPayload bundles a patient's chart for the read endpoints.
type recordsPayload struct {
	Diagnoses  *pagination.Response `json:"diagnoses"`
	LabResults *pagination.Response `json:"lab_results"`
}

func (h *Handler) patientRecords(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid patient id")
	}
	return h.records(c, patientID)
}

func (h *Handler) ownRecords(c echo.Context) error {
	return h.records(c, auth.UserIDFromContext(c.Request().Context()))
}

func (h *Handler) records(c echo.Context, patientID uuid.UUID) error {
	ctx := c.Request().Context()
	caller, _ := auth.PrincipalFromContext(ctx)
	page := pagination.FromContext(c)

	diags, dTotal, err := h.svc.ListDiagnoses(ctx, caller, patientID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	labs, lTotal, err := h.svc.ListLabResults(ctx, caller, patientID, page.Limit, page.Offset)
	if err != nil {
		return err
	}

	h.record(c, auditevent.ActionRead, "patient_records", patientID, map[string]int{
		"diagnoses": dTotal, "lab_results": lTotal,
	})
	return httperr.OK(c, http.StatusOK, "records retrieved", recordsPayload{
		Diagnoses:  pagination.NewResponse(diags, dTotal, page.Limit, page.Offset),
		LabResults: pagination.NewResponse(labs, lTotal, page.Limit, page.Offset),
	})
}
