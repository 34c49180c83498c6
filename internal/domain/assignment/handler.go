package assignment

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
	admin := g.Group("/admin/assignments", auth.RequireRole(auth.RoleAdmin))
	admin.POST("", h.create)
	admin.GET("", h.listAll)
	admin.PUT("/:id/end", h.end)

	doctor := g.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/patients", h.listMine)
}

func (h *Handler) create(c echo.Context) error {
	var req struct {
		DoctorID  uuid.UUID `json:"doctor_id"`
		PatientID uuid.UUID `json:"patient_id"`
		Notes     string    `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	adminID := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Create(c.Request().Context(), adminID, req.DoctorID, req.PatientID, req.Notes)
	if err != nil {
		return err
	}
	h.recorder.Record(auditevent.Entry{
		ActorUserID: &adminID,
		Action:      auditevent.ActionCreate,
		EntityType:  "assignment",
		EntityID:    &a.ID,
		After:       a,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
	return httperr.OK(c, http.StatusCreated, "assignment created", a)
}

func (h *Handler) end(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid assignment id")
	}
	adminID := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.End(c.Request().Context(), id)
	if err != nil {
		return err
	}
	h.recorder.Record(auditevent.Entry{
		ActorUserID: &adminID,
		Action:      auditevent.ActionUpdate,
		EntityType:  "assignment",
		EntityID:    &a.ID,
		After:       a,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
	return httperr.OK(c, http.StatusOK, "assignment ended", a)
}

func (h *Handler) listAll(c echo.Context) error {
	page := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") == "true"
	items, total, err := h.svc.ListAll(c.Request().Context(), activeOnly, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "assignments retrieved", pagination.NewResponse(items, total, page.Limit, page.Offset))
}

func (h *Handler) listMine(c echo.Context) error {
	page := pagination.FromContext(c)
	doctorID := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), doctorID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "assigned patients retrieved", pagination.NewResponse(items, total, page.Limit, page.Offset))
}
