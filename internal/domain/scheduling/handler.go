package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/httperr"
	"github.com/healthnet/healthnet/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(g *echo.Group) {
	doctor := g.Group("/doctor/appointments", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("", h.create)
	doctor.GET("", h.listForDoctor)
	doctor.PUT("/:id/reschedule", h.reschedule)
	doctor.POST("/:id/complete", h.complete)

	patient := g.Group("/patient/appointments", auth.RequireRole(auth.RolePatient))
	patient.GET("", h.listForPatient)
}

func (h *Handler) create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	doctorID := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Create(c.Request().Context(), doctorID, in)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusCreated, "appointment scheduled", a)
}

func (h *Handler) reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid appointment id")
	}
	var req struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	doctorID := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Reschedule(c.Request().Context(), doctorID, id, req.ScheduledAt)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "appointment rescheduled", a)
}

func (h *Handler) complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid appointment id")
	}
	doctorID := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Complete(c.Request().Context(), doctorID, id)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "appointment completed", a)
}

func (h *Handler) listForDoctor(c echo.Context) error {
	page := pagination.FromContext(c)
	doctorID := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.ListByDoctor(c.Request().Context(), doctorID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "appointments retrieved", pagination.NewResponse(items, total, page.Limit, page.Offset))
}

func (h *Handler) listForPatient(c echo.Context) error {
	page := pagination.FromContext(c)
	patientID := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "appointments retrieved", pagination.NewResponse(items, total, page.Limit, page.Offset))
}
