package emergency

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/httperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(g *echo.Group) {
	patient := g.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.GET("/emergency-info", h.getInfo)
	patient.PUT("/emergency-info", h.updateInfo)
	patient.GET("/allergies", h.ownAllergies)
	patient.POST("/allergies", h.addAllergy)

	doctor := g.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/patients/:id/allergies", h.patientAllergies)

	// Public, skipper-exempt.
	g.GET("/qr/emergency-search/:patientId", h.search)
}

func (h *Handler) getInfo(c echo.Context) error {
	info, err := h.svc.GetInfo(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "emergency info retrieved", info)
}

func (h *Handler) updateInfo(c echo.Context) error {
	var in UpdateInfoInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	info, err := h.svc.UpdateInfo(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), in)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "emergency info updated", info)
}

func (h *Handler) addAllergy(c echo.Context) error {
	var in AllergyInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	a, err := h.svc.AddOrUpdateAllergy(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), in)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusCreated, "allergy saved", a)
}

func (h *Handler) ownAllergies(c echo.Context) error {
	ctx := c.Request().Context()
	caller, _ := auth.PrincipalFromContext(ctx)
	items, err := h.svc.ListAllergies(ctx, caller, caller.UserID)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "allergies retrieved", items)
}

func (h *Handler) patientAllergies(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid patient id")
	}
	ctx := c.Request().Context()
	caller, _ := auth.PrincipalFromContext(ctx)
	items, err := h.svc.ListAllergies(ctx, caller, patientID)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "allergies retrieved", items)
}

func (h *Handler) search(c echo.Context) error {
	p, err := h.svc.Search(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "patient found", p)
}
