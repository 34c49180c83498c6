package identity

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

// RegisterRoutes mounts the self-service auth endpoints and the admin user
// management surface. /auth/login is public (skipper-exempt in main).
func (h *Handler) RegisterRoutes(g *echo.Group) {
	a := g.Group("/auth")
	a.POST("/login", h.login)
	a.POST("/logout", h.logout)
	a.GET("/me", h.me)
	a.PUT("/me", h.updateProfile)
	a.PUT("/password", h.changePassword)

	p := g.Group("/patient", auth.RequireRole(auth.RolePatient))
	p.PUT("/visibility", h.updateVisibility)

	admin := g.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/doctors", h.createDoctor)
	admin.GET("/doctors", h.listRole(auth.RoleDoctor))
	admin.POST("/patients", h.createPatient)
	admin.GET("/patients", h.listRole(auth.RolePatient))
	admin.GET("/users/:id", h.getUser)
	admin.PUT("/users/:id/status", h.setStatus)
}

func (h *Handler) record(c echo.Context, action, entityType string, entityID uuid.UUID, before, after interface{}) {
	actor := auth.UserIDFromContext(c.Request().Context())
	entry := auditevent.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		Before:     before,
		After:      after,
		IPAddress:  c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	}
	if actor != uuid.Nil {
		entry.ActorUserID = &actor
	}
	h.recorder.Record(entry)
}

func (h *Handler) login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.recorder.Record(auditevent.Entry{
		ActorUserID: &res.User.ID,
		Action:      auditevent.ActionLogin,
		EntityType:  "user",
		EntityID:    &res.User.ID,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
	return httperr.OK(c, http.StatusOK, "login successful", res)
}

func (h *Handler) logout(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.Logout(c.Request().Context(), userID); err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "logged out", nil)
}

func (h *Handler) me(c echo.Context) error {
	u, err := h.svc.Get(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "profile retrieved", u)
}

func (h *Handler) updateProfile(c echo.Context) error {
	var in UpdateProfileInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()), in)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "profile updated", u)
}

func (h *Handler) changePassword(c echo.Context) error {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	userID := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.ChangePassword(c.Request().Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "password changed; please log in again", nil)
}

func (h *Handler) updateVisibility(c echo.Context) error {
	var in VisibilityInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	patientID := auth.UserIDFromContext(c.Request().Context())
	before, err := h.svc.Get(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	u, err := h.svc.UpdateVisibility(c.Request().Context(), patientID, in)
	if err != nil {
		return err
	}
	h.record(c, auditevent.ActionUpdate, "patient_profile", patientID,
		visibilityFlags(before), visibilityFlags(u))
	return httperr.OK(c, http.StatusOK, "visibility updated", u)
}

func visibilityFlags(u *User) map[string]bool {
	if u.Patient == nil {
		return nil
	}
	return map[string]bool{
		"blood_type_visible": u.Patient.BloodTypeVisible,
		"disability_visible": u.Patient.DisabilityVisible,
	}
}

func (h *Handler) createDoctor(c echo.Context) error {
	var in CreateDoctorInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	u, err := h.svc.CreateDoctor(c.Request().Context(), in)
	if err != nil {
		return err
	}
	h.record(c, auditevent.ActionCreate, "user", u.ID, nil, u)
	return httperr.OK(c, http.StatusCreated, "doctor created", u)
}

func (h *Handler) createPatient(c echo.Context) error {
	var in CreatePatientInput
	if err := c.Bind(&in); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	u, err := h.svc.CreatePatient(c.Request().Context(), in)
	if err != nil {
		return err
	}
	h.record(c, auditevent.ActionCreate, "user", u.ID, nil, u)
	return httperr.OK(c, http.StatusCreated, "patient created", u)
}

func (h *Handler) listRole(role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		page := pagination.FromContext(c)
		users, total, err := h.svc.List(c.Request().Context(), role, c.QueryParam("search"), page.Limit, page.Offset)
		if err != nil {
			return err
		}
		return httperr.OK(c, http.StatusOK, "users retrieved", pagination.NewResponse(users, total, page.Limit, page.Offset))
	}
}

func (h *Handler) getUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid user id")
	}
	u, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "user retrieved", u)
}

func (h *Handler) setStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid user id")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return httperr.BadRequest("invalid request body")
	}
	before, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	u, err := h.svc.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	h.record(c, auditevent.ActionUpdate, "user", id, map[string]string{"status": before.Status}, map[string]string{"status": u.Status})
	return httperr.OK(c, http.StatusOK, "status updated", u)
}
