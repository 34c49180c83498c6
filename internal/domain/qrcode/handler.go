package qrcode

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthnet/healthnet/internal/domain/auditevent"
	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/httperr"
	"github.com/healthnet/healthnet/pkg/pagination"
)

type Handler struct {
	svc         *Service
	recorder    *auditevent.Recorder
	frontendURL string
}

func NewHandler(svc *Service, recorder *auditevent.Recorder, frontendURL string) *Handler {
	return &Handler{svc: svc, recorder: recorder, frontendURL: frontendURL}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	q := g.Group("/qr")

	patient := q.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/generate", h.generate)
	patient.GET("/my-codes", h.myCodes)
	patient.GET("/scan-history", h.scanHistory)

	// Public, skipper-exempt.
	q.GET("/scan/:token", h.scan)
	q.GET("/v/:token", h.redirect)
}

func (h *Handler) generate(c echo.Context) error {
	patientID := auth.UserIDFromContext(c.Request().Context())
	res, err := h.svc.Generate(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	h.recorder.Record(auditevent.Entry{
		ActorUserID: &patientID,
		Action:      auditevent.ActionCreate,
		EntityType:  "qr_code",
		EntityID:    &res.QRCode.ID,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
	return httperr.OK(c, http.StatusCreated, "qr code generated", res)
}

func (h *Handler) scan(c echo.Context) error {
	ctx := c.Request().Context()
	var scanner *uuid.UUID
	if id := auth.UserIDFromContext(ctx); id != uuid.Nil {
		scanner = &id
	}

	res, err := h.svc.Scan(ctx, c.Param("token"), scanner, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return err
	}
	h.recorder.Record(auditevent.Entry{
		ActorUserID: scanner,
		Action:      auditevent.ActionScan,
		EntityType:  "qr_code",
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
	return httperr.OK(c, http.StatusOK, "scan successful", res)
}

// redirect serves the URL embedded in the QR image: validate the token,
// then bounce to the frontend emergency page. Failures render the error
// envelope, never a redirect.
func (h *Handler) redirect(c echo.Context) error {
	businessID, err := h.svc.Resolve(c.Request().Context(), c.Param("token"), c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return err
	}
	h.recorder.Record(auditevent.Entry{
		Action:     auditevent.ActionScan,
		EntityType: "qr_code",
		IPAddress:  c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	return c.Redirect(http.StatusFound, fmt.Sprintf("%s/emergency/%s", h.frontendURL, businessID))
}

func (h *Handler) myCodes(c echo.Context) error {
	items, err := h.svc.MyCodes(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "qr codes retrieved", items)
}

func (h *Handler) scanHistory(c echo.Context) error {
	page := pagination.FromContext(c)
	patientID := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.ScanHistory(c.Request().Context(), patientID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "scan history retrieved", pagination.NewResponse(items, total, page.Limit, page.Offset))
}
