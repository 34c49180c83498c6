package auditevent

import (
	"net/http"

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
	logs := g.Group("/admin/audit-logs", auth.RequireRole(auth.RoleAdmin))
	logs.GET("", h.search)
	logs.GET("/:id", h.get)
}

func (h *Handler) search(c echo.Context) error {
	page := pagination.FromContext(c)

	params := map[string]string{}
	for _, key := range []string{"actor_user_id", "action", "entity_type", "entity_id"} {
		if v := c.QueryParam(key); v != "" {
			params[key] = v
		}
	}

	items, total, err := h.svc.Search(c.Request().Context(), params, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "audit logs retrieved", pagination.NewResponse(items, total, page.Limit, page.Offset))
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperr.BadRequest("invalid audit event id")
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "audit log retrieved", e)
}
