// Package stats serves the public landing-page counters.
package stats

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthnet/healthnet/internal/platform/httperr"
)

// Counts is the public snapshot: no names, no ids.
type Counts struct {
	Doctors               int `json:"doctors"`
	Patients              int `json:"patients"`
	CompletedAppointments int `json:"completed_appointments"`
}

type Repository interface {
	Counts(ctx context.Context) (*Counts, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM app_user WHERE role = 'DOCTOR' AND status = 'ACTIVE'),
			(SELECT COUNT(*) FROM app_user WHERE role = 'PATIENT' AND status = 'ACTIVE'),
			(SELECT COUNT(*) FROM appointment WHERE status = 'COMPLETED')`).
		Scan(&c.Doctors, &c.Patients, &c.CompletedAppointments)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler { return &Handler{repo: repo} }

// RegisterRoutes mounts the public stats endpoint; it is skipper-exempt.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/public/stats", h.get)
}

func (h *Handler) get(c echo.Context) error {
	counts, err := h.repo.Counts(c.Request().Context())
	if err != nil {
		return err
	}
	return httperr.OK(c, http.StatusOK, "stats retrieved", counts)
}
