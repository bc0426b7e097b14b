package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB; other clients are adapted with PingFunc.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HealthHandler reports liveness for load balancers along with the state of
// each dependency. Only the database is critical; others degrade.
type HealthHandler struct {
	DB    Pinger
	Redis Pinger // optional
}

func NewHealthHandler(db, redis Pinger) *HealthHandler { return &HealthHandler{DB: db, Redis: redis} }

// Health handles GET /healthz.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := echo.Map{"status": "ok", "db": "ok"}
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"], body["db"] = "degraded", "down"
		}
	}
	switch {
	case h.Redis == nil:
		body["redis"] = "disabled"
	case h.Redis.PingContext(ctx) != nil:
		body["redis"] = "down"
	default:
		body["redis"] = "ok"
	}
	return c.JSON(status, body)
}
