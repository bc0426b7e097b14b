package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vehicle-rental/internal/handler"
	"github.com/iliyamo/vehicle-rental/internal/middleware"
	"github.com/iliyamo/vehicle-rental/internal/model"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers the token endpoints under /api/auth and the
// protected /api/me. limit throttles credential guessing.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/api/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// logout accepts either a refresh token in the body or a bearer token,
	// so it stays outside JWTAuth
	g.POST("/logout", a.Logout)

	e.GET("/api/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers the guest catalog. List and detail responses are
// served through the Redis cache; availability is always computed live.
func RegisterPublic(e *echo.Echo, v *handler.VehicleHandler, cache, limit echo.MiddlewareFunc) {
	g := e.Group("/vehicles", limit)
	g.GET("", v.List, cache)
	g.GET("/:id", v.Detail, cache)
	g.GET("/:id/availability", v.Availability)
}

// RegisterOTP registers the passcode endpoints under /otp and /api/otp and
// the OTP page of the booking flow. They need a logged-in client but sit in
// front of the verification gate.
func RegisterOTP(e *echo.Echo, o *handler.OTPHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	for _, prefix := range []string{"/otp", "/api/otp"} {
		g := e.Group(prefix, middleware.JWTAuth(jwtSecret), limit)
		g.POST("/generate", o.Generate)
		g.POST("/verify", o.Verify)
		g.POST("/resend", o.Resend)
		g.POST("/cancel", o.Cancel)
		g.GET("/check", o.Check)
	}

	page := e.Group(middleware.OTPPage, middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleClient))
	page.GET("", o.Page)
	page.GET("/:vehicle_id", o.Page)
}
