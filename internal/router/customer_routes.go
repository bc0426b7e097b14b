package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vehicle-rental/internal/handler"
	"github.com/iliyamo/vehicle-rental/internal/middleware"
	"github.com/iliyamo/vehicle-rental/internal/model"
)

// RegisterClient registers the client booking flow. Every route requires a
// valid JWT with the client role; booking and payment pages additionally
// require a completed profile and a verified account.
func RegisterClient(e *echo.Echo, b *handler.BookingHandler, p *handler.ProfileHandler, jwtSecret string, profileComplete, verified echo.MiddlewareFunc) {
	client := e.Group("/client", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleClient))
	client.POST("/profile/complete", p.Complete)

	g := client.Group("", profileComplete, verified)
	g.GET("/booking", b.Index)
	g.GET("/booking/:vehicle_id", b.Vehicle)
	g.GET("/booking/:vehicle_id/payment", b.PaymentForm)
	g.POST("/booking/:vehicle_id/payment", b.Create)
	g.GET("/payments/:booking_id/gateway", b.Gateway)
	g.POST("/payments/:booking_id/complete", b.Complete)
	g.GET("/payments/:booking_id/confirmation", b.Confirmation)
	g.GET("/payments/:booking_id/receipt", b.Receipt)
	g.GET("/bookings", b.List)
}
