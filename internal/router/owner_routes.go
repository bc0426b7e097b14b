package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vehicle-rental/internal/handler"
	"github.com/iliyamo/vehicle-rental/internal/middleware"
	"github.com/iliyamo/vehicle-rental/internal/model"
)

// RegisterOperator registers fleet management for operators. Ownership of
// each vehicle is checked by the catalog service.
func RegisterOperator(e *echo.Echo, v *handler.VehicleHandler, jwtSecret string) {
	g := e.Group("/operator", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleOperator))
	g.GET("/vehicles", v.Mine)
	g.POST("/vehicles", v.Create)
	g.PUT("/vehicles/:id", v.Update)
	g.DELETE("/vehicles/:id", v.Delete)
	g.POST("/vehicles/:id/attachments", v.AddAttachment)
}
