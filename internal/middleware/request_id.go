package middleware

import (
    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/vehicle-rental/internal/logger"
)

const (
    RequestIDKey    = "request_id"
    RequestIDHeader = "X-Request-ID"
)

// RequestID assigns each request an id, echoes it in the response header
// and stores a logger tagged with it on the request context.
func RequestID(log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id := c.Request().Header.Get(RequestIDHeader)
            if id == "" {
                id = uuid.NewString()
            }
            c.Set(RequestIDKey, id)
            c.Response().Header().Set(RequestIDHeader, id)
            req := c.Request()
            c.SetRequest(req.WithContext(logger.NewContext(req.Context(), logger.WithRequestID(log, id))))
            return next(c)
        }
    }
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c echo.Context) string {
    id, _ := c.Get(RequestIDKey).(string)
    return id
}
