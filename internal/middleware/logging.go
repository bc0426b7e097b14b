package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/vehicle-rental/internal/logger"
)

// RequestLogger logs one line per request once the response is written.
// Handler errors are rendered here through c.Error so the logged status is
// the one the client saw. Register it after RequestID.
func RequestLogger() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            req := c.Request()
            status := c.Response().Status
            fields := []zap.Field{
                zap.String("method", req.Method),
                zap.String("path", req.URL.Path),
                zap.String("query", req.URL.RawQuery),
                zap.String("ip", c.RealIP()),
                zap.Int("status_code", status),
                zap.Duration("latency", time.Since(start)),
            }
            if err != nil {
                fields = append(fields, zap.Error(err))
            }
            log := logger.FromContext(req.Context())
            switch {
            case status >= 500:
                log.Error("request completed with server error", fields...)
            case status >= 400:
                log.Warn("request completed with client error", fields...)
            default:
                log.Info("request completed", fields...)
            }
            return nil
        }
    }
}
