package middleware // middleware provides shared request processing for handlers

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vehicle-rental/internal/apperr"
)

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles. It assumes JWTAuth
// has already stored the role claim.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !allowed[Role(c)] {
                return apperr.ErrForbidden
            }
            return next(c)
        }
    }
}
