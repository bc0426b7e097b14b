package middleware

// identity.go holds the context keys shared by the middleware chain and the
// accessors handlers use to read the authenticated caller.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vehicle-rental/internal/model"
)

const (
    ctxUserID      = "user_id"
    ctxRole        = "role"
    ctxCurrentUser = "current_user"
)

// UserID returns the authenticated user's id, or 0 for guests.
func UserID(c echo.Context) uint64 {
    id, _ := c.Get(ctxUserID).(uint64)
    return id
}

// Role returns the role claim of the access token.
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// CurrentUser returns the user row loaded by RequireVerified or
// RequireProfileComplete, if any ran for this request.
func CurrentUser(c echo.Context) (model.User, bool) {
    u, ok := c.Get(ctxCurrentUser).(model.User)
    return u, ok
}

// SetIdentity records an authenticated caller on c.
func SetIdentity(c echo.Context, userID uint64, role string) {
    c.Set(ctxUserID, userID)
    c.Set(ctxRole, role)
}

// rateIdentity is the user component of rate limit keys.
func rateIdentity(c echo.Context) string {
    if id := UserID(c); id != 0 {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
