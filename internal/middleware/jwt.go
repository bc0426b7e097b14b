package middleware // package middleware contains reusable HTTP middleware functions

import (
    "strconv"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/vehicle-rental/internal/apperr"
)

// AccessCookie is the cookie browsers carry the access token in.
const AccessCookie = "access_token"

// JWTAuth returns an Echo middleware that validates an HS256 access token
// from the Authorization header (Bearer) or the access_token cookie and
// records the subject and role claims on the context. Tokens carrying an
// audience are intended-destination tokens and are never accepted as access
// tokens.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := bearer(c)
            if raw == "" {
                return &apperr.Error{Code: apperr.CodeUnauthenticated, Message: "missing bearer token"}
            }
            uid, role, err := ParseAccessToken(secret, raw)
            if err != nil {
                return &apperr.Error{Code: apperr.CodeUnauthenticated, Message: "invalid token", Err: err}
            }
            SetIdentity(c, uid, role)
            return next(c)
        }
    }
}

// ParseAccessToken validates raw and returns its subject and role.
func ParseAccessToken(secret, raw string) (uint64, string, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
    if err != nil {
        return 0, "", err
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return 0, "", jwt.ErrTokenInvalidClaims
    }
    if _, has := claims["aud"]; has {
        return 0, "", jwt.ErrTokenInvalidAudience
    }
    var uid uint64
    switch sub := claims["sub"].(type) {
    case float64:
        uid = uint64(sub)
    case string:
        uid, _ = strconv.ParseUint(sub, 10, 64)
    }
    if uid == 0 {
        return 0, "", jwt.ErrTokenInvalidSubject
    }
    role, _ := claims["role"].(string)
    return uid, role, nil
}

func bearer(c echo.Context) string {
    if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
        return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    }
    if ck, err := c.Cookie(AccessCookie); err == nil {
        return ck.Value
    }
    return ""
}
