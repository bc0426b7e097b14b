package middleware

import (
    "context"
    "errors"
    "net/http"
    "net/url"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/vehicle-rental/internal/apperr"
    "github.com/iliyamo/vehicle-rental/internal/model"
    "github.com/iliyamo/vehicle-rental/internal/redirect"
    "github.com/iliyamo/vehicle-rental/internal/repository"
)

// OTPPage is where unverified interactive callers are sent.
const OTPPage = "/client/booking/otp"

// FlashCookie carries a one-shot message to the next rendered page.
const FlashCookie = "flash"

// paths that stay reachable while unverified
var verificationAllowlist = []string{"/otp", "/api/otp", OTPPage}

// UserLookup loads the caller's user row.
type UserLookup interface {
    GetByID(ctx context.Context, id uint64) (model.User, error)
}

// RequireVerified lets verified users through and sends everyone else to
// the OTP page together with a signed token naming where they were going.
// API callers get a 403 JSON body instead of a redirect.
func RequireVerified(users UserLookup, signer *redirect.Signer, log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            path := c.Request().URL.Path
            for _, p := range verificationAllowlist {
                if path == p || strings.HasPrefix(path, p+"/") {
                    return next(c)
                }
            }
            u, err := loadUser(c, users)
            if err != nil {
                return err
            }
            if u.IsVerified() {
                return next(c)
            }

            vehicleID, _ := strconv.ParseUint(c.Param("vehicle_id"), 10, 64)
            dest := intendedDestination(c, vehicleID)
            token, err := signer.Sign(u.ID, dest, vehicleID)
            if err != nil {
                log.Warn("intended destination not signed", zap.String("dest", dest), zap.Error(err))
                token = ""
            }
            target := otpURL(vehicleID, token)

            if IsAPI(c) {
                return c.JSON(http.StatusForbidden, echo.Map{
                    "success":               false,
                    "error":                 string(apperr.CodeVerificationRequired),
                    "message":               apperr.ErrVerificationRequired.Message,
                    "requires_verification": true,
                    "redirect_url":          target,
                    "intended":              token,
                })
            }
            SetFlash(c, apperr.ErrVerificationRequired.Message)
            return c.Redirect(http.StatusFound, target)
        }
    }
}

// RequireProfileComplete sends clients who have not filled in their profile
// to the profile form.
func RequireProfileComplete(users UserLookup) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            u, err := loadUser(c, users)
            if err != nil {
                return err
            }
            if u.ProfileCompleted {
                return next(c)
            }
            if IsAPI(c) {
                return &apperr.Error{Code: apperr.CodeForbidden, Message: "Please complete your profile to continue."}
            }
            SetFlash(c, "Please complete your profile to continue.")
            return c.Redirect(http.StatusFound, "/client/profile")
        }
    }
}

// IsAPI reports whether the caller expects JSON rather than a page.
func IsAPI(c echo.Context) bool {
    r := c.Request()
    return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) ||
        r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
        strings.HasPrefix(r.URL.Path, "/api/")
}

// SetFlash stores msg for the next page view.
func SetFlash(c echo.Context, msg string) {
    c.SetCookie(&http.Cookie{
        Name:     FlashCookie,
        Value:    url.QueryEscape(msg),
        Path:     "/",
        MaxAge:   60,
        HttpOnly: true,
        SameSite: http.SameSiteLaxMode,
    })
}

func loadUser(c echo.Context, users UserLookup) (model.User, error) {
    if u, ok := CurrentUser(c); ok {
        return u, nil
    }
    id := UserID(c)
    if id == 0 {
        return model.User{}, apperr.ErrUnauthenticated
    }
    u, err := users.GetByID(c.Request().Context(), id)
    if errors.Is(err, repository.ErrNotFound) {
        return model.User{}, apperr.ErrUnauthenticated
    }
    if err != nil {
        return model.User{}, apperr.Wrap(err)
    }
    c.Set(ctxCurrentUser, u)
    return u, nil
}

// intendedDestination is the page to return to after verification. Only a
// GET can be replayed; other methods fall back to the vehicle's booking page.
func intendedDestination(c echo.Context, vehicleID uint64) string {
    if c.Request().Method == http.MethodGet {
        return c.Request().URL.RequestURI()
    }
    return redirect.Fallback(vehicleID)
}

func otpURL(vehicleID uint64, token string) string {
    target := OTPPage
    if vehicleID > 0 {
        target += "/" + strconv.FormatUint(vehicleID, 10)
    }
    if token != "" {
        target += "?intended=" + url.QueryEscape(token)
    }
    return target
}
