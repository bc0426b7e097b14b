package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/logger"
	"github.com/iliyamo/vehicle-rental/internal/middleware"
	"github.com/iliyamo/vehicle-rental/internal/redirect"
)

// ErrorHandler renders every error returned by handlers and middleware.
// API callers get {success:false, error, message, field?, retry_after?};
// interactive form posts are sent back to the page they came from with the
// message in the flash cookie.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := errorBody(err)
		l := logger.FromContext(c.Request().Context())
		if status >= http.StatusInternalServerError {
			l.Error("request failed", zap.String("path", c.Request().URL.Path), zap.Error(err))
		}

		if !middleware.IsAPI(c) && c.Request().Method != http.MethodGet {
			back := sameHostPath(c.Request().Referer(), c.Request().Host)
			if status == http.StatusUnauthorized {
				back = "/login"
			}
			if redirect.SafePath(back) {
				middleware.SetFlash(c, fmt.Sprint(body["message"]))
				if rerr := c.Redirect(http.StatusSeeOther, back); rerr != nil {
					log.Warn("error redirect failed", zap.Error(rerr))
				}
				return
			}
		}
		if status == http.StatusTooManyRequests {
			if ra, ok := body["retry_after"].(int); ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(ra))
			}
		}
		if rerr := c.JSON(status, body); rerr != nil {
			log.Warn("error response failed", zap.Error(rerr))
		}
	}
}

// sameHostPath returns the path of ref when it points at host.
func sameHostPath(ref, host string) string {
	u, err := url.Parse(ref)
	if err != nil || ref == "" || (u.Host != "" && u.Host != host) {
		return ""
	}
	return u.RequestURI()
}

func errorBody(err error) (int, echo.Map) {
	if e, ok := apperr.As(err); ok {
		status := apperr.Status(err)
		msg := e.Message
		if status >= http.StatusInternalServerError {
			msg = "Something went wrong. Please try again."
		}
		body := echo.Map{"success": false, "error": string(e.Code), "message": msg}
		if e.Field != "" {
			body["field"] = e.Field
		}
		if e.Code == apperr.CodeRateLimited {
			body["retry_after"] = e.RetryAfter
		}
		return status, body
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, echo.Map{"success": false, "error": strings.ToLower(strings.ReplaceAll(http.StatusText(he.Code), " ", "_")), "message": he.Message}
	}
	return http.StatusInternalServerError, echo.Map{"success": false, "error": "internal_error", "message": "Something went wrong. Please try again."}
}

// success writes {success:true} merged with fields.
func success(c echo.Context, status int, fields echo.Map) error {
	body := echo.Map{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	return c.JSON(status, body)
}

// done answers a successful form post: JSON for API callers, a redirect with
// a flash message otherwise.
func done(c echo.Context, status int, target, flash string, fields echo.Map) error {
	if middleware.IsAPI(c) {
		if fields == nil {
			fields = echo.Map{}
		}
		fields["redirect_url"] = target
		if flash != "" {
			fields["message"] = flash
		}
		return success(c, status, fields)
	}
	if flash != "" {
		middleware.SetFlash(c, flash)
	}
	return c.Redirect(http.StatusSeeOther, target)
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation(name, "must be a positive integer")
	}
	return id, nil
}

// parseDate reads a YYYY-MM-DD value. Empty input yields nil.
func parseDate(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, apperr.Validation(field, "must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}

// bind decodes and validates the request into v.
func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("body", "invalid request body")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(v)
}
