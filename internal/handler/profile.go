package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/middleware"
)

// ProfileStore records the client profile.
type ProfileStore interface {
	CompleteProfile(ctx context.Context, id uint64, name, phone string) error
}

type ProfileHandler struct {
	Users ProfileStore
}

func NewProfileHandler(users ProfileStore) *ProfileHandler { return &ProfileHandler{Users: users} }

type profileReq struct {
	Name  string `json:"name" form:"name" validate:"required,max=255"`
	Phone string `json:"phone" form:"phone" validate:"required,min=7,max=20"`
}

// Complete handles POST /client/profile/complete. Afterwards the client is
// sent on to the booking flow.
func (h *ProfileHandler) Complete(c echo.Context) error {
	var req profileReq
	if err := bind(c, &req); err != nil {
		return err
	}
	err := h.Users.CompleteProfile(c.Request().Context(), middleware.UserID(c),
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Phone))
	if err != nil {
		return apperr.Wrap(err)
	}
	return done(c, http.StatusOK, "/client/booking", "Profile saved.", nil)
}
