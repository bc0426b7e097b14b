package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/middleware"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/service"
)

// OTPEngine is the verification surface the OTP endpoints drive.
type OTPEngine interface {
	Create(ctx context.Context, userID uint64) (model.OTP, error)
	Resend(ctx context.Context, userID uint64) (model.OTP, error)
	EnsureIssued(ctx context.Context, userID uint64) (bool, error)
	Verify(ctx context.Context, userID uint64, code string) (model.User, error)
	Cancel(ctx context.Context, userID uint64) (int64, error)
	Status(ctx context.Context, userID uint64) (model.User, error)
}

// DestinationResolver redeems an intended-destination token.
type DestinationResolver interface {
	Resolve(ctx context.Context, token string, userID, vehicleID uint64) string
}

// OTPHandler serves issuance and verification of one-time passcodes. When
// Debug is set the issued code is echoed back, for local development only.
type OTPHandler struct {
	OTPs     OTPEngine
	Resolver DestinationResolver
	Debug    bool
	Log      *zap.Logger
}

func NewOTPHandler(otps OTPEngine, resolver DestinationResolver, debug bool, log *zap.Logger) *OTPHandler {
	return &OTPHandler{OTPs: otps, Resolver: resolver, Debug: debug, Log: log}
}

type verifyReq struct {
	Code      string `json:"code" form:"code" validate:"required,otp_code"`
	Intended  string `json:"intended" form:"intended"`
	VehicleID uint64 `json:"vehicle_id" form:"vehicle_id"`
}

// Generate handles POST /otp/generate.
func (h *OTPHandler) Generate(c echo.Context) error {
	otp, err := h.OTPs.Create(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, h.issued(otp, "OTP sent to your email"))
}

// Resend handles POST /otp/resend. Within a minute of the previous code it
// answers 429 with retry_after.
func (h *OTPHandler) Resend(c echo.Context) error {
	otp, err := h.OTPs.Resend(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, h.issued(otp, "A new OTP has been sent to your email"))
}

// Verify handles POST /otp/verify and sends the user on to the page they
// were headed for before the gate stopped them.
func (h *OTPHandler) Verify(c echo.Context) error {
	var req verifyReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	uid := middleware.UserID(c)
	if _, err := h.OTPs.Verify(ctx, uid, req.Code); err != nil {
		return err
	}
	target := h.Resolver.Resolve(ctx, req.Intended, uid, req.VehicleID)
	h.Log.Info("otp verified", zap.Uint64("user_id", uid), zap.String("redirect", target))
	return done(c, http.StatusOK, target, "Your account has been verified.", echo.Map{"is_verified": true})
}

// Cancel handles POST /otp/cancel.
func (h *OTPHandler) Cancel(c echo.Context) error {
	n, err := h.OTPs.Cancel(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"cancelled": n})
}

// Check handles GET /otp/check.
func (h *OTPHandler) Check(c echo.Context) error {
	u, err := h.OTPs.Status(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{
		"is_verified":       u.IsVerified(),
		"email_verified_at": u.VerifiedAt,
		"email":             u.Email,
	})
}

// Page handles GET /client/booking/otp[/:vehicle_id]. It makes sure the
// user holds a live code and hands back what the form needs to post to
// /otp/verify. Users who are already verified go straight on.
func (h *OTPHandler) Page(c echo.Context) error {
	ctx := c.Request().Context()
	uid := middleware.UserID(c)
	vehicleID, _ := strconv.ParseUint(c.Param("vehicle_id"), 10, 64)
	intended := c.QueryParam("intended")

	u, err := h.OTPs.Status(ctx, uid)
	if err != nil {
		return err
	}
	if u.IsVerified() {
		target := h.Resolver.Resolve(ctx, intended, uid, vehicleID)
		if middleware.IsAPI(c) {
			return success(c, http.StatusOK, echo.Map{"is_verified": true, "redirect_url": target})
		}
		return c.Redirect(http.StatusFound, target)
	}
	sent, err := h.OTPs.EnsureIssued(ctx, uid)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{
		"is_verified": false,
		"email":       u.Email,
		"vehicle_id":  vehicleID,
		"intended":    intended,
		"otp_sent":    sent,
	})
}

func (h *OTPHandler) issued(otp model.OTP, msg string) echo.Map {
	out := echo.Map{"message": msg, "expires_at": otp.CreatedAt.Add(service.OTPTTL)}
	if h.Debug {
		out["debug_code"] = otp.Code
	}
	return out
}
