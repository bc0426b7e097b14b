package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/config"
	"github.com/iliyamo/vehicle-rental/internal/middleware"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/repository"
	"github.com/iliyamo/vehicle-rental/internal/utils"
)

// AuthUsers is the part of the user store the auth endpoints need.
type AuthUsers interface {
	Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// RefreshTokens persists hashed refresh tokens.
type RefreshTokens interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// OTPIssuer sends the first code after registration.
type OTPIssuer interface {
	Create(ctx context.Context, userID uint64) (model.OTP, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  AuthUsers
	Tokens RefreshTokens
	OTPs   OTPIssuer
	Log    *zap.Logger
}

func NewAuthHandler(cfg config.Config, u AuthUsers, t RefreshTokens, otps OTPIssuer, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, OTPs: otps, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role"` // client | operator
}
type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID               uint64 `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	IsVerified       bool   `json:"is_verified"`
	ProfileCompleted bool   `json:"profile_completed"`
}
type authResp struct {
	Success bool      `json:"success"`
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role,
		IsVerified: u.IsVerified(), ProfileCompleted: u.ProfileCompleted}
}

// Register creates the account, mails the first OTP and returns tokens.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role != model.RoleOperator {
		role = model.RoleClient
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Name, req.Email, req.Password, role, h.Cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return apperr.Conflict("email already exists")
	}
	if err != nil {
		return apperr.Wrap(err)
	}
	if _, err := h.OTPs.Create(ctx, uid); err != nil {
		h.Log.Warn("initial otp not issued", zap.Uint64("user_id", uid), zap.Error(err))
	}

	u := model.User{ID: uid, Name: strings.TrimSpace(req.Name), Email: req.Email, Role: role}
	return h.issue(ctx, c, http.StatusCreated, u)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return &apperr.Error{Code: apperr.CodeUnauthenticated, Message: "invalid credentials"}
	}
	if err != nil {
		return apperr.Wrap(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return &apperr.Error{Code: apperr.CodeUnauthenticated, Message: "invalid credentials"}
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

// Refresh validates the refresh token by hash, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return apperr.MissingField("refresh_token")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return &apperr.Error{Code: apperr.CodeUnauthenticated, Message: "invalid refresh", Err: err}
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return apperr.Wrap(err)
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return apperr.Wrap(err)
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

// Logout revokes the refresh token in the body, or every token of the
// bearer when no refresh token is given.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	clearAccessCookie(c)
	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return &apperr.Error{Code: apperr.CodeUnauthenticated, Message: "invalid refresh token"}
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return apperr.Wrap(err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return apperr.Validation("authorization", "provide Authorization header or refresh_token")
	}
	uid, _, err := middleware.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return &apperr.Error{Code: apperr.CodeUnauthenticated, Message: "unauthorized", Err: err}
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		return apperr.Wrap(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me reports the current user.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := h.Users.GetByID(c.Request().Context(), middleware.UserID(c))
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrUnauthenticated
	}
	if err != nil {
		return apperr.Wrap(err)
	}
	return success(c, http.StatusOK, echo.Map{"user": toUserPart(u)})
}

func (h *AuthHandler) issue(ctx context.Context, c echo.Context, status int, u model.User) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return apperr.Wrap(err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return apperr.Wrap(err)
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return apperr.Wrap(err)
	}
	c.SetCookie(&http.Cookie{
		Name:     middleware.AccessCookie,
		Value:    access.Token,
		Path:     "/",
		Expires:  access.Exp,
		HttpOnly: true,
		Secure:   !h.Cfg.Development(),
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(status, authResp{
		Success: true,
		User:    toUserPart(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	})
}

func clearAccessCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{Name: middleware.AccessCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}
