package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/repository"
	"github.com/iliyamo/vehicle-rental/internal/utils"
)

const (
	// OTPTTL is how long an issued code stays valid.
	OTPTTL = 10 * time.Minute
	// OTPResendWindow is the minimum spacing between two issuances.
	OTPResendWindow = 60 * time.Second
	otpLength       = 6
)

var otpPattern = regexp.MustCompile(`^\d{6}$`)

// OTPService issues and verifies one-time passcodes. It is the only writer
// of the otps table and of the users verification columns.
type OTPService struct {
	tx       Transactor
	users    UserStore
	otps     OTPStore
	notifier Notifier
	log      *zap.Logger
	now      Clock
	genCode  func() (string, error)
}

// OTPOption customizes an OTPService.
type OTPOption func(*OTPService)

// WithOTPClock replaces the wall clock.
func WithOTPClock(c Clock) OTPOption { return func(s *OTPService) { s.now = c } }

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() (string, error)) OTPOption {
	return func(s *OTPService) { s.genCode = gen }
}

func NewOTPService(tx Transactor, users UserStore, otps OTPStore, notifier Notifier, log *zap.Logger, opts ...OTPOption) *OTPService {
	s := &OTPService{
		tx:       tx,
		users:    users,
		otps:     otps,
		notifier: notifier,
		log:      log,
		now:      utcNow,
		genCode:  func() (string, error) { return utils.RandomDigits(otpLength) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create supersedes any active code of the user with a fresh one and mails
// it. A delivery failure is logged and does not undo the issuance.
func (s *OTPService) Create(ctx context.Context, userID uint64) (model.OTP, error) {
	return s.issue(ctx, userID, false)
}

// Resend behaves like Create unless a code was issued within the resend
// window, in which case it fails with a rate limited error.
func (s *OTPService) Resend(ctx context.Context, userID uint64) (model.OTP, error) {
	return s.issue(ctx, userID, true)
}

// EnsureIssued issues a code unless the user holds an active one that is
// still within its TTL. It reports whether a new code was sent.
func (s *OTPService) EnsureIssued(ctx context.Context, userID uint64) (bool, error) {
	otp, err := s.otps.LatestActive(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return false, apperr.Wrap(err)
	case !otp.ExpiredAt(s.now(), OTPTTL):
		return false, nil
	}
	if _, err := s.Create(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *OTPService) issue(ctx context.Context, userID uint64, throttle bool) (model.OTP, error) {
	var (
		otp  model.OTP
		user model.User
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.users.LockByID(ctx, userID)
		if err != nil {
			return lookupErr(err, "user")
		}
		user = u
		now := s.now()
		if throttle {
			last, err := s.otps.LatestCreatedAt(ctx, userID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
			case err != nil:
				return err
			default:
				if elapsed := now.Sub(last); elapsed < OTPResendWindow {
					return apperr.RateLimited(retryAfter(elapsed))
				}
			}
		}
		if _, err := s.otps.ExpireActive(ctx, userID); err != nil {
			return err
		}
		code, err := s.genCode()
		if err != nil {
			return err
		}
		otp = model.OTP{UserID: userID, Code: code, Status: model.OTPActive, CreatedAt: now}
		return s.otps.Create(ctx, &otp)
	})
	if err != nil {
		return model.OTP{}, apperr.Wrap(err)
	}
	if err := s.notifier.SendOTP(ctx, user.Email, otp.Code); err != nil {
		s.log.Warn("otp delivery failed",
			zap.Uint64("user_id", userID),
			zap.Uint64("otp_id", otp.ID),
			zap.Error(err))
	} else {
		s.log.Info("otp issued", zap.Uint64("user_id", userID), zap.Uint64("otp_id", otp.ID))
	}
	return otp, nil
}

// retryAfter returns whole seconds left in the resend window, in (0, 60].
func retryAfter(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := OTPResendWindow - elapsed
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Verify consumes code for the user. On success the code becomes used and
// the user verified in the same transaction, and the updated user is
// returned. An expired code is marked expired before Expired is returned.
func (s *OTPService) Verify(ctx context.Context, userID uint64, code string) (model.User, error) {
	if !otpPattern.MatchString(code) {
		return model.User{}, apperr.Validation("code", "must be exactly 6 digits")
	}
	var (
		user    model.User
		expired bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.users.LockByID(ctx, userID)
		if err != nil {
			return lookupErr(err, "user")
		}
		otp, err := s.otps.FindActive(ctx, userID, code)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.ErrInvalidCode
		}
		if err != nil {
			return err
		}
		now := s.now()
		if otp.ExpiredAt(now, OTPTTL) {
			expired = true
			return s.otps.SetStatus(ctx, otp.ID, model.OTPExpired)
		}
		if err := s.otps.SetStatus(ctx, otp.ID, model.OTPUsed); err != nil {
			return err
		}
		if err := s.users.MarkVerified(ctx, userID, now); err != nil {
			return err
		}
		u.Verified, u.VerifiedAt = true, &now
		user = u
		return nil
	})
	if err != nil {
		return model.User{}, apperr.Wrap(err)
	}
	if expired {
		return model.User{}, apperr.ErrExpired
	}
	s.log.Info("user verified", zap.Uint64("user_id", userID))
	return user, nil
}

// Cancel withdraws every active code of the user and returns how many.
func (s *OTPService) Cancel(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.otps.CancelActive(ctx, userID)
	if err != nil {
		return 0, apperr.Wrap(err)
	}
	return n, nil
}

// Status returns the user whose verification state the caller reports.
func (s *OTPService) Status(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, apperr.Wrap(lookupErr(err, "user"))
	}
	return u, nil
}

// lookupErr turns a repository miss into a typed not-found error.
func lookupErr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(what)
	}
	return err
}
