package service_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/repository/memory"
	"github.com/iliyamo/vehicle-rental/internal/service"
)

type otpFixture struct {
	store    *memory.Store
	clock    *fakeClock
	notifier *fakeNotifier
	svc      *service.OTPService
	user     model.User
}

func newOTPFixture(t *testing.T, opts ...service.OTPOption) *otpFixture {
	t.Helper()
	f := &otpFixture{
		store:    memory.New(),
		clock:    newClock("2025-06-01T08:00:00Z"),
		notifier: &fakeNotifier{},
	}
	f.user = f.store.Users().Put(model.User{Name: "Ana", Email: "ana@example.com", Role: model.RoleClient})
	opts = append([]service.OTPOption{service.WithOTPClock(f.clock.Now)}, opts...)
	f.svc = service.NewOTPService(f.store, f.store.Users(), f.store.OTPs(), f.notifier, zap.NewNop(), opts...)
	return f
}

func (f *otpFixture) active() []model.OTP {
	var out []model.OTP
	for _, o := range f.store.OTPs().ForUser(f.user.ID) {
		if o.Status == model.OTPActive {
			out = append(out, o)
		}
	}
	return out
}

func TestCreateLeavesExactlyOneActiveCode(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)

	all := f.store.OTPs().ForUser(f.user.ID)
	require.Len(t, all, 2)
	require.Equal(t, model.OTPExpired, all[0].Status)
	require.Equal(t, first.ID, all[0].ID)

	active := f.active()
	require.Len(t, active, 1)
	require.Equal(t, second.ID, active[0].ID)
	require.Equal(t, "ana@example.com", f.notifier.last().email)
	require.Equal(t, second.Code, f.notifier.last().code)
}

func TestGeneratedCodesAreSixDigits(t *testing.T) {
	f := newOTPFixture(t)
	re := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		o, err := f.svc.Create(context.Background(), f.user.ID)
		require.NoError(t, err)
		require.Regexp(t, re, o.Code)
	}
}

func TestVerifyMarksUserVerified(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)

	f.clock.Advance(9 * time.Minute)
	u, err := f.svc.Verify(ctx, f.user.ID, o.Code)
	require.NoError(t, err)
	require.True(t, u.IsVerified())
	require.NotNil(t, u.VerifiedAt)
	require.Equal(t, f.clock.Now(), *u.VerifiedAt)

	stored, err := f.store.Users().GetByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.True(t, stored.IsVerified())
	require.Equal(t, model.OTPUsed, f.store.OTPs().ForUser(f.user.ID)[0].Status)

	// a used code cannot be replayed
	_, err = f.svc.Verify(ctx, f.user.ID, o.Code)
	require.ErrorIs(t, err, apperr.ErrInvalidCode)
}

func TestVerifyExpiredCode(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)

	f.clock.Advance(service.OTPTTL + time.Second)
	_, err = f.svc.Verify(ctx, f.user.ID, o.Code)
	require.ErrorIs(t, err, apperr.ErrExpired)
	require.Equal(t, model.OTPExpired, f.store.OTPs().ForUser(f.user.ID)[0].Status)

	u, err := f.svc.Status(ctx, f.user.ID)
	require.NoError(t, err)
	require.False(t, u.IsVerified())

	// the expiry was committed, so the code is now simply unknown
	_, err = f.svc.Verify(ctx, f.user.ID, o.Code)
	require.ErrorIs(t, err, apperr.ErrInvalidCode)
}

func TestVerifyRejectsMalformedAndWrongCodes(t *testing.T) {
	fixed := func() (string, error) { return "000123", nil }
	f := newOTPFixture(t, service.WithCodeGenerator(fixed))
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)

	for _, bad := range []string{"", "12345", "1234567", "12a456", " 00012"} {
		_, err := f.svc.Verify(ctx, f.user.ID, bad)
		require.ErrorIs(t, err, apperr.ErrValidation, bad)
	}
	_, err = f.svc.Verify(ctx, f.user.ID, "999999")
	require.ErrorIs(t, err, apperr.ErrInvalidCode)
	e, _ := apperr.As(err)
	require.Equal(t, "Invalid or expired OTP code", e.Message)

	u, err := f.svc.Verify(ctx, f.user.ID, "000123")
	require.NoError(t, err)
	require.True(t, u.IsVerified())
}

func TestVerifyOnlyLatestCodeIsValid(t *testing.T) {
	calls := 0
	f := newOTPFixture(t, service.WithCodeGenerator(sequence(&calls, "111111", "222222")))
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, f.user.ID, "111111")
	require.ErrorIs(t, err, apperr.ErrInvalidCode)
	_, err = f.svc.Verify(ctx, f.user.ID, "222222")
	require.NoError(t, err)
}

func TestResendWithinWindowIsRateLimited(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)

	f.clock.Advance(20 * time.Second)
	_, err = f.svc.Resend(ctx, f.user.ID)
	require.ErrorIs(t, err, apperr.ErrRateLimited)
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, 40, e.RetryAfter)
	require.Len(t, f.store.OTPs().ForUser(f.user.ID), 1)

	f.clock.Advance(39*time.Second + 500*time.Millisecond)
	_, err = f.svc.Resend(ctx, f.user.ID)
	e, _ = apperr.As(err)
	require.Equal(t, 1, e.RetryAfter)

	f.clock.Advance(time.Second)
	o, err := f.svc.Resend(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, f.active(), 1)
	require.Equal(t, o.ID, f.active()[0].ID)
}

func TestResendRetryAfterStaysInRange(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)
	for elapsed := time.Duration(0); elapsed < service.OTPResendWindow; elapsed += 7 * time.Second {
		f.clock.Advance(7 * time.Second)
		_, err := f.svc.Resend(ctx, f.user.ID)
		if err == nil {
			break
		}
		e, ok := apperr.As(err)
		require.True(t, ok)
		require.Greater(t, e.RetryAfter, 0)
		require.LessOrEqual(t, e.RetryAfter, 60)
	}
}

func TestResendWithoutPriorCodeIssues(t *testing.T) {
	f := newOTPFixture(t)
	_, err := f.svc.Resend(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, f.active(), 1)
}

func TestDeliveryFailureDoesNotFailIssuance(t *testing.T) {
	f := newOTPFixture(t)
	f.notifier.err = errors.New("smtp: connection refused")
	o, err := f.svc.Create(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, f.active(), 1)
	require.Equal(t, o.ID, f.active()[0].ID)
}

func TestIssueRollsBackOnStoreFailure(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)

	f.store.Fail("otps.Create", errors.New("disk full"))
	_, err = f.svc.Create(ctx, f.user.ID)
	require.ErrorIs(t, err, apperr.ErrTransactionFailure)

	// the expiry of the previous code was undone with the failed insert
	require.Len(t, f.active(), 1)
	require.Len(t, f.notifier.sent, 1)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)

	n, err := f.svc.Cancel(ctx, f.user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, err = f.svc.Cancel(ctx, f.user.ID)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, f.active())
}

func TestEnsureIssuedOnlyWithoutActiveCode(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	issued, err := f.svc.EnsureIssued(ctx, f.user.ID)
	require.NoError(t, err)
	require.True(t, issued)
	issued, err = f.svc.EnsureIssued(ctx, f.user.ID)
	require.NoError(t, err)
	require.False(t, issued)
	require.Len(t, f.notifier.sent, 1)
}

func TestEnsureIssuedReplacesStaleCode(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()
	first, err := f.svc.Create(ctx, f.user.ID)
	require.NoError(t, err)

	f.clock.Advance(service.OTPTTL + time.Minute)
	issued, err := f.svc.EnsureIssued(ctx, f.user.ID)
	require.NoError(t, err)
	require.True(t, issued)
	require.Len(t, f.notifier.sent, 2)

	active := f.active()
	require.Len(t, active, 1)
	require.NotEqual(t, first.ID, active[0].ID)

	u, err := f.svc.Verify(ctx, f.user.ID, f.notifier.last().code)
	require.NoError(t, err)
	require.True(t, u.IsVerified())
}

func TestUnknownUser(t *testing.T) {
	f := newOTPFixture(t)
	_, err := f.svc.Create(context.Background(), 404)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Verify(context.Background(), 404, "123456")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
