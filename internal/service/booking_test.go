package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/repository/memory"
	"github.com/iliyamo/vehicle-rental/internal/service"
)

type bookingFixture struct {
	store     *memory.Store
	clock     *fakeClock
	publisher *fakePublisher
	svc       *service.BookingService
	vehicle   model.Vehicle
	client    model.User
}

// newBookingFixture seeds a client and a vehicle. wrap, when set, decorates
// the payment store handed to the service.
func newBookingFixture(t *testing.T, wrap func(*memory.Payments) service.PaymentStore, opts ...service.BookingOption) *bookingFixture {
	t.Helper()
	f := &bookingFixture{
		store:     memory.New(),
		clock:     newClock("2025-05-30T10:00:00Z"),
		publisher: &fakePublisher{},
	}
	f.client = f.store.Users().Put(model.User{Name: "Ben", Email: "ben@example.com", Role: model.RoleClient, Verified: true})
	f.vehicle = f.store.Vehicles().Put(model.Vehicle{
		OperatorID: 90, LicensePlate: "ABC-1234", ChassisNumber: "CH-1", Brand: "Toyota", Model: "Vios",
		Year: 2022, PricePerDay: 1000, IsActive: true,
	})
	var payments service.PaymentStore = f.store.Payments()
	if wrap != nil {
		payments = wrap(f.store.Payments())
	}
	opts = append([]service.BookingOption{service.WithBookingClock(f.clock.Now)}, opts...)
	f.svc = service.NewBookingService(f.store, f.store.Bookings(), payments, f.store.Transactions(),
		f.store.Vehicles(), f.publisher, zap.NewNop(), opts...)
	return f
}

func (f *bookingFixture) request(pickup, ret string) service.BookingRequest {
	return service.BookingRequest{
		VehicleID:     f.vehicle.ID,
		OperatorID:    f.vehicle.OperatorID,
		ClientID:      f.client.ID,
		PickupDate:    ptr(day(pickup)),
		ReturnDate:    ptr(day(ret)),
		PricePerDay:   ptr(f.vehicle.PricePerDay),
		PaymentMethod: model.MethodCreditCard,
	}
}

func (f *bookingFixture) requireEmpty(t *testing.T) {
	t.Helper()
	require.Empty(t, f.store.Bookings().All())
	require.Empty(t, f.store.Payments().All())
	require.Empty(t, f.store.Transactions().All())
}

func TestCreateBookingWritesBookingPaymentAndCredit(t *testing.T) {
	f := newBookingFixture(t, nil)
	b, err := f.svc.CreateBooking(context.Background(), f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)

	require.Equal(t, model.BookingPending, b.Status)
	require.Equal(t, 2100.0, b.TotalPrice)
	require.Equal(t, day("2025-06-01"), b.StartDate)
	require.Equal(t, day("2025-06-03"), b.EndDate)
	require.NotNil(t, b.Payment)
	require.Regexp(t, `^PAY-[A-Z0-9]{10}$`, b.Payment.ReferenceNumber)
	require.Equal(t, model.PaymentPending, b.Payment.Status)
	require.Equal(t, 2100.0, b.Payment.Amount)

	require.Len(t, f.store.Bookings().All(), 1)
	require.Len(t, f.store.Payments().All(), 1)
	txs := f.store.Transactions().All()
	require.Len(t, txs, 1)
	require.Equal(t, model.TransactionCredit, txs[0].Type)
	require.Equal(t, model.TransactionPending, txs[0].Status)
	require.Equal(t, b.Payment.ID, txs[0].PaymentID)
	require.Equal(t, b.ID, txs[0].BookingID)
	require.Equal(t, 2100.0, txs[0].Amount)
}

func TestCreateBookingSameDayHoldsOneDay(t *testing.T) {
	f := newBookingFixture(t, nil)
	b, err := f.svc.CreateBooking(context.Background(), f.request("2025-06-05", "2025-06-05"))
	require.NoError(t, err)
	require.Equal(t, 1050.0, b.TotalPrice)
	require.Equal(t, day("2025-06-06"), b.EndDate)
}

func TestCreateBookingMissingFields(t *testing.T) {
	f := newBookingFixture(t, nil)
	cases := map[string]func(*service.BookingRequest){
		"vehicle_id":    func(r *service.BookingRequest) { r.VehicleID = 0 },
		"operator_id":   func(r *service.BookingRequest) { r.OperatorID = 0 },
		"client_id":     func(r *service.BookingRequest) { r.ClientID = 0 },
		"pickup_date":   func(r *service.BookingRequest) { r.PickupDate = nil },
		"return_date":   func(r *service.BookingRequest) { r.ReturnDate = nil },
		"price_per_day": func(r *service.BookingRequest) { r.PricePerDay = nil },
	}
	for field, mutate := range cases {
		req := f.request("2025-06-01", "2025-06-03")
		mutate(&req)
		_, err := f.svc.CreateBooking(context.Background(), req)
		require.ErrorIs(t, err, apperr.ErrMissingField, field)
		e, _ := apperr.As(err)
		require.Equal(t, field, e.Field)
	}
	f.requireEmpty(t)
}

func TestCreateBookingIsAtomic(t *testing.T) {
	for _, op := range []string{"payments.Create", "transactions.Create", "commit"} {
		t.Run(op, func(t *testing.T) {
			f := newBookingFixture(t, nil)
			boom := errors.New("connection reset")
			f.store.Fail(op, boom)

			_, err := f.svc.CreateBooking(context.Background(), f.request("2025-06-01", "2025-06-03"))
			require.ErrorIs(t, err, apperr.ErrTransactionFailure)
			require.ErrorIs(t, err, boom)
			f.requireEmpty(t)
		})
	}
}

func seedPayment(t *testing.T, f *bookingFixture, ref string) {
	t.Helper()
	other := f.store.Bookings().Put(model.Booking{VehicleID: f.vehicle.ID, ClientID: 999, Status: model.BookingCancelled,
		StartDate: day("2025-01-01"), EndDate: day("2025-01-02")})
	f.store.Payments().Put(model.Payment{BookingID: other.ID, ReferenceNumber: ref, Status: model.PaymentFailed})
}

func TestCreateBookingRetriesTakenReference(t *testing.T) {
	calls := 0
	f := newBookingFixture(t, nil, service.WithReferenceGenerator(
		sequence(&calls, "PAY-AAAAAAAAAA", "PAY-AAAAAAAAAA", "PAY-BBBBBBBBBB")))
	seedPayment(t, f, "PAY-AAAAAAAAAA")

	b, err := f.svc.CreateBooking(context.Background(), f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)
	require.Equal(t, "PAY-BBBBBBBBBB", b.Payment.ReferenceNumber)
	require.Equal(t, 3, calls)
}

// blindPayments hides existing references so collisions surface on insert,
// as they do when two requests race between the check and the insert.
type blindPayments struct{ *memory.Payments }

func (blindPayments) ReferenceExists(context.Context, string) (bool, error) { return false, nil }

func TestCreateBookingRetriesDuplicateKeyOnInsert(t *testing.T) {
	calls := 0
	blind := func(p *memory.Payments) service.PaymentStore { return blindPayments{p} }
	f := newBookingFixture(t, blind, service.WithReferenceGenerator(
		sequence(&calls, "PAY-AAAAAAAAAA", "PAY-AAAAAAAAAA", "PAY-CCCCCCCCCC")))
	seedPayment(t, f, "PAY-AAAAAAAAAA")

	b, err := f.svc.CreateBooking(context.Background(), f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)
	require.Equal(t, "PAY-CCCCCCCCCC", b.Payment.ReferenceNumber)
	require.Equal(t, 3, calls)
}

func TestCreateBookingReferenceExhaustion(t *testing.T) {
	calls := 0
	f := newBookingFixture(t, nil, service.WithReferenceGenerator(sequence(&calls, "PAY-AAAAAAAAAA")))
	seedPayment(t, f, "PAY-AAAAAAAAAA")
	before := len(f.store.Bookings().All())

	_, err := f.svc.CreateBooking(context.Background(), f.request("2025-06-01", "2025-06-03"))
	require.ErrorIs(t, err, apperr.ErrReferenceExhausted)
	require.Equal(t, service.MaxReferenceAttempts, calls)
	require.Len(t, f.store.Bookings().All(), before)
	require.Len(t, f.store.Payments().All(), 1)
	require.Empty(t, f.store.Transactions().All())
}

func TestCompletePaymentConfirmsBooking(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)

	got, err := f.svc.CompletePayment(ctx, b.ID, f.client.ID, model.PaymentDetails{
		Method: model.MethodCreditCard, CardLastFour: "4242", CardBrand: "visa",
		EWalletNumber: "09170000000", EWalletEmail: "stray@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, model.BookingConfirmed, got.Status)

	stored, err := f.svc.Get(ctx, b.ID, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, model.BookingConfirmed, stored.Status)
	p := stored.Payment
	require.Equal(t, model.PaymentCompleted, p.Status)
	require.NotNil(t, p.PaidAt)
	require.Equal(t, f.clock.Now(), *p.PaidAt)
	require.Equal(t, "4242", p.CardLastFour)
	require.Equal(t, "visa", p.CardBrand)
	require.Empty(t, p.EWalletNumber)
	require.Empty(t, p.EWalletEmail)

	txs, err := f.svc.Transactions(ctx, stored)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, model.TransactionCompleted, txs[0].Status)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	require.Equal(t, b.ID, ev.BookingID)
	require.Equal(t, b.Payment.ReferenceNumber, ev.ReferenceNumber)
	require.Equal(t, "2025-06-01", ev.StartDate)
	require.Equal(t, 2100.0, ev.TotalAmount)
}

func TestCompletePaymentEWalletClearsCardFields(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)

	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID, model.PaymentDetails{
		Method: model.MethodGCash, EWalletNumber: "09171234567", CardLastFour: "4242",
	})
	require.NoError(t, err)
	stored, err := f.svc.Get(ctx, b.ID, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, model.MethodGCash, stored.Payment.Method)
	require.Equal(t, "09171234567", stored.Payment.EWalletNumber)
	require.Empty(t, stored.Payment.CardLastFour)
}

func TestCompletePaymentTwiceConflicts(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)
	details := model.PaymentDetails{Method: model.MethodPayMaya, EWalletNumber: "0918"}
	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID, details)
	require.NoError(t, err)

	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID, details)
	require.ErrorIs(t, err, apperr.ErrConflict)
	stored, _ := f.svc.Get(ctx, b.ID, f.client.ID)
	require.Equal(t, model.PaymentCompleted, stored.Payment.Status)
}

func TestCompletePaymentRejectsOverlapAndMarksFailed(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	f.store.Bookings().Put(model.Booking{VehicleID: f.vehicle.ID, ClientID: 777, Status: model.BookingConfirmed,
		StartDate: day("2025-06-02"), EndDate: day("2025-06-04")})
	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)

	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID, model.PaymentDetails{Method: model.MethodCreditCard})
	require.ErrorIs(t, err, apperr.ErrConflict)

	stored, err := f.svc.Get(ctx, b.ID, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, model.BookingPending, stored.Status)
	require.Equal(t, model.PaymentFailed, stored.Payment.Status)
	require.NotNil(t, stored.Payment.FailedAt)
	require.True(t, strings.Contains(stored.Payment.FailureReason, "already booked"))
	require.Empty(t, f.publisher.events)
}

func TestCompletePaymentAllowsTouchingRanges(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	f.store.Bookings().Put(model.Booking{VehicleID: f.vehicle.ID, ClientID: 777, Status: model.BookingOngoing,
		StartDate: day("2025-05-28"), EndDate: day("2025-06-01")})
	f.store.Bookings().Put(model.Booking{VehicleID: f.vehicle.ID, ClientID: 778, Status: model.BookingCancelled,
		StartDate: day("2025-06-01"), EndDate: day("2025-06-03")})
	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)

	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID, model.PaymentDetails{Method: model.MethodCreditCard})
	require.NoError(t, err)
}

func TestCompletePaymentRollsBackOnFailure(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)

	boom := errors.New("lock wait timeout")
	f.store.Fail("transactions.CompletePending", boom)
	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID, model.PaymentDetails{Method: model.MethodCreditCard})
	require.ErrorIs(t, err, boom)
	f.store.ClearFailures()

	stored, err := f.svc.Get(ctx, b.ID, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, model.BookingPending, stored.Status)
	require.Equal(t, model.PaymentFailed, stored.Payment.Status)
	require.Equal(t, boom.Error(), stored.Payment.FailureReason)
	txs, _ := f.svc.Transactions(ctx, stored)
	require.Equal(t, model.TransactionPending, txs[0].Status)

	// a failed payment can be retried
	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID, model.PaymentDetails{Method: model.MethodCreditCard})
	require.NoError(t, err)
}

func TestCompletePaymentReturnsCauseWhenMarkingFails(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)

	boom := errors.New("deadlock found")
	f.store.Fail("bookings.SetStatus", boom)
	f.store.Fail("payments.MarkFailed", errors.New("connection lost"))
	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID, model.PaymentDetails{Method: model.MethodCreditCard})
	require.ErrorIs(t, err, boom)
	f.store.ClearFailures()

	stored, _ := f.svc.Get(ctx, b.ID, f.client.ID)
	require.Equal(t, model.PaymentPending, stored.Payment.Status)
}

func TestBookingsAreScopedToTheClient(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, b.ID, f.client.ID+1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID+1, model.PaymentDetails{Method: model.MethodCreditCard})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := f.svc.ListForClient(ctx, f.client.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestConcurrentCompletionsConfirmAtMostOne(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	const n = 8
	ids := make([]uint64, n)
	for i := range ids {
		b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-04"))
		require.NoError(t, err)
		ids[i] = b.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			_, err := f.svc.CompletePayment(ctx, id, f.client.ID, model.PaymentDetails{Method: model.MethodCreditCard})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, n-1, conflicts)
	confirmed := 0
	for _, b := range f.store.Bookings().All() {
		if b.Status == model.BookingConfirmed {
			confirmed++
		}
	}
	require.Equal(t, 1, confirmed)
}

func TestConcurrentCompletionOfOneBooking(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-04"))
	require.NoError(t, err)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.svc.CompletePayment(ctx, b.ID, f.client.ID, model.PaymentDetails{Method: model.MethodCreditCard})
			errs <- err
		}()
	}
	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	require.ErrorIs(t, failures[0], apperr.ErrConflict)

	stored, _ := f.svc.Get(ctx, b.ID, f.client.ID)
	require.Equal(t, model.PaymentCompleted, stored.Payment.Status)
	require.Len(t, f.publisher.events, 1)
}

func TestReceiptOnlyForCompletedPayments(t *testing.T) {
	f := newBookingFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.Vehicles().AddAttachment(ctx, &model.VehicleAttachment{VehicleID: f.vehicle.ID,
		AttachmentType: model.AttachmentVehiclePhoto, AttachmentURL: "/uploads/vios.jpg"}))
	receipts := service.NewReceiptService(f.svc, f.store.Vehicles(), "Uniride")

	b, err := f.svc.CreateBooking(ctx, f.request("2025-06-01", "2025-06-03"))
	require.NoError(t, err)
	_, err = receipts.Build(ctx, b.ID, f.client.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.CompletePayment(ctx, b.ID, f.client.ID, model.PaymentDetails{Method: model.MethodGCash, EWalletNumber: "0917"})
	require.NoError(t, err)
	r, err := receipts.Build(ctx, b.ID, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, b.Payment.ReferenceNumber, r.Summary.ReferenceNumber)
	require.Equal(t, "Toyota Vios (2022)", r.Summary.VehicleName)
	require.Equal(t, 2, r.Summary.RentalDays)
	require.Equal(t, 2100.0, r.Summary.TotalAmount)
	require.Equal(t, model.MethodGCash, r.Summary.PaymentMethod)
	require.Equal(t, model.PaymentCompleted, r.Summary.PaymentStatus)
	require.Equal(t, "/uploads/vios.jpg", r.VehicleImage)
	require.Equal(t, "Uniride", r.CompanyName)
	require.WithinDuration(t, f.clock.Now(), *r.Summary.PaidAt, time.Second)
}
