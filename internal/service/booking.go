package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/queue"
	"github.com/iliyamo/vehicle-rental/internal/repository"
	"github.com/iliyamo/vehicle-rental/internal/utils"
)

const (
	// MaxReferenceAttempts bounds payment reference generation.
	MaxReferenceAttempts = 10
	referencePrefix      = "PAY-"
	referenceLength      = 10
)

var errPaymentCompleted = apperr.Conflict("payment already completed")

// BookingRequest carries everything needed to open a booking. Pointers
// distinguish an absent value from a zero one.
type BookingRequest struct {
	VehicleID     uint64
	OperatorID    uint64
	ClientID      uint64
	PickupDate    *time.Time
	ReturnDate    *time.Time
	PricePerDay   *float64
	PaymentMethod string
	Notes         string
}

// BookingService sequences the multi-table writes of a booking: creation of
// the booking, its payment and the first ledger entry, and later payment
// completion.
type BookingService struct {
	tx        Transactor
	bookings  BookingStore
	payments  PaymentStore
	ledger    TransactionStore
	vehicles  VehicleStore
	publisher EventPublisher
	log       *zap.Logger
	now       Clock
	genRef    func() (string, error)
}

// BookingOption customizes a BookingService.
type BookingOption func(*BookingService)

func WithBookingClock(c Clock) BookingOption { return func(s *BookingService) { s.now = c } }

// WithReferenceGenerator replaces the random reference source.
func WithReferenceGenerator(gen func() (string, error)) BookingOption {
	return func(s *BookingService) { s.genRef = gen }
}

func NewBookingService(tx Transactor, bookings BookingStore, payments PaymentStore, ledger TransactionStore,
	vehicles VehicleStore, publisher EventPublisher, log *zap.Logger, opts ...BookingOption) *BookingService {
	s := &BookingService{
		tx:        tx,
		bookings:  bookings,
		payments:  payments,
		ledger:    ledger,
		vehicles:  vehicles,
		publisher: publisher,
		log:       log,
		now:       utcNow,
		genRef:    NewReference,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewReference builds a candidate payment reference such as PAY-7Q2M0ZK4LD.
func NewReference() (string, error) {
	s, err := utils.RandomAlnumUpper(referenceLength)
	if err != nil {
		return "", err
	}
	return referencePrefix + s, nil
}

func (r BookingRequest) validate() error {
	switch {
	case r.VehicleID == 0:
		return apperr.MissingField("vehicle_id")
	case r.OperatorID == 0:
		return apperr.MissingField("operator_id")
	case r.ClientID == 0:
		return apperr.MissingField("client_id")
	case r.PickupDate == nil || r.PickupDate.IsZero():
		return apperr.MissingField("pickup_date")
	case r.ReturnDate == nil || r.ReturnDate.IsZero():
		return apperr.MissingField("return_date")
	case r.PricePerDay == nil:
		return apperr.MissingField("price_per_day")
	case *r.PricePerDay < 0:
		return apperr.Validation("price_per_day", "must not be negative")
	}
	return nil
}

// CreateBooking opens a pending booking with its pending payment and a
// pending credit transaction. The three rows are written in one
// transaction: either all of them exist afterwards or none does. Vehicle
// availability is the caller's precondition (see CatalogService.EnsureAvailable).
func (s *BookingService) CreateBooking(ctx context.Context, req BookingRequest) (model.Booking, error) {
	if err := req.validate(); err != nil {
		return model.Booking{}, err
	}
	pricing := CalculatePricing(*req.PickupDate, *req.ReturnDate, *req.PricePerDay)
	start, end := occupiedRange(*req.PickupDate, *req.ReturnDate)

	var booking model.Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b := model.Booking{
			VehicleID:  req.VehicleID,
			OperatorID: req.OperatorID,
			ClientID:   req.ClientID,
			StartDate:  start,
			EndDate:    end,
			TotalPrice: pricing.TotalPrice,
			Status:     model.BookingPending,
			Notes:      req.Notes,
		}
		if err := s.bookings.Create(ctx, &b); err != nil {
			return err
		}
		p := model.Payment{
			BookingID: b.ID,
			Amount:    pricing.TotalPrice,
			Status:    model.PaymentPending,
			Method:    req.PaymentMethod,
		}
		if err := s.insertWithReference(ctx, &p); err != nil {
			return err
		}
		t := model.Transaction{
			PaymentID: p.ID,
			BookingID: b.ID,
			Amount:    pricing.TotalPrice,
			Type:      model.TransactionCredit,
			Status:    model.TransactionPending,
		}
		if err := s.ledger.Create(ctx, &t); err != nil {
			return err
		}
		b.Payment = &p
		booking = b
		return nil
	})
	if err != nil {
		s.log.Error("create booking failed",
			zap.Uint64("vehicle_id", req.VehicleID),
			zap.Uint64("client_id", req.ClientID),
			zap.Error(err))
		return model.Booking{}, apperr.Wrap(err)
	}
	s.log.Info("booking created",
		zap.Uint64("booking_id", booking.ID),
		zap.String("reference_number", booking.Payment.ReferenceNumber))
	return booking, nil
}

// insertWithReference assigns a fresh reference to p and inserts it. The
// existence check skips known collisions; the unique index catches the
// ones that race past it, and both count against the attempt limit.
func (s *BookingService) insertWithReference(ctx context.Context, p *model.Payment) error {
	for attempt := 0; attempt < MaxReferenceAttempts; attempt++ {
		ref, err := s.genRef()
		if err != nil {
			return err
		}
		exists, err := s.payments.ReferenceExists(ctx, ref)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		p.ReferenceNumber = ref
		err = s.payments.Create(ctx, p)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		return err
	}
	return apperr.ErrReferenceExhausted
}

// CompletePayment settles the pending payment of a client's booking. In
// one transaction it locks the vehicle, rejects the completion when another
// confirmed or ongoing booking overlaps, completes the payment with the
// instrument details, confirms the booking and completes its pending
// transactions. When any step fails the transaction is rolled back and
// the payment is marked failed on a best-effort basis; the completion error
// is returned either way.
func (s *BookingService) CompletePayment(ctx context.Context, bookingID, clientID uint64, details model.PaymentDetails) (model.Booking, error) {
	booking, err := s.Get(ctx, bookingID, clientID)
	if err != nil {
		return model.Booking{}, err
	}
	payment := booking.Payment
	if payment.Status == model.PaymentCompleted {
		return model.Booking{}, errPaymentCompleted
	}
	details = details.Normalize()
	now := s.now()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.vehicles.LockByID(ctx, booking.VehicleID); err != nil {
			return lookupErr(err, "vehicle")
		}
		clash, err := s.bookings.HasBlockingOverlap(ctx, booking.VehicleID, booking.StartDate, booking.EndDate, booking.ID)
		if err != nil {
			return err
		}
		if clash {
			return apperr.Conflict("vehicle is already booked for the selected dates")
		}
		// re-read under the lock; a concurrent completion may have won
		cur, err := s.payments.GetByBookingID(ctx, booking.ID)
		if err != nil {
			return lookupErr(err, "payment")
		}
		if cur.Status == model.PaymentCompleted {
			return errPaymentCompleted
		}
		if err := s.payments.MarkCompleted(ctx, payment.ID, details, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return errPaymentCompleted
			}
			return err
		}
		if err := s.bookings.SetStatus(ctx, booking.ID, model.BookingConfirmed); err != nil {
			return err
		}
		_, err = s.ledger.CompletePending(ctx, payment.ID, now)
		return err
	})
	if err != nil {
		if ferr := s.payments.MarkFailed(ctx, payment.ID, err.Error(), s.now()); ferr != nil {
			s.log.Error("mark payment failed",
				zap.Uint64("payment_id", payment.ID),
				zap.NamedError("cause", err),
				zap.Error(ferr))
		}
		s.log.Error("payment completion failed",
			zap.Uint64("booking_id", booking.ID),
			zap.Uint64("payment_id", payment.ID),
			zap.Error(err))
		return model.Booking{}, apperr.Wrap(err)
	}

	booking.Status = model.BookingConfirmed
	payment.Status = model.PaymentCompleted
	payment.Method = details.Method
	payment.PaidAt = &now
	payment.CardLastFour, payment.CardBrand = details.CardLastFour, details.CardBrand
	payment.EWalletNumber, payment.EWalletEmail = details.EWalletNumber, details.EWalletEmail
	s.log.Info("payment completed",
		zap.Uint64("booking_id", booking.ID),
		zap.String("reference_number", payment.ReferenceNumber))
	s.announce(ctx, booking)
	return booking, nil
}

func (s *BookingService) announce(ctx context.Context, b model.Booking) {
	if s.publisher == nil {
		return
	}
	ev := queue.BookingConfirmedEvent{
		BookingID:       b.ID,
		ClientID:        b.ClientID,
		VehicleID:       b.VehicleID,
		OperatorID:      b.OperatorID,
		ReferenceNumber: b.Payment.ReferenceNumber,
		StartDate:       b.StartDate.Format(time.DateOnly),
		EndDate:         b.EndDate.Format(time.DateOnly),
		TotalAmount:     b.TotalPrice,
		PaymentMethod:   b.Payment.Method,
		ConfirmedAt:     b.Payment.PaidAt.Format(time.RFC3339),
	}
	if err := s.publisher.PublishBookingConfirmed(ctx, ev); err != nil {
		s.log.Warn("publish booking.confirmed failed", zap.Uint64("booking_id", b.ID), zap.Error(err))
	}
}

// Get loads a booking of the client with its payment attached. Bookings of
// other clients are reported as not found.
func (s *BookingService) Get(ctx context.Context, bookingID, clientID uint64) (model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, apperr.Wrap(lookupErr(err, "booking"))
	}
	if b.ClientID != clientID {
		return model.Booking{}, apperr.NotFound("booking")
	}
	p, err := s.payments.GetByBookingID(ctx, b.ID)
	if err != nil {
		return model.Booking{}, apperr.Wrap(lookupErr(err, "payment"))
	}
	b.Payment = &p
	return b, nil
}

// ListForClient returns the client's bookings, newest first.
func (s *BookingService) ListForClient(ctx context.Context, clientID uint64) ([]model.Booking, error) {
	out, err := s.bookings.ListByClient(ctx, clientID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

// Transactions returns the ledger entries of a booking's payment.
func (s *BookingService) Transactions(ctx context.Context, b model.Booking) ([]model.Transaction, error) {
	if b.Payment == nil {
		return []model.Transaction{}, nil
	}
	out, err := s.ledger.ListByPayment(ctx, b.Payment.ID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}
