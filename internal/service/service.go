// Package service holds the booking pipeline: OTP issuance and verification,
// pricing, booking creation and payment completion, and the vehicle catalog.
// Services receive their stores and collaborators through constructors; the
// MySQL repositories satisfy the store interfaces in production and the
// in-memory store does in tests.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/queue"
	"github.com/iliyamo/vehicle-rental/internal/repository"
)

// Transactor runs fn inside one atomic unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	LockByID(ctx context.Context, id uint64) (model.User, error)
	MarkVerified(ctx context.Context, id uint64, at time.Time) error
}

type OTPStore interface {
	ExpireActive(ctx context.Context, userID uint64) (int64, error)
	CancelActive(ctx context.Context, userID uint64) (int64, error)
	Create(ctx context.Context, o *model.OTP) error
	FindActive(ctx context.Context, userID uint64, code string) (model.OTP, error)
	LatestActive(ctx context.Context, userID uint64) (model.OTP, error)
	SetStatus(ctx context.Context, id uint64, status model.OTPStatus) error
	LatestCreatedAt(ctx context.Context, userID uint64) (time.Time, error)
}

type VehicleStore interface {
	GetByID(ctx context.Context, id uint64) (model.Vehicle, error)
	LockByID(ctx context.Context, id uint64) (model.Vehicle, error)
	ListActive(ctx context.Context, q repository.VehicleListQuery) ([]model.Vehicle, int64, error)
	ListByOperator(ctx context.Context, operatorID uint64) ([]model.Vehicle, error)
	Create(ctx context.Context, v *model.Vehicle) error
	Update(ctx context.Context, v *model.Vehicle) error
	Delete(ctx context.Context, id uint64) error
	ListAttachments(ctx context.Context, vehicleID uint64) ([]model.VehicleAttachment, error)
	AddAttachment(ctx context.Context, a *model.VehicleAttachment) error
	ActiveLocation(ctx context.Context, operatorID uint64) (model.OperatorLocation, error)
}

type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (model.Booking, error)
	ListByClient(ctx context.Context, clientID uint64) ([]model.Booking, error)
	SetStatus(ctx context.Context, id uint64, status model.BookingStatus) error
	HasBlockingOverlap(ctx context.Context, vehicleID uint64, start, end time.Time, excludeID uint64) (bool, error)
}

type PaymentStore interface {
	ReferenceExists(ctx context.Context, ref string) (bool, error)
	Create(ctx context.Context, p *model.Payment) error
	GetByBookingID(ctx context.Context, bookingID uint64) (model.Payment, error)
	MarkCompleted(ctx context.Context, id uint64, d model.PaymentDetails, at time.Time) error
	MarkFailed(ctx context.Context, id uint64, reason string, at time.Time) error
}

type TransactionStore interface {
	Create(ctx context.Context, t *model.Transaction) error
	CompletePending(ctx context.Context, paymentID uint64, at time.Time) (int64, error)
	ListByPayment(ctx context.Context, paymentID uint64) ([]model.Transaction, error)
}

// Notifier delivers an OTP to the user's mailbox.
type Notifier interface {
	SendOTP(ctx context.Context, email, code string) error
}

// EventPublisher announces confirmed bookings to downstream consumers.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
