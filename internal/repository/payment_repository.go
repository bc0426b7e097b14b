package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/model"
)

// PaymentRepo persists payments. payments.reference_number and
// payments.booking_id both carry unique indexes.
type PaymentRepo struct{ DB *sql.DB }

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{DB: db} }

// ReferenceExists reports whether a payment already uses ref.
func (r *PaymentRepo) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var n int
	err := conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments WHERE reference_number=?", ref).Scan(&n)
	return n > 0, err
}

// Create inserts p and fills ID. A reference collision yields ErrDuplicate.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	now := time.Now().UTC()
	res, err := conn(ctx, r.DB).ExecContext(ctx, `INSERT INTO payments
		(booking_id, reference_number, amount, payment_status, payment_method, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		p.BookingID, p.ReferenceNumber, p.Amount, string(p.Status), p.Method, now, now)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// GetByBookingID fetches the payment of a booking.
func (r *PaymentRepo) GetByBookingID(ctx context.Context, bookingID uint64) (model.Payment, error) {
	var (
		p                          model.Payment
		status                     string
		paidAt, failedAt           sql.NullTime
		reason, last4, brand       sql.NullString
		ewalletNumber, ewalletMail sql.NullString
	)
	err := conn(ctx, r.DB).QueryRowContext(ctx, `SELECT id, booking_id, reference_number, amount, payment_status,
		payment_method, paid_at, failed_at, failure_reason, card_last_four, card_brand, ewallet_number,
		ewallet_email, created_at, updated_at
		FROM payments WHERE booking_id=?`, bookingID).Scan(
		&p.ID, &p.BookingID, &p.ReferenceNumber, &p.Amount, &status, &p.Method, &paidAt, &failedAt,
		&reason, &last4, &brand, &ewalletNumber, &ewalletMail, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Payment{}, translate(err)
	}
	p.Status = model.PaymentStatus(status)
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	if failedAt.Valid {
		p.FailedAt = &failedAt.Time
	}
	p.FailureReason, p.CardLastFour, p.CardBrand = reason.String, last4.String, brand.String
	p.EWalletNumber, p.EWalletEmail = ewalletNumber.String, ewalletMail.String
	return p, nil
}

// MarkCompleted records the instrument details and completes the payment.
// A payment that is already completed is left alone and yields ErrNotFound.
func (r *PaymentRepo) MarkCompleted(ctx context.Context, id uint64, d model.PaymentDetails, at time.Time) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx, `UPDATE payments SET
		payment_status='completed', payment_method=?, paid_at=?, card_last_four=?, card_brand=?,
		ewallet_number=?, ewallet_email=?, updated_at=?
		WHERE id=? AND payment_status<>'completed'`,
		d.Method, at, nullString(d.CardLastFour), nullString(d.CardBrand),
		nullString(d.EWalletNumber), nullString(d.EWalletEmail), at, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// MarkFailed records a failure reason. It is used outside any transaction
// after a rolled back completion and never downgrades a completed payment.
func (r *PaymentRepo) MarkFailed(ctx context.Context, id uint64, reason string, at time.Time) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE payments SET payment_status='failed', failed_at=?, failure_reason=?, updated_at=? WHERE id=? AND payment_status<>'completed'",
		at, reason, at, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
