package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/model"
)

// TransactionRepo persists the ledger entries of payments.
type TransactionRepo struct{ DB *sql.DB }

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{DB: db} }

// Create inserts t and fills ID.
func (r *TransactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	now := time.Now().UTC()
	res, err := conn(ctx, r.DB).ExecContext(ctx, `INSERT INTO transactions
		(payment_id, booking_id, amount, transaction_type, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		t.PaymentID, t.BookingID, t.Amount, string(t.Type), string(t.Status), now, now)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.CreatedAt = now
	return nil
}

// CompletePending completes every pending transaction of the payment.
func (r *TransactionRepo) CompletePending(ctx context.Context, paymentID uint64, at time.Time) (int64, error) {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE transactions SET status='completed', completed_at=?, updated_at=? WHERE payment_id=? AND status='pending'",
		at, at, paymentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByPayment returns the ledger entries of a payment, oldest first.
func (r *TransactionRepo) ListByPayment(ctx context.Context, paymentID uint64) ([]model.Transaction, error) {
	rows, err := conn(ctx, r.DB).QueryContext(ctx, `SELECT id, payment_id, booking_id, amount, transaction_type,
		status, completed_at, failed_at, failure_reason, created_at
		FROM transactions WHERE payment_id=? ORDER BY id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Transaction{}
	for rows.Next() {
		var (
			t                   model.Transaction
			typ, status         string
			completed, failedAt sql.NullTime
			reason              sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.PaymentID, &t.BookingID, &t.Amount, &typ, &status,
			&completed, &failedAt, &reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type, t.Status = model.TransactionType(typ), model.TransactionStatus(status)
		if completed.Valid {
			t.CompletedAt = &completed.Time
		}
		if failedAt.Valid {
			t.FailedAt = &failedAt.Time
		}
		t.FailureReason = reason.String
		out = append(out, t)
	}
	return out, rows.Err()
}
