package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/model"
)

// OTPRepo persists one-time passcodes. The otps table carries a generated
// column active_user_id (user_id while status='active', NULL otherwise)
// with a unique index, so the store itself refuses a second active code.
type OTPRepo struct{ DB *sql.DB }

func NewOTPRepo(db *sql.DB) *OTPRepo { return &OTPRepo{DB: db} }

// ExpireActive moves every active code of the user to expired.
func (r *OTPRepo) ExpireActive(ctx context.Context, userID uint64) (int64, error) {
	return r.moveActive(ctx, userID, model.OTPExpired)
}

// CancelActive moves every active code of the user to cancelled.
func (r *OTPRepo) CancelActive(ctx context.Context, userID uint64) (int64, error) {
	return r.moveActive(ctx, userID, model.OTPCancelled)
}

func (r *OTPRepo) moveActive(ctx context.Context, userID uint64, to model.OTPStatus) (int64, error) {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE otps SET status=?, updated_at=UTC_TIMESTAMP() WHERE user_id=? AND status='active'",
		string(to), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Create inserts o as given and fills ID.
func (r *OTPRepo) Create(ctx context.Context, o *model.OTP) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO otps (user_id, code, status, created_at, updated_at) VALUES (?,?,?,?,?)",
		o.UserID, o.Code, string(o.Status), o.CreatedAt, o.CreatedAt)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	o.UpdatedAt = o.CreatedAt
	return nil
}

// FindActive returns the active code matching user and code.
func (r *OTPRepo) FindActive(ctx context.Context, userID uint64, code string) (model.OTP, error) {
	var (
		o      model.OTP
		status string
	)
	err := conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT id, user_id, code, status, created_at, updated_at FROM otps WHERE user_id=? AND code=? AND status='active' ORDER BY id DESC LIMIT 1",
		userID, code).Scan(&o.ID, &o.UserID, &o.Code, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.OTP{}, translate(err)
	}
	o.Status = model.OTPStatus(status)
	return o, nil
}

// LatestActive returns the user's newest active code.
func (r *OTPRepo) LatestActive(ctx context.Context, userID uint64) (model.OTP, error) {
	var (
		o      model.OTP
		status string
	)
	err := conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT id, user_id, code, status, created_at, updated_at FROM otps WHERE user_id=? AND status='active' ORDER BY id DESC LIMIT 1",
		userID).Scan(&o.ID, &o.UserID, &o.Code, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.OTP{}, translate(err)
	}
	o.Status = model.OTPStatus(status)
	return o, nil
}

// SetStatus moves a single active code to a terminal status. Codes that
// already left active are not touched and yield ErrNotFound.
func (r *OTPRepo) SetStatus(ctx context.Context, id uint64, status model.OTPStatus) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE otps SET status=?, updated_at=UTC_TIMESTAMP() WHERE id=? AND status='active'",
		string(status), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// LatestCreatedAt returns when the user's newest code (any status) was issued.
func (r *OTPRepo) LatestCreatedAt(ctx context.Context, userID uint64) (time.Time, error) {
	var at sql.NullTime
	err := conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT MAX(created_at) FROM otps WHERE user_id=?", userID).Scan(&at)
	if err != nil {
		return time.Time{}, err
	}
	if !at.Valid {
		return time.Time{}, ErrNotFound
	}
	return at.Time, nil
}
