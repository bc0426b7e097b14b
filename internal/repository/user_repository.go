package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,name,email,password_hash,role,phone,is_verified,email_verified_at,profile_completed,created_at,updated_at"

// Create inserts user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role) VALUES (?,?,?,?)",
		strings.TrimSpace(name), email, hash, role)
	if err != nil {
		if errors.Is(translate(err), ErrDuplicate) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// LockByID fetches a user and holds a row lock until the surrounding
// transaction ends. It is the per-user serialization point for OTP writes.
func (r *UserRepo) LockByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? FOR UPDATE", id))
}

// MarkVerified sets the verification flag and its audit timestamp.
func (r *UserRepo) MarkVerified(ctx context.Context, id uint64, at time.Time) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE users SET is_verified=1, email_verified_at=?, updated_at=? WHERE id=?", at, at, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// CompleteProfile stores the client profile fields and flips profile_completed.
func (r *UserRepo) CompleteProfile(ctx context.Context, id uint64, name, phone string) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE users SET name=?, phone=?, profile_completed=1 WHERE id=?", name, phone, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(row rowScanner) (model.User, error) {
	var (
		u          model.User
		phone      sql.NullString
		verifiedAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &phone,
		&u.Verified, &verifiedAt, &u.ProfileCompleted, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, translate(err)
	}
	u.Phone = phone.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.VerifiedAt = &t
	}
	return u, nil
}

// requireAffected turns an UPDATE that touched nothing into ErrNotFound.
// MySQL reports matched-but-unchanged rows as 0 unless CLIENT_FOUND_ROWS
// is set, which database.Open enables.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
