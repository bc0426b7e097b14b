package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/model"
)

// BookingRepo provides persistence for bookings. Dates are stored as DATE
// columns and come back as UTC midnight.
type BookingRepo struct{ DB *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{DB: db} }

const bookingColumns = "id, vehicle_id, operator_id, client_id, start_date, end_date, total_price, status, COALESCE(notes,''), created_at, updated_at"

// Create inserts b and fills ID and timestamps.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	now := time.Now().UTC()
	res, err := conn(ctx, r.DB).ExecContext(ctx, `INSERT INTO bookings
		(vehicle_id, operator_id, client_id, start_date, end_date, total_price, status, notes, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		b.VehicleID, b.OperatorID, b.ClientID, b.StartDate, b.EndDate, b.TotalPrice, string(b.Status),
		nullString(b.Notes), now, now)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

// GetByID fetches a booking.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	return scanBooking(conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE id=?", id))
}

// ListByClient returns the client's bookings, newest first.
func (r *BookingRepo) ListByClient(ctx context.Context, clientID uint64) ([]model.Booking, error) {
	rows, err := conn(ctx, r.DB).QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE client_id=? ORDER BY id DESC", clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetStatus updates a booking's status.
func (r *BookingRepo) SetStatus(ctx context.Context, id uint64, status model.BookingStatus) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE bookings SET status=?, updated_at=UTC_TIMESTAMP() WHERE id=?", string(status), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// HasBlockingOverlap reports whether another confirmed or ongoing booking of
// the vehicle intersects [start, end). excludeID skips the caller's own row.
func (r *BookingRepo) HasBlockingOverlap(ctx context.Context, vehicleID uint64, start, end time.Time, excludeID uint64) (bool, error) {
	var n int
	err := conn(ctx, r.DB).QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings
		WHERE vehicle_id=? AND id<>? AND status IN ('confirmed','ongoing')
		AND start_date < ? AND end_date > ?`,
		vehicleID, excludeID, end, start).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	err := row.Scan(&b.ID, &b.VehicleID, &b.OperatorID, &b.ClientID, &b.StartDate, &b.EndDate,
		&b.TotalPrice, &status, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, translate(err)
	}
	b.Status = model.BookingStatus(status)
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
