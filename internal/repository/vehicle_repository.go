package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/vehicle-rental/internal/model"
)

// VehicleRepo reads and writes vehicles together with their attachment
// metadata and the owning operator's location.
type VehicleRepo struct{ DB *sql.DB }

func NewVehicleRepo(db *sql.DB) *VehicleRepo { return &VehicleRepo{DB: db} }

const vehicleColumns = `id, operator_id, license_plate, chassis_number, brand, model, year,
	COALESCE(body_type,''), COALESCE(fuel_type,''), COALESCE(transmission,''), COALESCE(color,''),
	COALESCE(seating_capacity,0), price_per_day, COALESCE(description,''), features,
	is_featured, is_active, rating, reviews, created_at, updated_at`

// VehicleListQuery holds pagination for the active catalog.
type VehicleListQuery struct {
	Page     int
	PageSize int
}

// ListActive returns one page of active vehicles, featured first, and the
// total number of active vehicles.
func (r *VehicleRepo) ListActive(ctx context.Context, q VehicleListQuery) ([]model.Vehicle, int64, error) {
	db := conn(ctx, r.DB)
	var total int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vehicles WHERE is_active=1").Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize
	rows, err := db.QueryContext(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE is_active=1 ORDER BY is_featured DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := scanVehicles(rows, limit)
	return out, total, err
}

// ListByOperator returns every vehicle the operator owns, active or not.
func (r *VehicleRepo) ListByOperator(ctx context.Context, operatorID uint64) ([]model.Vehicle, error) {
	rows, err := conn(ctx, r.DB).QueryContext(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE operator_id=? ORDER BY id DESC", operatorID)
	if err != nil {
		return nil, err
	}
	return scanVehicles(rows, 0)
}

// GetByID fetches a vehicle regardless of its active flag.
func (r *VehicleRepo) GetByID(ctx context.Context, id uint64) (model.Vehicle, error) {
	return scanVehicle(conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE id=?", id))
}

// LockByID fetches a vehicle with a row lock held until the transaction
// ends. Payment completion locks the vehicle before re-checking overlaps.
func (r *VehicleRepo) LockByID(ctx context.Context, id uint64) (model.Vehicle, error) {
	return scanVehicle(conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE id=? FOR UPDATE", id))
}

// Create inserts v and fills its ID.
func (r *VehicleRepo) Create(ctx context.Context, v *model.Vehicle) error {
	features, err := encodeFeatures(v.Features)
	if err != nil {
		return err
	}
	res, err := conn(ctx, r.DB).ExecContext(ctx, `INSERT INTO vehicles
		(operator_id, license_plate, chassis_number, brand, model, year, body_type, fuel_type,
		 transmission, color, seating_capacity, price_per_day, description, features, is_featured, is_active)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		v.OperatorID, v.LicensePlate, v.ChassisNumber, v.Brand, v.Model, v.Year, v.BodyType, v.FuelType,
		v.Transmission, v.Color, v.SeatingCapacity, v.PricePerDay, v.Description, features, v.IsFeatured, v.IsActive)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

// Update overwrites the mutable columns of v.
func (r *VehicleRepo) Update(ctx context.Context, v *model.Vehicle) error {
	features, err := encodeFeatures(v.Features)
	if err != nil {
		return err
	}
	res, err := conn(ctx, r.DB).ExecContext(ctx, `UPDATE vehicles SET
		license_plate=?, chassis_number=?, brand=?, model=?, year=?, body_type=?, fuel_type=?,
		transmission=?, color=?, seating_capacity=?, price_per_day=?, description=?, features=?,
		is_featured=?, is_active=?
		WHERE id=?`,
		v.LicensePlate, v.ChassisNumber, v.Brand, v.Model, v.Year, v.BodyType, v.FuelType,
		v.Transmission, v.Color, v.SeatingCapacity, v.PricePerDay, v.Description, features,
		v.IsFeatured, v.IsActive, v.ID)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

// Delete removes a vehicle. Vehicles referenced by bookings yield ErrConflict.
func (r *VehicleRepo) Delete(ctx context.Context, id uint64) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx, "DELETE FROM vehicles WHERE id=?", id)
	if err != nil {
		return translate(err)
	}
	return requireAffected(res)
}

// ListAttachments returns the attachment metadata of a vehicle, oldest first.
func (r *VehicleRepo) ListAttachments(ctx context.Context, vehicleID uint64) ([]model.VehicleAttachment, error) {
	rows, err := conn(ctx, r.DB).QueryContext(ctx,
		"SELECT id, vehicle_id, attachment_type, attachment_url, created_at FROM vehicle_attachments WHERE vehicle_id=? ORDER BY id",
		vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.VehicleAttachment{}
	for rows.Next() {
		var a model.VehicleAttachment
		if err := rows.Scan(&a.ID, &a.VehicleID, &a.AttachmentType, &a.AttachmentURL, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddAttachment records attachment metadata and fills its ID.
func (r *VehicleRepo) AddAttachment(ctx context.Context, a *model.VehicleAttachment) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO vehicle_attachments (vehicle_id, attachment_type, attachment_url) VALUES (?,?,?)",
		a.VehicleID, a.AttachmentType, a.AttachmentURL)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// ActiveLocation returns the operator's active pickup location.
func (r *VehicleRepo) ActiveLocation(ctx context.Context, operatorID uint64) (model.OperatorLocation, error) {
	var (
		l        model.OperatorLocation
		lat, lng sql.NullFloat64
		state    sql.NullString
		postal   sql.NullString
	)
	err := conn(ctx, r.DB).QueryRowContext(ctx, `SELECT id, operator_id, address, city, state, postal_code, country,
		latitude, longitude, is_active
		FROM operator_locations WHERE operator_id=? AND is_active=1 ORDER BY id DESC LIMIT 1`, operatorID).
		Scan(&l.ID, &l.OperatorID, &l.Address, &l.City, &state, &postal, &l.Country, &lat, &lng, &l.IsActive)
	if err != nil {
		return model.OperatorLocation{}, translate(err)
	}
	l.State, l.PostalCode = state.String, postal.String
	if lat.Valid {
		l.Latitude = &lat.Float64
	}
	if lng.Valid {
		l.Longitude = &lng.Float64
	}
	return l, nil
}

func scanVehicles(rows *sql.Rows, capHint int) ([]model.Vehicle, error) {
	defer rows.Close()
	out := make([]model.Vehicle, 0, capHint)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVehicle(row rowScanner) (model.Vehicle, error) {
	var (
		v        model.Vehicle
		features []byte
	)
	err := row.Scan(&v.ID, &v.OperatorID, &v.LicensePlate, &v.ChassisNumber, &v.Brand, &v.Model, &v.Year,
		&v.BodyType, &v.FuelType, &v.Transmission, &v.Color, &v.SeatingCapacity, &v.PricePerDay,
		&v.Description, &features, &v.IsFeatured, &v.IsActive, &v.Rating, &v.Reviews, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return model.Vehicle{}, translate(err)
	}
	v.Features = []string{}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &v.Features); err != nil {
			return model.Vehicle{}, err
		}
	}
	return v, nil
}

func encodeFeatures(f []string) ([]byte, error) {
	if f == nil {
		f = []string{}
	}
	return json.Marshal(f)
}
