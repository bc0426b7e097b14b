package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/repository"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 50
	// DefaultPickupTime and DefaultReturnTime prefill the booking form.
	DefaultPickupTime = "09:00"
	DefaultReturnTime = "09:00"
)

// CacheInvalidator drops cached catalog responses after a vehicle changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// VehiclePage is one page of the public catalog.
type VehiclePage struct {
	Vehicles []model.Vehicle `json:"vehicles"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Total    int64           `json:"total"`
}

// VehicleDetail is the public view of a single vehicle.
type VehicleDetail struct {
	model.Vehicle
	DisplayName  string                    `json:"display_name"`
	PrimaryPhoto string                    `json:"primary_photo"`
	Attachments  []model.VehicleAttachment `json:"attachments"`
	Location     *model.OperatorLocation   `json:"location,omitempty"`
}

// PaymentQuote prefills the payment form of a vehicle.
type PaymentQuote struct {
	VehicleID    uint64    `json:"vehicle_id"`
	OperatorID   uint64    `json:"operator_id"`
	VehicleName  string    `json:"vehicle_name"`
	VehicleImage string    `json:"vehicle_image"`
	PricePerDay  float64   `json:"price_per_day"`
	PickupDate   time.Time `json:"pickup_date"`
	ReturnDate   time.Time `json:"return_date"`
	PickupTime   string    `json:"pickup_time"`
	ReturnTime   string    `json:"return_time"`
	Pricing      Pricing   `json:"pricing"`
}

// CatalogService serves the public vehicle catalog, answers availability
// questions and lets operators manage the vehicles they own.
type CatalogService struct {
	vehicles VehicleStore
	bookings BookingStore
	cache    CacheInvalidator
	log      *zap.Logger
	now      Clock
}

type CatalogOption func(*CatalogService)

func WithCatalogClock(c Clock) CatalogOption { return func(s *CatalogService) { s.now = c } }

func WithCacheInvalidator(ci CacheInvalidator) CatalogOption {
	return func(s *CatalogService) { s.cache = ci }
}

func NewCatalogService(vehicles VehicleStore, bookings BookingStore, log *zap.Logger, opts ...CatalogOption) *CatalogService {
	s := &CatalogService{vehicles: vehicles, bookings: bookings, log: log, now: utcNow}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListActive returns a page of active vehicles. Out-of-range paging
// arguments fall back to the defaults.
func (s *CatalogService) ListActive(ctx context.Context, page, pageSize int) (VehiclePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	list, total, err := s.vehicles.ListActive(ctx, repository.VehicleListQuery{Page: page, PageSize: pageSize})
	if err != nil {
		return VehiclePage{}, apperr.Wrap(err)
	}
	return VehiclePage{Vehicles: list, Page: page, PageSize: pageSize, Total: total}, nil
}

// GetActive loads an active vehicle with its attachments and the operator's
// pickup location. Inactive vehicles are reported as not found.
func (s *CatalogService) GetActive(ctx context.Context, id uint64) (VehicleDetail, error) {
	v, err := s.activeVehicle(ctx, id)
	if err != nil {
		return VehicleDetail{}, err
	}
	atts, err := s.vehicles.ListAttachments(ctx, id)
	if err != nil {
		return VehicleDetail{}, apperr.Wrap(err)
	}
	d := VehicleDetail{
		Vehicle:      v,
		DisplayName:  v.DisplayName(),
		PrimaryPhoto: PrimaryPhoto(atts),
		Attachments:  atts,
	}
	loc, err := s.vehicles.ActiveLocation(ctx, v.OperatorID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return VehicleDetail{}, apperr.Wrap(err)
	default:
		d.Location = &loc
	}
	return d, nil
}

func (s *CatalogService) activeVehicle(ctx context.Context, id uint64) (model.Vehicle, error) {
	v, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return model.Vehicle{}, apperr.Wrap(lookupErr(err, "vehicle"))
	}
	if !v.IsActive {
		return model.Vehicle{}, apperr.NotFound("vehicle")
	}
	return v, nil
}

// PrimaryPhoto picks the first vehicle photo, or the placeholder image.
func PrimaryPhoto(atts []model.VehicleAttachment) string {
	for _, a := range atts {
		if a.AttachmentType == model.AttachmentVehiclePhoto && a.AttachmentURL != "" {
			return a.AttachmentURL
		}
	}
	return model.PlaceholderImage
}

// IsAvailable reports whether no confirmed or ongoing booking of the vehicle
// overlaps [start, end).
func (s *CatalogService) IsAvailable(ctx context.Context, vehicleID uint64, start, end time.Time) (bool, error) {
	start, end, err := bookingRange(start, end)
	if err != nil {
		return false, err
	}
	clash, err := s.bookings.HasBlockingOverlap(ctx, vehicleID, start, end, 0)
	if err != nil {
		return false, apperr.Wrap(err)
	}
	return !clash, nil
}

// EnsureAvailable fails with a conflict when the vehicle is taken for the
// requested dates.
func (s *CatalogService) EnsureAvailable(ctx context.Context, vehicleID uint64, start, end time.Time) error {
	ok, err := s.IsAvailable(ctx, vehicleID, start, end)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("vehicle is already booked for the selected dates")
	}
	return nil
}

// bookingRange truncates to dates and applies the one-day floor used for
// pricing, so the occupied range always matches the billed one.
func bookingRange(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() {
		return start, end, apperr.MissingField("pickup_date")
	}
	if end.IsZero() {
		return start, end, apperr.MissingField("return_date")
	}
	start, end = occupiedRange(start, end)
	return start, end, nil
}

// QuoteInput holds the optional form values of a payment quote.
type QuoteInput struct {
	PickupDate *time.Time
	ReturnDate *time.Time
	PickupTime string
	ReturnTime string
}

// Quote builds the payment form of a vehicle. Missing values default to a
// pickup tomorrow, a return the day after, and 09:00 for both times.
func (s *CatalogService) Quote(ctx context.Context, vehicleID uint64, in QuoteInput) (PaymentQuote, error) {
	v, err := s.activeVehicle(ctx, vehicleID)
	if err != nil {
		return PaymentQuote{}, err
	}
	atts, err := s.vehicles.ListAttachments(ctx, vehicleID)
	if err != nil {
		return PaymentQuote{}, apperr.Wrap(err)
	}
	today := dateOnly(s.now())
	p := today.AddDate(0, 0, 1)
	if in.PickupDate != nil && !in.PickupDate.IsZero() {
		p = dateOnly(*in.PickupDate)
	}
	r := today.AddDate(0, 0, 2)
	if in.ReturnDate != nil && !in.ReturnDate.IsZero() {
		r = dateOnly(*in.ReturnDate)
	} else if !r.After(p) {
		r = p.AddDate(0, 0, 1)
	}
	q := PaymentQuote{
		VehicleID:    v.ID,
		OperatorID:   v.OperatorID,
		VehicleName:  v.DisplayName(),
		VehicleImage: PrimaryPhoto(atts),
		PricePerDay:  v.PricePerDay,
		PickupDate:   p,
		ReturnDate:   r,
		PickupTime:   DefaultPickupTime,
		ReturnTime:   DefaultReturnTime,
		Pricing:      CalculatePricing(p, r, v.PricePerDay),
	}
	if in.PickupTime != "" {
		q.PickupTime = in.PickupTime
	}
	if in.ReturnTime != "" {
		q.ReturnTime = in.ReturnTime
	}
	return q, nil
}

// ListByOperator returns every vehicle the operator owns.
func (s *CatalogService) ListByOperator(ctx context.Context, operatorID uint64) ([]model.Vehicle, error) {
	out, err := s.vehicles.ListByOperator(ctx, operatorID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

// CreateVehicle registers v under the operator.
func (s *CatalogService) CreateVehicle(ctx context.Context, operatorID uint64, v model.Vehicle) (model.Vehicle, error) {
	if err := validateVehicle(v); err != nil {
		return model.Vehicle{}, err
	}
	v.ID = 0
	v.OperatorID = operatorID
	if err := s.vehicles.Create(ctx, &v); err != nil {
		return model.Vehicle{}, vehicleWriteErr(err)
	}
	s.invalidate(ctx)
	s.log.Info("vehicle created", zap.Uint64("vehicle_id", v.ID), zap.Uint64("operator_id", operatorID))
	return v, nil
}

// UpdateVehicle replaces the mutable fields of a vehicle the operator owns.
func (s *CatalogService) UpdateVehicle(ctx context.Context, operatorID, id uint64, v model.Vehicle) (model.Vehicle, error) {
	if err := validateVehicle(v); err != nil {
		return model.Vehicle{}, err
	}
	cur, err := s.owned(ctx, operatorID, id)
	if err != nil {
		return model.Vehicle{}, err
	}
	v.ID, v.OperatorID = cur.ID, cur.OperatorID
	v.Rating, v.Reviews, v.CreatedAt = cur.Rating, cur.Reviews, cur.CreatedAt
	if err := s.vehicles.Update(ctx, &v); err != nil {
		return model.Vehicle{}, vehicleWriteErr(err)
	}
	s.invalidate(ctx)
	return v, nil
}

// DeleteVehicle removes a vehicle the operator owns. Vehicles with bookings
// cannot be deleted.
func (s *CatalogService) DeleteVehicle(ctx context.Context, operatorID, id uint64) error {
	if _, err := s.owned(ctx, operatorID, id); err != nil {
		return err
	}
	if err := s.vehicles.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperr.Conflict("vehicle has bookings and cannot be deleted")
		}
		return apperr.Wrap(lookupErr(err, "vehicle"))
	}
	s.invalidate(ctx)
	s.log.Info("vehicle deleted", zap.Uint64("vehicle_id", id), zap.Uint64("operator_id", operatorID))
	return nil
}

// AddAttachment records attachment metadata on a vehicle the operator owns.
func (s *CatalogService) AddAttachment(ctx context.Context, operatorID, vehicleID uint64, kind, url string) (model.VehicleAttachment, error) {
	if !ValidAttachmentType(kind) {
		return model.VehicleAttachment{}, apperr.Validation("attachment_type", "unsupported attachment type")
	}
	if strings.TrimSpace(url) == "" {
		return model.VehicleAttachment{}, apperr.MissingField("attachment_url")
	}
	if _, err := s.owned(ctx, operatorID, vehicleID); err != nil {
		return model.VehicleAttachment{}, err
	}
	a := model.VehicleAttachment{VehicleID: vehicleID, AttachmentType: kind, AttachmentURL: url}
	if err := s.vehicles.AddAttachment(ctx, &a); err != nil {
		return model.VehicleAttachment{}, apperr.Wrap(err)
	}
	s.invalidate(ctx)
	return a, nil
}

// ValidAttachmentType reports whether kind is an accepted attachment type.
func ValidAttachmentType(kind string) bool {
	switch kind {
	case model.AttachmentOR, model.AttachmentCR, model.AttachmentInsurance,
		model.AttachmentVehiclePhoto, model.AttachmentOther:
		return true
	}
	return false
}

func (s *CatalogService) owned(ctx context.Context, operatorID, id uint64) (model.Vehicle, error) {
	v, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return model.Vehicle{}, apperr.Wrap(lookupErr(err, "vehicle"))
	}
	if v.OperatorID != operatorID {
		return model.Vehicle{}, apperr.ErrUnauthorizedOwnership
	}
	return v, nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func validateVehicle(v model.Vehicle) error {
	switch {
	case strings.TrimSpace(v.LicensePlate) == "":
		return apperr.MissingField("license_plate")
	case strings.TrimSpace(v.ChassisNumber) == "":
		return apperr.MissingField("chassis_number")
	case strings.TrimSpace(v.Brand) == "":
		return apperr.MissingField("brand")
	case strings.TrimSpace(v.Model) == "":
		return apperr.MissingField("model")
	case v.PricePerDay <= 0:
		return apperr.Validation("price_per_day", "must be greater than zero")
	}
	return nil
}

func vehicleWriteErr(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return apperr.Conflict("license plate or chassis number already registered")
	}
	return apperr.Wrap(lookupErr(err, "vehicle"))
}
