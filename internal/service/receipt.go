package service

import (
	"context"
	"time"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/model"
)

// ReceiptSummary is the short form of a receipt shown after payment.
type ReceiptSummary struct {
	ReferenceNumber string              `json:"reference_number"`
	VehicleName     string              `json:"vehicle_name"`
	RentalDays      int                 `json:"rental_days"`
	TotalAmount     float64             `json:"total_amount"`
	PaymentMethod   string              `json:"payment_method"`
	PaymentStatus   model.PaymentStatus `json:"payment_status"`
	PaidAt          *time.Time          `json:"paid_at"`
}

// Receipt is the printable receipt of a paid booking.
type Receipt struct {
	Summary      ReceiptSummary `json:"summary"`
	Booking      model.Booking  `json:"booking"`
	VehicleImage string         `json:"vehicle_image"`
	CompanyName  string         `json:"company_name"`
}

// ReceiptService renders receipts for bookings whose payment completed.
type ReceiptService struct {
	bookings *BookingService
	vehicles VehicleStore
	company  string
}

func NewReceiptService(bookings *BookingService, vehicles VehicleStore, company string) *ReceiptService {
	return &ReceiptService{bookings: bookings, vehicles: vehicles, company: company}
}

// Build returns the receipt of the client's booking. Bookings whose payment
// has not completed have no receipt yet.
func (s *ReceiptService) Build(ctx context.Context, bookingID, clientID uint64) (Receipt, error) {
	b, err := s.bookings.Get(ctx, bookingID, clientID)
	if err != nil {
		return Receipt{}, err
	}
	if b.Payment.Status != model.PaymentCompleted {
		return Receipt{}, apperr.Conflict("Receipt is only available for completed payments.")
	}
	v, err := s.vehicles.GetByID(ctx, b.VehicleID)
	if err != nil {
		return Receipt{}, apperr.Wrap(lookupErr(err, "vehicle"))
	}
	atts, err := s.vehicles.ListAttachments(ctx, b.VehicleID)
	if err != nil {
		return Receipt{}, apperr.Wrap(err)
	}
	days := int(b.EndDate.Sub(b.StartDate).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return Receipt{
		Summary: ReceiptSummary{
			ReferenceNumber: b.Payment.ReferenceNumber,
			VehicleName:     v.DisplayName(),
			RentalDays:      days,
			TotalAmount:     b.Payment.Amount,
			PaymentMethod:   b.Payment.Method,
			PaymentStatus:   b.Payment.Status,
			PaidAt:          b.Payment.PaidAt,
		},
		Booking:      b,
		VehicleImage: PrimaryPhoto(atts),
		CompanyName:  s.company,
	}, nil
}
