package handler

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/vehicle-rental/internal/apperr"
	"github.com/iliyamo/vehicle-rental/internal/middleware"
	"github.com/iliyamo/vehicle-rental/internal/model"
	"github.com/iliyamo/vehicle-rental/internal/service"
)

// BookingHandler serves the client booking flow: vehicle pages, the payment
// form, booking creation, the payment gateway callback, confirmation and
// receipt. JWT authentication, the client role, a completed profile and a
// verified account are enforced by middleware before any method runs.
type BookingHandler struct {
	Catalog  *service.CatalogService
	Bookings *service.BookingService
	Receipts *service.ReceiptService
	Log      *zap.Logger
}

func NewBookingHandler(catalog *service.CatalogService, bookings *service.BookingService, receipts *service.ReceiptService, log *zap.Logger) *BookingHandler {
	if catalog == nil || bookings == nil || receipts == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Catalog: catalog, Bookings: bookings, Receipts: receipts, Log: log}
}

// ----- DTOs -----

type createBookingReq struct {
	PickupDate    string `json:"pickup_date" form:"pickup_date"`
	ReturnDate    string `json:"return_date" form:"return_date"`
	PickupTime    string `json:"pickup_time" form:"pickup_time"`
	ReturnTime    string `json:"return_time" form:"return_time"`
	PaymentMethod string `json:"payment_method" form:"payment_method" validate:"required,payment_method"`
	Notes         string `json:"notes" form:"notes" validate:"max=1000"`
}

type completePaymentReq struct {
	PaymentMethod string `json:"payment_method" form:"payment_method" validate:"required,payment_method"`
	CardNumber    string `json:"card_number" form:"card_number"`
	CardBrand     string `json:"card_brand" form:"card_brand"`
	EWalletNumber string `json:"ewallet_number" form:"ewallet_number"`
	EWalletEmail  string `json:"ewallet_email" form:"ewallet_email" validate:"omitempty,email"`
}

// Index handles GET /client/booking, the vehicle list of the booking flow.
func (h *BookingHandler) Index(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("per_page"))
	out, err := h.Catalog.ListActive(c.Request().Context(), page, size)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"data": out})
}

// Vehicle handles GET /client/booking/:vehicle_id.
func (h *BookingHandler) Vehicle(c echo.Context) error {
	id, err := pathID(c, "vehicle_id")
	if err != nil {
		return err
	}
	d, err := h.Catalog.GetActive(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"vehicle": d})
}

// PaymentForm handles GET /client/booking/:vehicle_id/payment. Query values
// pickup_date, return_date, pickup_time and return_time are optional.
func (h *BookingHandler) PaymentForm(c echo.Context) error {
	id, err := pathID(c, "vehicle_id")
	if err != nil {
		return err
	}
	in := service.QuoteInput{PickupTime: c.QueryParam("pickup_time"), ReturnTime: c.QueryParam("return_time")}
	if in.PickupDate, err = parseDate("pickup_date", c.QueryParam("pickup_date")); err != nil {
		return err
	}
	if in.ReturnDate, err = parseDate("return_date", c.QueryParam("return_date")); err != nil {
		return err
	}
	q, err := h.Catalog.Quote(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"quote": q})
}

// Create handles POST /client/booking/:vehicle_id/payment. The vehicle must
// be free for the requested dates; the booking, its payment and the first
// ledger entry are then created together.
func (h *BookingHandler) Create(c echo.Context) error {
	vehicleID, err := pathID(c, "vehicle_id")
	if err != nil {
		return err
	}
	var req createBookingReq
	if err := bind(c, &req); err != nil {
		return err
	}
	pickup, err := parseDate("pickup_date", req.PickupDate)
	if err != nil {
		return err
	}
	ret, err := parseDate("return_date", req.ReturnDate)
	if err != nil {
		return err
	}
	if pickup == nil {
		return apperr.MissingField("pickup_date")
	}
	if ret == nil {
		return apperr.MissingField("return_date")
	}

	ctx := c.Request().Context()
	v, err := h.Catalog.GetActive(ctx, vehicleID)
	if err != nil {
		return err
	}
	if err := h.Catalog.EnsureAvailable(ctx, vehicleID, *pickup, *ret); err != nil {
		return err
	}
	b, err := h.Bookings.CreateBooking(ctx, service.BookingRequest{
		VehicleID:     vehicleID,
		OperatorID:    v.OperatorID,
		ClientID:      middleware.UserID(c),
		PickupDate:    pickup,
		ReturnDate:    ret,
		PricePerDay:   &v.PricePerDay,
		PaymentMethod: req.PaymentMethod,
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return err
	}
	return done(c, http.StatusCreated, paymentsPath(b.ID, "gateway"), "Booking created. Please complete your payment.", echo.Map{
		"booking_id":       b.ID,
		"reference_number": b.Payment.ReferenceNumber,
		"total_price":      b.TotalPrice,
	})
}

// Gateway handles GET /client/payments/:booking_id/gateway, the stand-in
// for an external payment page.
func (h *BookingHandler) Gateway(c echo.Context) error {
	b, err := h.booking(c)
	if err != nil {
		return err
	}
	if b.Payment.Status == model.PaymentCompleted {
		return done(c, http.StatusOK, paymentsPath(b.ID, "confirmation"), "", echo.Map{"payment_status": b.Payment.Status})
	}
	return success(c, http.StatusOK, echo.Map{
		"booking":          b,
		"amount":           b.Payment.Amount,
		"reference_number": b.Payment.ReferenceNumber,
		"payment_method":   b.Payment.Method,
		"complete_url":     paymentsPath(b.ID, "complete"),
	})
}

// Complete handles POST /client/payments/:booking_id/complete, the gateway
// callback that settles the payment and confirms the booking.
func (h *BookingHandler) Complete(c echo.Context) error {
	id, err := pathID(c, "booking_id")
	if err != nil {
		return err
	}
	var req completePaymentReq
	if err := bind(c, &req); err != nil {
		return err
	}
	details, err := req.details()
	if err != nil {
		return err
	}
	b, err := h.Bookings.CompletePayment(c.Request().Context(), id, middleware.UserID(c), details)
	if err != nil {
		return err
	}
	return done(c, http.StatusOK, paymentsPath(b.ID, "confirmation"), "Payment successful. Your booking is confirmed.", echo.Map{
		"booking_id":       b.ID,
		"reference_number": b.Payment.ReferenceNumber,
		"status":           b.Status,
	})
}

// Confirmation handles GET /client/payments/:booking_id/confirmation.
func (h *BookingHandler) Confirmation(c echo.Context) error {
	b, err := h.booking(c)
	if err != nil {
		return err
	}
	txs, err := h.Bookings.Transactions(c.Request().Context(), b)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"booking": b, "transactions": txs})
}

// Receipt handles GET /client/payments/:booking_id/receipt.
func (h *BookingHandler) Receipt(c echo.Context) error {
	id, err := pathID(c, "booking_id")
	if err != nil {
		return err
	}
	r, err := h.Receipts.Build(c.Request().Context(), id, middleware.UserID(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"receipt": r})
}

// List handles GET /client/bookings.
func (h *BookingHandler) List(c echo.Context) error {
	out, err := h.Bookings.ListForClient(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"bookings": out})
}

func (h *BookingHandler) booking(c echo.Context) (model.Booking, error) {
	id, err := pathID(c, "booking_id")
	if err != nil {
		return model.Booking{}, err
	}
	return h.Bookings.Get(c.Request().Context(), id, middleware.UserID(c))
}

func (r completePaymentReq) details() (model.PaymentDetails, error) {
	d := model.PaymentDetails{Method: r.PaymentMethod}
	if model.IsEWallet(r.PaymentMethod) {
		if strings.TrimSpace(r.EWalletNumber) == "" {
			return d, apperr.MissingField("ewallet_number")
		}
		d.EWalletNumber = strings.TrimSpace(r.EWalletNumber)
		d.EWalletEmail = strings.TrimSpace(r.EWalletEmail)
		return d, nil
	}
	digits := strings.Map(func(ch rune) rune {
		if unicode.IsDigit(ch) {
			return ch
		}
		return -1
	}, r.CardNumber)
	if digits == "" {
		return d, apperr.MissingField("card_number")
	}
	if len(digits) < 12 || len(digits) > 19 {
		return d, apperr.Validation("card_number", "must have 12 to 19 digits")
	}
	d.CardLastFour = digits[len(digits)-4:]
	d.CardBrand = strings.TrimSpace(r.CardBrand)
	if d.CardBrand == "" {
		d.CardBrand = cardBrand(digits)
	}
	return d, nil
}

// cardBrand guesses the network from the leading digits.
func cardBrand(digits string) string {
	switch {
	case strings.HasPrefix(digits, "4"):
		return "visa"
	case strings.HasPrefix(digits, "34"), strings.HasPrefix(digits, "37"):
		return "amex"
	case digits[0] == '5', strings.HasPrefix(digits, "2"):
		return "mastercard"
	case strings.HasPrefix(digits, "35"):
		return "jcb"
	}
	return "other"
}

func paymentsPath(bookingID uint64, page string) string {
	return "/client/payments/" + strconv.FormatUint(bookingID, 10) + "/" + page
}
