// Package queue defines message payloads exchanged over the message broker
// and the publisher, consumer and mailer that move them.
package queue

// Queue names declared on the broker.
const (
    BookingConfirmedQueue = "booking.confirmed"
    OTPRequestedQueue     = "otp.requested"
)

// BookingConfirmedEvent is published when a payment completes and its booking
// becomes confirmed. It carries enough for the consumer to log the booking
// and mail a receipt without reading the booking tables.
type BookingConfirmedEvent struct {
    BookingID       uint64  `json:"booking_id"`
    ClientID        uint64  `json:"client_id"`
    VehicleID       uint64  `json:"vehicle_id"`
    OperatorID      uint64  `json:"operator_id"`
    ReferenceNumber string  `json:"reference_number"`
    StartDate       string  `json:"start_date"`
    EndDate         string  `json:"end_date"`
    TotalAmount     float64 `json:"total_amount"`
    PaymentMethod   string  `json:"payment_method"`
    ConfirmedAt     string  `json:"confirmed_at"`
}

// OTPRequestedEvent asks the consumer to deliver a passcode by email.
type OTPRequestedEvent struct {
    Email       string `json:"email"`
    Code        string `json:"code"`
    RequestedAt string `json:"requested_at"`
}
