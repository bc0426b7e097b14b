package model

import "time"

// PaymentStatus values for payments.payment_status.
type PaymentStatus string

const (
    PaymentPending   PaymentStatus = "pending"
    PaymentCompleted PaymentStatus = "completed"
    PaymentFailed    PaymentStatus = "failed"
)

// Payment methods accepted at checkout.
const (
    MethodCreditCard = "credit_card"
    MethodGCash      = "gcash"
    MethodPayMaya    = "paymaya"
)

// IsEWallet reports whether method is one of the e-wallet providers.
func IsEWallet(method string) bool {
    return method == MethodGCash || method == MethodPayMaya
}

// Payment mirrors the `payments` table; exactly one per booking.
type Payment struct {
    ID              uint64        `json:"id"`
    BookingID       uint64        `json:"booking_id"`
    ReferenceNumber string        `json:"reference_number"`
    Amount          float64       `json:"amount"`
    Status          PaymentStatus `json:"payment_status"`
    Method          string        `json:"payment_method"`
    PaidAt          *time.Time    `json:"paid_at,omitempty"`
    FailedAt        *time.Time    `json:"failed_at,omitempty"`
    FailureReason   string        `json:"failure_reason,omitempty"`
    CardLastFour    string        `json:"card_last_four,omitempty"`
    CardBrand       string        `json:"card_brand,omitempty"`
    EWalletNumber   string        `json:"ewallet_number,omitempty"`
    EWalletEmail    string        `json:"ewallet_email,omitempty"`
    CreatedAt       time.Time     `json:"created_at"`
    UpdatedAt       time.Time     `json:"updated_at"`
}

// PaymentDetails is the instrument data captured when a payment completes.
// Card fields and e-wallet fields are mutually exclusive by Method.
type PaymentDetails struct {
    Method        string
    CardLastFour  string
    CardBrand     string
    EWalletNumber string
    EWalletEmail  string
}

// Normalize clears the instrument fields that do not belong to Method.
func (d PaymentDetails) Normalize() PaymentDetails {
    if IsEWallet(d.Method) {
        d.CardLastFour, d.CardBrand = "", ""
    } else {
        d.EWalletNumber, d.EWalletEmail = "", ""
    }
    return d
}
