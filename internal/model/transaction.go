package model

import "time"

type TransactionType string

const (
    TransactionCredit TransactionType = "credit"
    TransactionDebit  TransactionType = "debit"
)

type TransactionStatus string

const (
    TransactionPending   TransactionStatus = "pending"
    TransactionCompleted TransactionStatus = "completed"
    TransactionFailed    TransactionStatus = "failed"
)

// Transaction is one ledger entry of money movement for a payment.
type Transaction struct {
    ID            uint64            `json:"id"`
    PaymentID     uint64            `json:"payment_id"`
    BookingID     uint64            `json:"booking_id"`
    Amount        float64           `json:"amount"`
    Type          TransactionType   `json:"transaction_type"`
    Status        TransactionStatus `json:"status"`
    CompletedAt   *time.Time        `json:"completed_at,omitempty"`
    FailedAt      *time.Time        `json:"failed_at,omitempty"`
    FailureReason string            `json:"failure_reason,omitempty"`
    CreatedAt     time.Time         `json:"created_at"`
}
