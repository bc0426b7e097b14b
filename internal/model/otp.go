package model

import "time"

// OTPStatus is the lifecycle state of a one-time passcode. Every status
// except OTPActive is terminal.
type OTPStatus string

const (
    OTPActive    OTPStatus = "active"
    OTPUsed      OTPStatus = "used"
    OTPExpired   OTPStatus = "expired"
    OTPCancelled OTPStatus = "cancelled"
)

// OTP mirrors the `otps` table.
type OTP struct {
    ID        uint64
    UserID    uint64
    Code      string // six digits, zero padded
    Status    OTPStatus
    CreatedAt time.Time
    UpdatedAt time.Time
}

// ExpiredAt reports whether the code is past ttl at now.
func (o OTP) ExpiredAt(now time.Time, ttl time.Duration) bool {
    return now.After(o.CreatedAt.Add(ttl))
}
