package model

import "time"

// BookingStatus values for bookings.status.
type BookingStatus string

const (
    BookingPending   BookingStatus = "pending"
    BookingConfirmed BookingStatus = "confirmed"
    BookingOngoing   BookingStatus = "ongoing"
    BookingCompleted BookingStatus = "completed"
    BookingCancelled BookingStatus = "cancelled"
)

// Blocking reports whether a booking in this status holds the vehicle.
func (s BookingStatus) Blocking() bool {
    return s == BookingConfirmed || s == BookingOngoing
}

// Booking mirrors the `bookings` table. Payment is populated by the
// orchestrator when it returns a freshly created booking.
type Booking struct {
    ID         uint64        `json:"id"`
    VehicleID  uint64        `json:"vehicle_id"`
    OperatorID uint64        `json:"operator_id"`
    ClientID   uint64        `json:"client_id"`
    StartDate  time.Time     `json:"start_date"`
    EndDate    time.Time     `json:"end_date"`
    TotalPrice float64       `json:"total_price"`
    Status     BookingStatus `json:"status"`
    Notes      string        `json:"notes,omitempty"`
    CreatedAt  time.Time     `json:"created_at"`
    UpdatedAt  time.Time     `json:"updated_at"`
    Payment    *Payment      `json:"payment,omitempty"`
}

// Overlaps reports whether [start, end) intersects the booking's range.
func (b Booking) Overlaps(start, end time.Time) bool {
    return b.StartDate.Before(end) && b.EndDate.After(start)
}
