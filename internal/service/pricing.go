package service

import (
	"math"
	"time"
)

// ServiceFeeRate is the platform fee charged on top of the rental subtotal.
const ServiceFeeRate = 0.05

// Pricing is the quote for renting a vehicle over a date range.
type Pricing struct {
	TotalDays  int     `json:"total_days"`
	Subtotal   float64 `json:"subtotal"`
	ServiceFee float64 `json:"service_fee"`
	TotalPrice float64 `json:"total_price"`
}

// CalculatePricing quotes a rental. Only the calendar dates of pickup and
// ret matter; a same-day or inverted range is billed as one day.
func CalculatePricing(pickup, ret time.Time, pricePerDay float64) Pricing {
	days := int(dateOnly(ret).Sub(dateOnly(pickup)).Hours() / 24)
	if days < 1 {
		days = 1
	}
	subtotal := roundCents(pricePerDay * float64(days))
	fee := roundCents(subtotal * ServiceFeeRate)
	return Pricing{
		TotalDays:  days,
		Subtotal:   subtotal,
		ServiceFee: fee,
		TotalPrice: roundCents(subtotal + fee),
	}
}

// occupiedRange returns the [start, end) dates a rental holds the vehicle.
// Same-day and inverted ranges hold it for one day, as they are billed.
func occupiedRange(pickup, ret time.Time) (time.Time, time.Time) {
	start, end := dateOnly(pickup), dateOnly(ret)
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return start, end
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
