package service_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vehicle-rental/internal/service"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCalculatePricingScenario(t *testing.T) {
	p := service.CalculatePricing(day("2025-06-01"), day("2025-06-03"), 1000)
	require.Equal(t, service.Pricing{TotalDays: 2, Subtotal: 2000, ServiceFee: 100, TotalPrice: 2100}, p)
}

func TestCalculatePricingFloorsToOneDay(t *testing.T) {
	pickup := day("2025-06-10")
	for _, ret := range []time.Time{pickup, day("2025-06-09"), day("2024-01-01"), pickup.Add(23 * time.Hour)} {
		p := service.CalculatePricing(pickup, ret, 850)
		require.Equal(t, 1, p.TotalDays, ret)
		require.Equal(t, 850.0, p.Subtotal)
	}
}

func TestCalculatePricingTotalIsSubtotalPlusFivePercent(t *testing.T) {
	pickup := day("2025-01-01")
	for _, rate := range []float64{0, 1, 99.99, 1234.56, 2500, 7777.77} {
		for days := 1; days <= 45; days += 4 {
			p := service.CalculatePricing(pickup, pickup.AddDate(0, 0, days), rate)
			require.Equal(t, days, p.TotalDays)
			require.InDelta(t, p.Subtotal*(1+service.ServiceFeeRate), p.TotalPrice, 0.01)
			require.InDelta(t, p.Subtotal+p.ServiceFee, p.TotalPrice, 1e-9)
		}
	}
}

func TestCalculatePricingIsDeterministic(t *testing.T) {
	a := service.CalculatePricing(day("2025-03-01"), day("2025-03-08"), 1999.5)
	b := service.CalculatePricing(day("2025-03-01"), day("2025-03-08"), 1999.5)
	require.Equal(t, a, b)
	require.False(t, math.IsNaN(a.TotalPrice))
}
