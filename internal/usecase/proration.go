package usecase

import (
	"math"
	"time"
)

// DaysLeftInPeriod counts the whole days remaining until periodEnd, rounding
// partial days up. A nil or elapsed period end yields zero.
func DaysLeftInPeriod(periodEnd *time.Time, now time.Time) int {
	if periodEnd == nil || !periodEnd.After(now) {
		return 0
	}
	return int(math.Ceil(periodEnd.Sub(now).Hours() / 24))
}

// ProratedSeatAmount computes the charge, in minor currency units, for adding
// seats mid-cycle:
//
//	amount = seats x pricePerSeat x 100 x clamp(daysLeft/periodDays, 0, 1)
//
// pricePerSeat is in major units. When there is no active period the caller
// passes daysLeft >= periodDays and the full price applies.
func ProratedSeatAmount(seats int, pricePerSeat int64, daysLeft, periodDays int) int64 {
	full := int64(seats) * pricePerSeat * 100
	if periodDays <= 0 {
		return full
	}
	ratio := float64(daysLeft) / float64(periodDays)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return int64(math.Round(float64(full) * ratio))
}
