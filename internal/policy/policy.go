// Package policy holds the fee rules tied to booking state transitions.
// Every function is pure: callers pass the current instant, nothing here
// reads the wall clock.
package policy

import "time"

const (
	// GracePeriod is how long after the scheduled start a confirmed booking
	// may still be started before it can be marked a no-show.
	GracePeriod = 30 * time.Minute

	// OvertimeRateCentsPerMinute is charged for each actual minute beyond the
	// planned duration.
	OvertimeRateCentsPerMinute = 100
)

// CancellationFeePercent maps the notice before the scheduled start to a fee
// percentage. Tier boundaries are inclusive on the cheaper side: exactly 24h
// of notice is free, exactly 6h costs 25%, exactly 2h costs 50%.
func CancellationFeePercent(notice time.Duration) int {
	switch {
	case notice >= 24*time.Hour:
		return 0
	case notice >= 6*time.Hour:
		return 25
	case notice >= 2*time.Hour:
		return 50
	default:
		return 100
	}
}

// CancellationFee computes the fee in cents for cancelling at instant now a
// booking scheduled at scheduledAt.
func CancellationFee(totalPriceCents int64, scheduledAt, now time.Time) int64 {
	return totalPriceCents * int64(CancellationFeePercent(scheduledAt.Sub(now))) / 100
}

// IsNoShowEligible reports whether the grace period after the scheduled start
// has fully elapsed. The caller is responsible for checking that the booking
// is still CONFIRMED and was never started.
func IsNoShowEligible(scheduledAt, now time.Time, grace time.Duration) bool {
	return !now.Before(scheduledAt.Add(grace))
}

// NoShowFee is the full booking price.
func NoShowFee(totalPriceCents int64) int64 {
	return totalPriceCents
}

// OvertimeCharge returns the charge in cents for running over the planned
// duration. Finishing early or on time costs nothing.
func OvertimeCharge(actualMinutesOverPlanned int) int64 {
	if actualMinutesOverPlanned <= 0 {
		return 0
	}
	return int64(actualMinutesOverPlanned) * OvertimeRateCentsPerMinute
}
