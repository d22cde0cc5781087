package identity

import "time"

// IsWithinThresholdPeriod checks if the given time is within the threshold,
// measured against now.
func IsWithinThresholdPeriod(t time.Time, threshold time.Duration, now time.Time) bool {
	return t.After(now.Add(-threshold))
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod.
func IsOutsideThresholdPeriod(t time.Time, threshold time.Duration, now time.Time) bool {
	return !IsWithinThresholdPeriod(t, threshold, now)
}
