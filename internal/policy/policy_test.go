package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCancellationFeePercent(t *testing.T) {
	testCases := []struct {
		name     string
		notice   time.Duration
		expected int
	}{
		{name: "Well in advance", notice: 48 * time.Hour, expected: 0},
		{name: "Exactly 24 hours", notice: 24 * time.Hour, expected: 0},
		{name: "Just under 24 hours", notice: 23*time.Hour + 59*time.Minute, expected: 25},
		{name: "23 hours", notice: 23 * time.Hour, expected: 25},
		{name: "Exactly 6 hours", notice: 6 * time.Hour, expected: 25},
		{name: "5 hours", notice: 5 * time.Hour, expected: 50},
		{name: "Exactly 2 hours", notice: 2 * time.Hour, expected: 50},
		{name: "1 hour", notice: time.Hour, expected: 100},
		{name: "Already past", notice: -time.Hour, expected: 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CancellationFeePercent(tc.notice))
		})
	}
}

func TestCancellationFee(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	// 10 hours of notice on a 100.00 booking lands in the 25% tier.
	fee := CancellationFee(10000, scheduled, scheduled.Add(-10*time.Hour))
	assert.Equal(t, int64(2500), fee)

	fee = CancellationFee(10000, scheduled, scheduled.Add(-30*time.Hour))
	assert.Equal(t, int64(0), fee)

	fee = CancellationFee(10000, scheduled, scheduled.Add(-time.Hour))
	assert.Equal(t, int64(10000), fee)
}

func TestIsNoShowEligible(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	assert.False(t, IsNoShowEligible(scheduled, scheduled.Add(29*time.Minute), GracePeriod))
	assert.True(t, IsNoShowEligible(scheduled, scheduled.Add(30*time.Minute), GracePeriod))
	assert.True(t, IsNoShowEligible(scheduled, scheduled.Add(time.Hour), GracePeriod))
	assert.False(t, IsNoShowEligible(scheduled, scheduled.Add(-time.Minute), GracePeriod))
}

func TestNoShowFee(t *testing.T) {
	assert.Equal(t, int64(7550), NoShowFee(7550))
	assert.Equal(t, int64(0), NoShowFee(0))
}

func TestOvertimeCharge(t *testing.T) {
	assert.Equal(t, int64(1200), OvertimeCharge(12))
	assert.Equal(t, int64(100), OvertimeCharge(1))
	assert.Equal(t, int64(0), OvertimeCharge(0))
	assert.Equal(t, int64(0), OvertimeCharge(-5))
}
