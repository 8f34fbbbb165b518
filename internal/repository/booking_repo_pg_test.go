package repository

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewBookingRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewBookingRepository(pool)
	assert.NotNil(t, repo)
}

// The in-transaction daily-cap check and the allocator count jobs over the
// same UTC day.
func TestDayRange(t *testing.T) {
	at := time.Date(2026, 3, 1, 13, 45, 0, 0, time.FixedZone("EST", -5*3600))

	start, end := dayRange(at)

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, at.UTC().Truncate(24*time.Hour), start)
}