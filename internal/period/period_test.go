package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodEnd_LastDayOfMonth(t *testing.T) {
	r := NewMonthEndResolver()

	end := r.PeriodEnd(time.Date(2026, 2, 11, 15, 4, 5, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), end)

	end = r.PeriodEnd(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), end)

	end = r.PeriodEnd(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), end)
}

func TestIsClosed_OffsetShiftsBoundary(t *testing.T) {
	r := NewMonthEndResolver()
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	// 23:30 UTC on the last day: still open at UTC, closed for UTC+10.
	now := time.Date(2026, 3, 31, 23, 30, 0, 0, time.UTC)
	assert.False(t, r.IsClosed(end, 0, now))
	assert.True(t, r.IsClosed(end, 600, now))

	// 00:30 UTC on April 1st: closed at UTC, still open for UTC-5.
	now = time.Date(2026, 4, 1, 0, 30, 0, 0, time.UTC)
	assert.True(t, r.IsClosed(end, 0, now))
	assert.False(t, r.IsClosed(end, -300, now))
}

func TestCloseOfDayWindow(t *testing.T) {
	r := NewMonthEndResolver()
	got := r.CloseOfDayWindow(time.Date(2026, 3, 31, 17, 45, 12, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), got)
}
