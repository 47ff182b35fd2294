package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayZeroIsMonday(t *testing.T) {
	assert.True(t, IsTradingDay(0))  // Monday
	assert.True(t, IsTradingDay(4))  // Friday
	assert.False(t, IsTradingDay(5)) // Saturday
	assert.False(t, IsTradingDay(6)) // Sunday
	assert.True(t, IsTradingDay(7))  // next Monday
}

func TestNextTradingDay(t *testing.T) {
	assert.Equal(t, Day(1), NextTradingDay(0)) // Mon -> Tue
	assert.Equal(t, Day(7), NextTradingDay(4)) // Fri -> Mon
	assert.Equal(t, Day(7), NextTradingDay(5)) // Sat -> Mon
	assert.Equal(t, Day(7), NextTradingDay(6)) // Sun -> Mon
}

func TestNextTradingDayOfFridayTwiceIsTuesday(t *testing.T) {
	friday := Day(4)
	assert.Equal(t, Day(8), NextTradingDay(NextTradingDay(friday)))
	assert.Equal(t, "Tue", NextTradingDay(NextTradingDay(friday)).Weekday())
}

func TestDTE(t *testing.T) {
	// Day 0 (Mon) to day 7 (next Mon) spans 5 trading days.
	assert.Equal(t, uint32(5), DTE(0, 7))
	// Day 0 to day 4 (Fri) spans 4 trading days.
	assert.Equal(t, uint32(4), DTE(0, 4))
	// Zero on the expiration day itself and never negative.
	assert.Equal(t, uint32(0), DTE(3, 3))
	assert.Equal(t, uint32(0), DTE(9, 3))
}

func TestDTEOfNextTradingDayIsOne(t *testing.T) {
	for d := Day(0); d < 30; d++ {
		if !IsTradingDay(d) {
			continue
		}
		assert.Equal(t, uint32(1), DTE(d, NextTradingDay(d)), "day %d", d)
	}
}

func TestExpirationForDTERoundTrip(t *testing.T) {
	for d := Day(0); d < 30; d++ {
		if !IsTradingDay(d) {
			continue
		}
		for dte := uint32(0); dte <= 10; dte++ {
			exp := ExpirationForDTE(d, dte)
			assert.Equal(t, dte, DTE(d, exp), "entry %d dte %d", d, dte)
			if dte > 0 {
				assert.True(t, IsTradingDay(exp))
			}
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("14:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(14*60+30), tod)
	assert.Equal(t, "14:30", tod.String())

	for _, bad := range []string{"", "14", "25:00", "14:60", "a:b"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestTimestampOrdering(t *testing.T) {
	a := NewTimestamp(1, 14*60)
	b := NewTimestamp(1, 14*60+30)
	c := NewTimestamp(2, 9*60)

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, 1, c.Compare(a))

	assert.Equal(t, uint64(30), b.MinutesSince(a))
	assert.Equal(t, uint64(0), a.MinutesSince(b))
}
