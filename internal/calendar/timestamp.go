package calendar

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the number of wall-clock minutes in a day.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time in minutes from midnight (0-1439).
type TimeOfDay uint16

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay(hours*60 + minutes), nil
}

// String formats the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t/60, t%60)
}

// Timestamp is the kernel clock: a trading day plus a wall-clock minute.
type Timestamp struct {
	Day    Day
	Minute TimeOfDay
}

// NewTimestamp creates a timestamp.
func NewTimestamp(day Day, minute TimeOfDay) Timestamp {
	return Timestamp{Day: day, Minute: minute}
}

// TotalMinutes returns minutes since day 0 midnight.
func (ts Timestamp) TotalMinutes() uint64 {
	return uint64(ts.Day)*MinutesPerDay + uint64(ts.Minute)
}

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool {
	return ts.TotalMinutes() < other.TotalMinutes()
}

// Compare returns -1, 0 or 1 ordering ts against other.
func (ts Timestamp) Compare(other Timestamp) int {
	a, b := ts.TotalMinutes(), other.TotalMinutes()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MinutesSince returns the wall-clock minutes elapsed from earlier to ts.
// Returns 0 when earlier is not before ts.
func (ts Timestamp) MinutesSince(earlier Timestamp) uint64 {
	a, b := ts.TotalMinutes(), earlier.TotalMinutes()
	if a <= b {
		return 0
	}
	return a - b
}

// String formats as "Day 9 (Wed W1) 14:00".
func (ts Timestamp) String() string {
	return fmt.Sprintf("Day %d (%s W%d) %s", ts.Day, ts.Day.Weekday(), ts.Day/7, ts.Minute)
}
