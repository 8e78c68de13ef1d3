package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// Weekdays lists the canonical day labels in week order.
var Weekdays = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

var dayIndex = func() map[string]int {
	m := make(map[string]int, len(Weekdays))
	for i, d := range Weekdays {
		m[d] = i
	}
	return m
}()

// ParseClock converts "HH:MM" (or "HH:MM:SS", seconds ignored) to minutes
// since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}

	return hours*60 + minutes, nil
}

// FormatClock renders minutes since midnight as "HH:MM", wrapping across
// day boundaries.
func FormatClock(mins int) string {
	m := ((mins % 1440) + 1440) % 1440
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// CanonicalDay lowercases and validates a weekday name.
func CanonicalDay(s string) (string, error) {
	day := strings.ToLower(strings.TrimSpace(s))
	if _, ok := dayIndex[day]; !ok {
		return "", fmt.Errorf("unknown day: %q", s)
	}
	return day, nil
}

// DayIndex returns a day's position in the week, monday first.
func DayIndex(day string) (int, bool) {
	i, ok := dayIndex[day]
	return i, ok
}

// ShiftDay returns the day label n days after the given day.
func ShiftDay(day string, n int) string {
	i, ok := dayIndex[day]
	if !ok {
		return day
	}
	return Weekdays[((i+n)%7+7)%7]
}
