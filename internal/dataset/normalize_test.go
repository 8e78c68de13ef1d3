package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		{name: "morning", input: "07:30", expected: 450},
		{name: "midnight", input: "00:00", expected: 0},
		{name: "last minute", input: "23:59", expected: 1439},
		{name: "single digit hour", input: "7:05", expected: 425},
		{name: "seconds ignored", input: "12:40:30", expected: 760},
		{name: "padded", input: " 09:15 ", expected: 555},
		{name: "hour out of range", input: "25:00", wantErr: true},
		{name: "minute out of range", input: "12:60", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "words", input: "noon", wantErr: true},
		{name: "missing minutes", input: "12", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseClock(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		name     string
		mins     int
		expected string
	}{
		{name: "morning", mins: 450, expected: "07:30"},
		{name: "midnight", mins: 0, expected: "00:00"},
		{name: "last minute", mins: 1439, expected: "23:59"},
		{name: "wraps past midnight", mins: 1500, expected: "01:00"},
		{name: "negative wraps back", mins: -10, expected: "23:50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatClock(tt.mins))
		})
	}
}

func TestCanonicalDay(t *testing.T) {
	day, err := CanonicalDay("Friday")
	assert.NoError(t, err)
	assert.Equal(t, "friday", day)

	day, err = CanonicalDay("  MONDAY ")
	assert.NoError(t, err)
	assert.Equal(t, "monday", day)

	_, err = CanonicalDay("funday")
	assert.Error(t, err)
}

func TestShiftDay(t *testing.T) {
	assert.Equal(t, "saturday", ShiftDay("friday", 1))
	assert.Equal(t, "monday", ShiftDay("sunday", 1))
	assert.Equal(t, "monday", ShiftDay("monday", 7))
	assert.Equal(t, "wednesday", ShiftDay("wednesday", 0))
	assert.Equal(t, "thursday", ShiftDay("monday", 3))
}

func TestDayIndex(t *testing.T) {
	i, ok := DayIndex("monday")
	assert.True(t, ok)
	assert.Equal(t, 0, i)

	i, ok = DayIndex("sunday")
	assert.True(t, ok)
	assert.Equal(t, 6, i)

	_, ok = DayIndex("Monday")
	assert.False(t, ok)
}
