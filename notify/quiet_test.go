package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.Local)
}

func TestInQuietHoursWrapAroundMidnight(t *testing.T) {
	// 22:00 - 07:00
	start, end := 22*60, 7*60

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just before midnight", at(23, 30), true},
		{"last minute of window", at(6, 59), true},
		{"window end is exclusive", at(7, 0), false},
		{"minute before start", at(21, 59), false},
		{"window start is inclusive", at(22, 0), true},
		{"middle of the night", at(3, 15), true},
		{"midday", at(12, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InQuietHours(start, end, tt.now))
		})
	}
}

func TestInQuietHoursSameDayWindow(t *testing.T) {
	// 13:00 - 15:00
	start, end := 13*60, 15*60

	assert.True(t, InQuietHours(start, end, at(13, 0)))
	assert.True(t, InQuietHours(start, end, at(14, 59)))
	assert.False(t, InQuietHours(start, end, at(15, 0)))
	assert.False(t, InQuietHours(start, end, at(12, 59)))
	assert.False(t, InQuietHours(start, end, at(23, 0)))
}

func TestInQuietHoursDisabledWhenStartEqualsEnd(t *testing.T) {
	for _, minute := range []int{0, 8 * 60, 1439} {
		assert.False(t, InQuietHours(minute, minute, at(0, 0)))
		assert.False(t, InQuietHours(minute, minute, at(12, 30)))
		assert.False(t, InQuietHours(minute, minute, at(23, 59)))
	}
}

func TestMinuteOfDay(t *testing.T) {
	assert.Equal(t, 0, MinuteOfDay(at(0, 0)))
	assert.Equal(t, 22*60, MinuteOfDay(at(22, 0)))
	assert.Equal(t, 1439, MinuteOfDay(at(23, 59)))
}
