package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edutrack/internal/model"
)

func TestEndTime(t *testing.T) {
	cases := []struct {
		start   string
		minutes int
		want    string
	}{
		{"09:00", 60, "10:00"},
		{"09:45", 30, "10:15"},
		{"23:30", 60, "00:30"},
		{"00:00", 180, "03:00"},
		{"22:10", 5, "22:15"},
	}
	for _, tc := range cases {
		got, err := EndTime(tc.start, tc.minutes)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s + %d", tc.start, tc.minutes)
	}

	_, err := EndTime("25:00", 10)
	assert.Error(t, err)
}

func TestDeadline(t *testing.T) {
	t.Run("Same Day", func(t *testing.T) {
		d, err := Deadline(model.AttendanceSession{Date: "2026-10-15", TimeStart: "09:00", TimeEnd: "10:00"}, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC), d)
	})

	t.Run("Cross Midnight", func(t *testing.T) {
		d, err := Deadline(model.AttendanceSession{Date: "2026-10-15", TimeStart: "23:30", TimeEnd: "00:30"}, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 10, 16, 0, 30, 0, 0, time.UTC), d)
	})

	t.Run("Time Zone", func(t *testing.T) {
		lagos, err := time.LoadLocation("Africa/Lagos")
		require.NoError(t, err)
		d, err := Deadline(model.AttendanceSession{Date: "2026-10-15", TimeStart: "09:00", TimeEnd: "10:00"}, lagos)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), d.UTC())
	})

	t.Run("Bad Input", func(t *testing.T) {
		_, err := Deadline(model.AttendanceSession{Date: "tomorrow", TimeStart: "09:00", TimeEnd: "10:00"}, time.UTC)
		assert.Error(t, err)
	})
}

func TestRemaining(t *testing.T) {
	deadline := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 60, Remaining(deadline, deadline.Add(-time.Minute)))
	assert.Equal(t, 59, Remaining(deadline, deadline.Add(-59500*time.Millisecond)))
	assert.Equal(t, 0, Remaining(deadline, deadline))
	assert.Equal(t, 0, Remaining(deadline, deadline.Add(time.Hour)))
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "0:00", FormatCountdown(0))
	assert.Equal(t, "4:05", FormatCountdown(245))
	assert.Equal(t, "1h 1m 1s", FormatCountdown(3661))
	assert.Equal(t, "0:00", FormatCountdown(-3))
}
