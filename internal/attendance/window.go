package attendance

import (
	"fmt"
	"math"
	"time"

	"edutrack/internal/model"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// EndTime adds minutes to an HH:MM start time, wrapping at midnight.
func EndTime(start string, minutes int) (string, error) {
	t, err := time.Parse(clockLayout, start)
	if err != nil {
		return "", fmt.Errorf("parse start time %q: %w", start, err)
	}
	total := (t.Hour()*60 + t.Minute() + minutes) % (24 * 60)
	if total < 0 {
		total += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60), nil
}

// Deadline returns the instant a session window closes. A window whose end is
// earlier than its start closes on the following day.
func Deadline(s model.AttendanceSession, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(dateLayout+" "+clockLayout, s.Date+" "+s.TimeStart, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session start: %w", err)
	}
	end, err := time.ParseInLocation(dateLayout+" "+clockLayout, s.Date+" "+s.TimeEnd, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session end: %w", err)
	}
	if end.Before(start) {
		end = end.AddDate(0, 0, 1)
	}
	return end, nil
}

// Remaining is the whole number of seconds left before deadline, never negative.
func Remaining(deadline, now time.Time) int {
	diff := math.Floor(deadline.Sub(now).Seconds())
	if diff < 0 {
		return 0
	}
	return int(diff)
}

// FormatCountdown renders seconds as M:SS, or Hh Mm Ss past the hour.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds/60)%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, s)
}
