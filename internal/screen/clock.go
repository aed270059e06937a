package screen

import (
	"context"
	"fmt"
	"time"
)

// FormatClock renders t as "Monday, January 2nd, 2006, 15:04:05."
func FormatClock(t time.Time) string {
	return fmt.Sprintf("%s, %s %d%s, %d, %s.",
		t.Weekday(), t.Month(), t.Day(), ordinal(t.Day()), t.Year(), t.Format(time.TimeOnly))
}

func ordinal(day int) string {
	switch day {
	case 1, 21, 31:
		return "st"
	case 2, 22:
		return "nd"
	case 3, 23:
		return "rd"
	default:
		return "th"
	}
}

// tick calls fn with the formatted time now and then every interval until ctx is done.
func tick(ctx context.Context, interval time.Duration, now func() time.Time, fn func(string)) {
	fn(FormatClock(now()))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(FormatClock(now()))
		}
	}
}
