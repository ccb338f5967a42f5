// Package clock defines the day-bucket boundaries the whole planner runs on.
// A "day" starts at the cutoff hour (05:00 by default) instead of midnight, so
// work done at 2 AM still belongs to the previous day's list.
package clock

import "time"

// DefaultCutoffHour is the hour-of-day at which a new day begins.
const DefaultCutoffHour = 5

// Bounds holds the bucket-start instants around now.
type Bounds struct {
	TodayStart            time.Time
	TomorrowStart         time.Time
	DayAfterTomorrowStart time.Time
}

// Boundaries computes the day-bucket window containing now. Before the cutoff
// hour the current bucket is still the one that started yesterday.
func Boundaries(now time.Time, cutoffHour int) Bounds {
	today := time.Date(now.Year(), now.Month(), now.Day(), cutoffHour, 0, 0, 0, now.Location())
	if now.Hour() < cutoffHour {
		today = today.AddDate(0, 0, -1)
	}
	tomorrow := today.AddDate(0, 0, 1)
	return Bounds{
		TodayStart:            today,
		TomorrowStart:         tomorrow,
		DayAfterTomorrowStart: tomorrow.AddDate(0, 0, 1),
	}
}

// InToday reports whether t falls inside the today bucket around now.
func InToday(t, now time.Time, cutoffHour int) bool {
	b := Boundaries(now, cutoffHour)
	return !t.Before(b.TodayStart) && t.Before(b.TomorrowStart)
}

// InTomorrow reports whether t falls inside the tomorrow bucket around now.
func InTomorrow(t, now time.Time, cutoffHour int) bool {
	b := Boundaries(now, cutoffHour)
	return !t.Before(b.TomorrowStart) && t.Before(b.DayAfterTomorrowStart)
}

// BucketStart returns the start of the bucket containing t.
func BucketStart(t time.Time, cutoffHour int) time.Time {
	return Boundaries(t, cutoffHour).TodayStart
}
