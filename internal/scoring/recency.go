package scoring

import "time"

// Recency decay breakpoints. Piecewise-linear: near-full weight within a
// day, then a gentler slope out to a week, a month, and a hard floor.
const (
	recencyDayWeight   = 0.98
	recencyWeekWeight  = 0.8
	recencyMonthWeight = 0.6
	recencyFloor       = 0.4
)

// RecencyWeight maps a content timestamp to a decay weight in [0.4, 1.0].
// Both timestamps are canonicalized to UTC before comparison — backends mix
// zone-aware and zone-less values, and a fixed UTC rule keeps decay stable
// across DST boundaries and deployment regions.
//
// The curve: 1.0 → 0.98 across the first 24h, linear to 0.8 by 7 days,
// linear to 0.6 by 30 days, then the 0.4 floor.
func RecencyWeight(ts, now time.Time) float64 {
	age := now.UTC().Sub(ts.UTC())
	if age <= 0 {
		return 1.0
	}

	const (
		day   = 24 * time.Hour
		week  = 7 * day
		month = 30 * day
	)

	switch {
	case age <= day:
		return lerp(1.0, recencyDayWeight, float64(age)/float64(day))
	case age <= week:
		return lerp(recencyDayWeight, recencyWeekWeight, float64(age-day)/float64(week-day))
	case age <= month:
		return lerp(recencyWeekWeight, recencyMonthWeight, float64(age-week)/float64(month-week))
	default:
		return recencyFloor
	}
}

func lerp(from, to, t float64) float64 {
	return from + (to-from)*t
}
