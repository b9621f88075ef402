package achievement

import (
	"sort"
	"time"
)

// MaxStreak returns the longest run of consecutive calendar days, in loc,
// that contain at least one timestamp. Several timestamps on one day count
// once and a missing day starts a new run.
func MaxStreak(times []time.Time, loc *time.Location) int {
	if len(times) == 0 {
		return 0
	}
	if loc == nil {
		loc = time.UTC
	}

	seen := make(map[int64]struct{}, len(times))
	days := make([]int64, 0, len(times))
	for _, t := range times {
		d := dayNumber(t.In(loc))
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i] == days[i-1]+1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

// dayNumber maps a wall-clock date to a day count so DST shifts never
// produce a 23 or 25 hour day.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
