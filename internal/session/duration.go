package session

import (
	"time"

	"studyhub-backend/internal/models"
)

// TotalDuration returns the active seconds between start and end, excluding
// breaks. A closed break removes its recorded Duration, a break still open
// is counted up to end. Each break is clipped to the [start, end] window, so
// the result is always in [0, end-start].
func TotalDuration(start, end time.Time, breaks []models.Break) int64 {
	elapsed := BreakSeconds(start, end)
	if elapsed == 0 {
		return 0
	}

	var onBreak int64
	for _, b := range breaks {
		onBreak += clippedBreak(start, end, b)
	}

	if onBreak >= elapsed {
		return 0
	}
	return elapsed - onBreak
}

// BreakSeconds is the whole-second length of a closed interval.
func BreakSeconds(start, end time.Time) int64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

func clippedBreak(start, end time.Time, b models.Break) int64 {
	bStart := b.StartTime
	bEnd := end
	if b.EndTime != nil {
		bEnd = *b.EndTime
	}

	if bStart.Before(start) {
		bStart = start
	}
	if bEnd.After(end) {
		bEnd = end
	}
	inWindow := BreakSeconds(bStart, bEnd)
	if b.EndTime != nil && b.Duration < inWindow {
		return b.Duration
	}
	return inWindow
}
