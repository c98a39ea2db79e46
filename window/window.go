package window

import (
	"fmt"
)

// TimeWindow is a half open [Start, End) span of milliseconds. It is a plain
// comparable value: two windows with the same bounds are the same window.
type TimeWindow struct {
	Start int64
	End   int64
}

func NewTimeWindow(start, end int64) TimeWindow {
	return TimeWindow{Start: start, End: end}
}

// Key is the stable identity used to scope partitioned state and timers.
func (w TimeWindow) Key() string {
	return fmt.Sprintf("%d-%d", w.Start, w.End)
}

// MaxTimestamp is the largest timestamp still inside the window.
func (w TimeWindow) MaxTimestamp() int64 {
	return w.End - 1
}

// Intersects reports whether the two spans overlap or touch.
func (w TimeWindow) Intersects(other TimeWindow) bool {
	return w.Start <= other.End && other.Start <= w.End
}

// Cover returns the smallest window containing both spans.
func (w TimeWindow) Cover(other TimeWindow) TimeWindow {
	cover := w
	if other.Start < cover.Start {
		cover.Start = other.Start
	}
	if other.End > cover.End {
		cover.End = other.End
	}
	return cover
}

func getWindowStartWithOffset(timestamp int64, offset int64, windowSize int64) int64 {
	remainder := (timestamp - offset) % windowSize
	// handle both positive and negative cases
	if remainder < 0 {
		return timestamp - (remainder + windowSize)
	}
	return timestamp - remainder
}
