package window

import (
	"sort"
)

// Clock is the read-only view of the operator's clocks handed to assigners.
type Clock interface {
	CurrentProcessingTimestamp() int64
	CurrentWatermarkTimestamp() int64
}

// AssignerFn maps an arriving value to the candidate windows it belongs to.
type AssignerFn[T any] interface {
	AssignWindows(clock Clock, value T, eventTimestamp int64) []TimeWindow
	IsEventTime() bool
}

// MergeGroup is one coalescing decision: every source window retires and the
// target window takes over their panes.
type MergeGroup struct {
	Sources []TimeWindow
	Target  TimeWindow
}

// MergingAssignerFn additionally computes merge groups over a key's open
// windows; the operator consults it after every assignment.
type MergingAssignerFn[T any] interface {
	AssignerFn[T]
	MergeWindows(windows []TimeWindow) []MergeGroup
}

type TumblingEventTimeAssigner[T any] struct {
	size         int64
	globalOffset int64
}

func (t *TumblingEventTimeAssigner[T]) AssignWindows(_ Clock, _ T, eventTimestamp int64) []TimeWindow {
	start := getWindowStartWithOffset(eventTimestamp, t.globalOffset%t.size, t.size)
	return []TimeWindow{{Start: start, End: start + t.size}}
}

func (t *TumblingEventTimeAssigner[T]) IsEventTime() bool {
	return true
}

func NewTumblingEventTimeAssigner[T any](size int64, offset int64) AssignerFn[T] {
	return &TumblingEventTimeAssigner[T]{size: size, globalOffset: offset}
}

type TumblingProcessingTimeAssigner[T any] struct {
	size         int64
	globalOffset int64
}

func (t *TumblingProcessingTimeAssigner[T]) AssignWindows(clock Clock, _ T, _ int64) []TimeWindow {
	start := getWindowStartWithOffset(clock.CurrentProcessingTimestamp(), t.globalOffset%t.size, t.size)
	return []TimeWindow{{Start: start, End: start + t.size}}
}

func (t *TumblingProcessingTimeAssigner[T]) IsEventTime() bool {
	return false
}

func NewTumblingProcessingTimeAssigner[T any](size int64, offset int64) AssignerFn[T] {
	return &TumblingProcessingTimeAssigner[T]{size: size, globalOffset: offset}
}

type SlidingEventTimeAssigner[T any] struct {
	size         int64
	slide        int64
	globalOffset int64
}

func (s *SlidingEventTimeAssigner[T]) AssignWindows(_ Clock, _ T, eventTimestamp int64) []TimeWindow {
	var windows []TimeWindow
	lastStart := getWindowStartWithOffset(eventTimestamp, s.globalOffset%s.slide, s.slide)
	for start := lastStart; start > eventTimestamp-s.size; start -= s.slide {
		windows = append(windows, TimeWindow{Start: start, End: start + s.size})
	}
	return windows
}

func (s *SlidingEventTimeAssigner[T]) IsEventTime() bool {
	return true
}

func NewSlidingEventTimeAssigner[T any](size int64, slide int64, offset int64) AssignerFn[T] {
	return &SlidingEventTimeAssigner[T]{size: size, slide: slide, globalOffset: offset}
}

// SessionEventTimeAssigner opens a gap sized window per element and relies on
// merging to coalesce overlapping sessions.
type SessionEventTimeAssigner[T any] struct {
	gap int64
}

func (s *SessionEventTimeAssigner[T]) AssignWindows(_ Clock, _ T, eventTimestamp int64) []TimeWindow {
	return []TimeWindow{{Start: eventTimestamp, End: eventTimestamp + s.gap}}
}

func (s *SessionEventTimeAssigner[T]) IsEventTime() bool {
	return true
}

// MergeWindows coalesces every run of intersecting windows into one group
// covered by their union. Windows that stand alone produce no group.
func (s *SessionEventTimeAssigner[T]) MergeWindows(windows []TimeWindow) []MergeGroup {
	if len(windows) < 2 {
		return nil
	}
	sorted := make([]TimeWindow, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start == sorted[j].Start {
			return sorted[i].End < sorted[j].End
		}
		return sorted[i].Start < sorted[j].Start
	})
	var groups []MergeGroup
	sources := []TimeWindow{sorted[0]}
	cover := sorted[0]
	flush := func() {
		if len(sources) > 1 {
			groups = append(groups, MergeGroup{Sources: sources, Target: cover})
		}
	}
	for _, w := range sorted[1:] {
		if cover.Intersects(w) {
			sources = append(sources, w)
			cover = cover.Cover(w)
		} else {
			flush()
			sources = []TimeWindow{w}
			cover = w
		}
	}
	flush()
	return groups
}

func NewSessionEventTimeAssigner[T any](gap int64) MergingAssignerFn[T] {
	return &SessionEventTimeAssigner[T]{gap: gap}
}
