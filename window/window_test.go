package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeWindow(t *testing.T) {
	w := NewTimeWindow(0, 10)
	assert.Equal(t, "0-10", w.Key())
	assert.Equal(t, int64(9), w.MaxTimestamp())
	assert.True(t, w.Intersects(NewTimeWindow(5, 15)))
	assert.True(t, w.Intersects(NewTimeWindow(10, 20)))
	assert.False(t, w.Intersects(NewTimeWindow(11, 20)))
	assert.Equal(t, NewTimeWindow(0, 15), w.Cover(NewTimeWindow(5, 15)))
}

func TestGetWindowStartWithOffset(t *testing.T) {
	assert.Equal(t, int64(0), getWindowStartWithOffset(5, 0, 10))
	assert.Equal(t, int64(10), getWindowStartWithOffset(10, 0, 10))
	assert.Equal(t, int64(-10), getWindowStartWithOffset(-5, 0, 10))
	assert.Equal(t, int64(2), getWindowStartWithOffset(5, 2, 10))
}

func TestTumblingEventTimeAssigner(t *testing.T) {
	assigner := NewTumblingEventTimeAssigner[string](10, 0)
	assert.True(t, assigner.IsEventTime())
	windows := assigner.AssignWindows(nil, "t", 15)
	assert.Equal(t, []TimeWindow{{Start: 10, End: 20}}, windows)
}

func TestSlidingEventTimeAssigner(t *testing.T) {
	assigner := NewSlidingEventTimeAssigner[string](10, 5, 0)
	windows := assigner.AssignWindows(nil, "t", 12)
	assert.Equal(t, []TimeWindow{{Start: 10, End: 20}, {Start: 5, End: 15}}, windows)
}

func TestSessionEventTimeAssigner_MergeWindows(t *testing.T) {
	assigner := NewSessionEventTimeAssigner[string](10)
	windows := assigner.AssignWindows(nil, "t", 100)
	assert.Equal(t, []TimeWindow{{Start: 100, End: 110}}, windows)

	//disjoint sessions merge nothing
	assert.Empty(t, assigner.MergeWindows([]TimeWindow{{Start: 0, End: 10}, {Start: 20, End: 30}}))
	assert.Empty(t, assigner.MergeWindows([]TimeWindow{{Start: 0, End: 10}}))

	//one overlapping run coalesces into its cover
	groups := assigner.MergeWindows([]TimeWindow{{Start: 5, End: 15}, {Start: 0, End: 10}, {Start: 30, End: 40}})
	assert.Len(t, groups, 1)
	assert.Equal(t, NewTimeWindow(0, 15), groups[0].Target)
	assert.ElementsMatch(t, []TimeWindow{{Start: 0, End: 10}, {Start: 5, End: 15}}, groups[0].Sources)

	//two separate runs produce two groups
	groups = assigner.MergeWindows([]TimeWindow{
		{Start: 0, End: 10}, {Start: 5, End: 15},
		{Start: 30, End: 40}, {Start: 35, End: 45},
	})
	assert.Len(t, groups, 2)
}
