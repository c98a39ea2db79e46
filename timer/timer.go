package timer

import (
	"container/heap"
)

// Handler will be triggered passively as time goes by
type Handler[T comparable] interface {
	OnProcessingTime(timer Timer[T])
	OnEventTime(timer Timer[T])
}

// Timer is a structure that contains triggering events
type Timer[T comparable] struct {
	Payload   T
	Timestamp int64
}

// timerQueue[T] is a priority queue,
// sorted from smallest to largest according to Timer.Timestamp,
// and use dedupeMap to prevent the same Timer from being inserted.
// If timestamps are inserted in this order
// +---+     +---+     +---+     +---+     +-------------+     +---+
// | 2 | --> | 5 | --> | 3 | --> | 1 | --> | duplicate:3 | --> | 7 |
// +---+     +---+     +---+     +---+     +-------------+     +---+
// items:
// +---+     +---+     +---+     +---+     +---+
// | 1 | --> | 2 | --> | 3 | --> | 5 | --> | 7 |
// +---+     +---+     +---+     +---+     +---+
type timerQueue[T comparable] struct {
	items     []Timer[T]
	dedupeMap map[Timer[T]]struct{}
	nil       Timer[T]
}

//---------------------------------------------------------------------------------
//Warning: Do not call directly, expose the function only for the heap package to use
//---------------------------------------------------------------------------------

func (t *timerQueue[T]) Less(i, j int) bool {
	return t.items[i].Timestamp < t.items[j].Timestamp
}

func (t *timerQueue[T]) Swap(i, j int) {
	t.items[i], t.items[j] = t.items[j], t.items[i]
}

func (t *timerQueue[T]) Push(x any) {
	item := x.(Timer[T])
	t.items = append(t.items, item)
}

func (t *timerQueue[T]) Pop() any {
	old := t.items
	n := len(old)
	x := old[n-1]
	t.items = old[0 : n-1]
	return x
}

//---------------------------------------------------------------------------------

func (t *timerQueue[T]) Len() int {
	return len(t.items)
}

func (t *timerQueue[T]) PushTimer(item Timer[T]) {
	if _, ok := t.dedupeMap[item]; !ok {
		t.dedupeMap[item] = struct{}{}
		heap.Push(t, item)
	}
}

func (t *timerQueue[T]) PopTimer() Timer[T] {
	if len(t.items) == 0 {
		return t.nil
	}
	item := heap.Pop(t).(Timer[T])
	delete(t.dedupeMap, item)
	return item
}

func (t *timerQueue[T]) PeekTimer() Timer[T] {
	return t.items[0]
}

func (t *timerQueue[T]) Remove(timer Timer[T]) bool {
	if _, ok := t.dedupeMap[timer]; !ok {
		return false
	}
	for index, item := range t.items {
		if item == timer {
			delete(t.dedupeMap, timer)
			heap.Remove(t, index)
			return true
		}
	}
	return false
}
