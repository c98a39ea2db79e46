package timer

import (
	"math"
	"sync"
	"time"
)

// Service keeps one processing-time and one event-time queue of deduped
// timers and hands due timers to its Handler: processing-time ones when the
// wall clock passes them, event-time ones when the watermark does.
// Registration is idempotent per (payload, timestamp) tuple and deleting an
// unregistered timer is a no-op. The Handler is invoked without the service
// lock held, so it may re-register timers from within the callback.
type Service[T comparable] struct {
	mutex   sync.Mutex
	handler Handler[T]
	closed  bool

	nextTimer        *time.Timer
	currentWatermark int64
	processingQueue  *timerQueue[T]
	eventQueue       *timerQueue[T]
}

func NewService[T comparable](handler Handler[T]) *Service[T] {
	return &Service[T]{
		handler:          handler,
		currentWatermark: math.MinInt64,
		processingQueue:  &timerQueue[T]{dedupeMap: map[Timer[T]]struct{}{}},
		eventQueue:       &timerQueue[T]{dedupeMap: map[Timer[T]]struct{}{}},
	}
}

func (s *Service[T]) CurrentProcessingTimestamp() int64 {
	return time.Now().UnixMilli()
}

func (s *Service[T]) CurrentWatermarkTimestamp() int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.currentWatermark
}

func (s *Service[T]) RegisterEventTimeTimer(timer Timer[T]) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.eventQueue.PushTimer(timer)
}

func (s *Service[T]) RegisterProcessingTimeTimer(timer Timer[T]) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.processingQueue.PushTimer(timer)
	s.scheduleLocked()
}

func (s *Service[T]) DeleteEventTimeTimer(timer Timer[T]) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.eventQueue.Remove(timer)
}

func (s *Service[T]) DeleteProcessingTimeTimer(timer Timer[T]) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.processingQueue.Remove(timer) {
		s.scheduleLocked()
	}
}

// AdvanceWatermark moves the event-time clock forward and fires every event
// timer at or below the new watermark, oldest first.
func (s *Service[T]) AdvanceWatermark(timestamp int64) {
	s.mutex.Lock()
	if timestamp > s.currentWatermark {
		s.currentWatermark = timestamp
	}
	var due []Timer[T]
	for s.eventQueue.Len() > 0 && s.eventQueue.PeekTimer().Timestamp <= s.currentWatermark {
		due = append(due, s.eventQueue.PopTimer())
	}
	s.mutex.Unlock()
	for _, timer := range due {
		s.handler.OnEventTime(timer)
	}
}

func (s *Service[T]) advanceProcessingTimestamp(timestamp int64) {
	s.mutex.Lock()
	var due []Timer[T]
	for s.processingQueue.Len() > 0 && s.processingQueue.PeekTimer().Timestamp <= timestamp {
		due = append(due, s.processingQueue.PopTimer())
	}
	s.scheduleLocked()
	s.mutex.Unlock()
	for _, timer := range due {
		s.handler.OnProcessingTime(timer)
	}
}

// scheduleLocked re-arms the wall clock for the queue head; callers hold the
// mutex.
func (s *Service[T]) scheduleLocked() {
	if s.nextTimer != nil {
		s.nextTimer.Stop()
		s.nextTimer = nil
	}
	if s.closed || s.processingQueue.Len() == 0 {
		return
	}
	head := s.processingQueue.PeekTimer()
	duration := time.Duration(math.Max(float64(head.Timestamp-time.Now().UnixMilli()), 0)) * time.Millisecond
	s.nextTimer = time.AfterFunc(duration, func() {
		s.advanceProcessingTimestamp(head.Timestamp)
	})
}

func (s *Service[T]) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	if s.nextTimer != nil {
		s.nextTimer.Stop()
		s.nextTimer = nil
	}
}
