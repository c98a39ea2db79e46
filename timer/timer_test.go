package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerQueue_Peek(t *testing.T) {
	qu := &timerQueue[string]{dedupeMap: map[Timer[string]]struct{}{}}
	qu.PushTimer(Timer[string]{Payload: "tt", Timestamp: 2})
	qu.PushTimer(Timer[string]{Payload: "t", Timestamp: 1})
	qu.PushTimer(Timer[string]{Payload: "ttt", Timestamp: 3})
	peek := qu.PeekTimer()
	assert.Equal(t, "t", peek.Payload)
	assert.Equal(t, int64(1), peek.Timestamp)
	assert.Equal(t, 3, qu.Len())
}

func TestTimerQueue_Pop(t *testing.T) {
	qu := &timerQueue[string]{dedupeMap: map[Timer[string]]struct{}{}}
	qu.PushTimer(Timer[string]{Payload: "tt", Timestamp: 2})
	qu.PushTimer(Timer[string]{Payload: "t", Timestamp: 1})
	qu.PushTimer(Timer[string]{Payload: "ttt", Timestamp: 3})
	assert.Equal(t, "t", qu.PopTimer().Payload)
	assert.Equal(t, 2, qu.Len())
	assert.Equal(t, "tt", qu.PopTimer().Payload)
	assert.Equal(t, "ttt", qu.PopTimer().Payload)
	pop := qu.PopTimer()
	assert.Equal(t, Timer[string]{}, pop)
}

func TestTimerQueue_Dedupe(t *testing.T) {
	qu := &timerQueue[string]{dedupeMap: map[Timer[string]]struct{}{}}
	qu.PushTimer(Timer[string]{Payload: "t", Timestamp: 1})
	qu.PushTimer(Timer[string]{Payload: "t", Timestamp: 1})
	assert.Equal(t, 1, qu.Len())
	//same payload at another time is another timer
	qu.PushTimer(Timer[string]{Payload: "t", Timestamp: 2})
	assert.Equal(t, 2, qu.Len())
}

func TestTimerQueue_Remove(t *testing.T) {
	qu := &timerQueue[string]{dedupeMap: map[Timer[string]]struct{}{}}
	qu.PushTimer(Timer[string]{Payload: "tt", Timestamp: 2})
	qu.PushTimer(Timer[string]{Payload: "t", Timestamp: 1})
	assert.True(t, qu.Remove(Timer[string]{Payload: "t", Timestamp: 1}))
	assert.False(t, qu.Remove(Timer[string]{Payload: "t", Timestamp: 1}))
	assert.Equal(t, 1, qu.Len())
}

type recordingHandler struct {
	mutex      sync.Mutex
	processing []Timer[string]
	event      []Timer[string]
}

func (r *recordingHandler) OnProcessingTime(timer Timer[string]) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.processing = append(r.processing, timer)
}

func (r *recordingHandler) OnEventTime(timer Timer[string]) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.event = append(r.event, timer)
}

func (r *recordingHandler) eventTimers() []Timer[string] {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Timer[string]{}, r.event...)
}

func (r *recordingHandler) processingTimers() []Timer[string] {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Timer[string]{}, r.processing...)
}

func TestService_AdvanceWatermark(t *testing.T) {
	handler := &recordingHandler{}
	service := NewService[string](handler)
	defer service.Close()
	service.RegisterEventTimeTimer(Timer[string]{Payload: "t", Timestamp: 10})
	//duplicate registration collapses to one firing
	service.RegisterEventTimeTimer(Timer[string]{Payload: "t", Timestamp: 10})
	service.RegisterEventTimeTimer(Timer[string]{Payload: "tt", Timestamp: 20})

	service.AdvanceWatermark(5)
	assert.Empty(t, handler.eventTimers())

	service.AdvanceWatermark(10)
	assert.Equal(t, []Timer[string]{{Payload: "t", Timestamp: 10}}, handler.eventTimers())
	assert.Equal(t, int64(10), service.CurrentWatermarkTimestamp())

	//advancing again must not re-fire
	service.AdvanceWatermark(15)
	assert.Equal(t, []Timer[string]{{Payload: "t", Timestamp: 10}}, handler.eventTimers())

	service.AdvanceWatermark(20)
	assert.Len(t, handler.eventTimers(), 2)
}

func TestService_DeleteEventTimeTimer(t *testing.T) {
	handler := &recordingHandler{}
	service := NewService[string](handler)
	defer service.Close()
	service.RegisterEventTimeTimer(Timer[string]{Payload: "t", Timestamp: 10})
	service.DeleteEventTimeTimer(Timer[string]{Payload: "t", Timestamp: 10})
	//deleting an unregistered timer is a no-op
	service.DeleteEventTimeTimer(Timer[string]{Payload: "t", Timestamp: 10})
	service.AdvanceWatermark(100)
	assert.Empty(t, handler.eventTimers())
}

func TestService_ProcessingTime(t *testing.T) {
	handler := &recordingHandler{}
	service := NewService[string](handler)
	defer service.Close()
	service.RegisterProcessingTimeTimer(Timer[string]{Payload: "t", Timestamp: time.Now().UnixMilli() - 1})
	assert.Eventually(t, func() bool {
		return len(handler.processingTimers()) == 1
	}, time.Second, 5*time.Millisecond)
}
