package window

import (
	"github.com/RuiFG/streaming/streaming-trigger/future"
	"github.com/RuiFG/streaming/streaming-trigger/state"
)

// CountTrigger fires once a pane accumulated threshold elements, resetting
// the count on fire. The running count is the only durable state; merging
// panes sums their counts.
type CountTrigger[T any] struct {
	threshold       int64
	countDescriptor state.Descriptor[int64]
}

func NewCountTrigger[T any](threshold int64) *CountTrigger[T] {
	return &CountTrigger[T]{
		threshold: threshold,
		countDescriptor: state.GobDescriptor[int64]("trigger-count",
			func() int64 { return 0 }, state.Sum[int64]()),
	}
}

func (t *CountTrigger[T]) OnElement(ctx TriggerContext, _ TimeWindow, _ T, _ int64) *future.Future[TriggerResult] {
	cell := PartitionedState(ctx, t.countDescriptor)
	return future.ThenAsync(cell.Value(), func(count int64) *future.Future[TriggerResult] {
		count++
		if count >= t.threshold {
			return future.Map(cell.Clear(), func(struct{}) (TriggerResult, error) {
				return Fire, nil
			})
		}
		return future.Map(cell.Update(count), func(struct{}) (TriggerResult, error) {
			return Continue, nil
		})
	})
}

func (t *CountTrigger[T]) OnProcessingTime(TriggerContext, TimeWindow, int64) *future.Future[TriggerResult] {
	return future.Completed(Continue)
}

func (t *CountTrigger[T]) OnEventTime(TriggerContext, TimeWindow, int64) *future.Future[TriggerResult] {
	return future.Completed(Continue)
}

func (t *CountTrigger[T]) Clear(ctx TriggerContext, _ TimeWindow) *future.Future[struct{}] {
	return PartitionedState(ctx, t.countDescriptor).Clear()
}

func (t *CountTrigger[T]) CanMerge() bool { return true }

func (t *CountTrigger[T]) OnMerge(ctx OnMergeContext, _ TimeWindow) {
	MergePartitionedState(ctx, t.countDescriptor)
}

func (t *CountTrigger[T]) IsEndOfStreamTrigger() bool { return false }

// EventTimeTrigger fires when the watermark passes the window end. It keeps
// no partitioned state, only an event-time timer per pane.
type EventTimeTrigger[T any] struct{}

func NewEventTimeTrigger[T any]() *EventTimeTrigger[T] {
	return &EventTimeTrigger[T]{}
}

func (e *EventTimeTrigger[T]) OnElement(ctx TriggerContext, window TimeWindow, _ T, _ int64) *future.Future[TriggerResult] {
	if window.MaxTimestamp() <= ctx.CurrentWatermarkTimestamp() {
		// if the watermark is already past the window fire immediately
		return future.Completed(Fire)
	}
	ctx.RegisterEventTimeTimer(window.MaxTimestamp())
	return future.Completed(Continue)
}

func (e *EventTimeTrigger[T]) OnProcessingTime(TriggerContext, TimeWindow, int64) *future.Future[TriggerResult] {
	return future.Completed(Continue)
}

func (e *EventTimeTrigger[T]) OnEventTime(_ TriggerContext, window TimeWindow, timestamp int64) *future.Future[TriggerResult] {
	if timestamp == window.MaxTimestamp() {
		return future.Completed(Fire)
	}
	return future.Completed(Continue)
}

func (e *EventTimeTrigger[T]) Clear(ctx TriggerContext, window TimeWindow) *future.Future[struct{}] {
	ctx.DeleteEventTimeTimer(window.MaxTimestamp())
	return future.Completed(struct{}{})
}

func (e *EventTimeTrigger[T]) CanMerge() bool { return true }

func (e *EventTimeTrigger[T]) OnMerge(ctx OnMergeContext, window TimeWindow) {
	//the merged window's end may already be behind the watermark, in which
	//case the next callback on the pane fires it
	if window.MaxTimestamp() > ctx.CurrentWatermarkTimestamp() {
		ctx.RegisterEventTimeTimer(window.MaxTimestamp())
	}
}

func (e *EventTimeTrigger[T]) IsEndOfStreamTrigger() bool { return false }

// ProcessingTimeTrigger fires when the wall clock passes the window end.
type ProcessingTimeTrigger[T any] struct{}

func NewProcessingTimeTrigger[T any]() *ProcessingTimeTrigger[T] {
	return &ProcessingTimeTrigger[T]{}
}

func (p *ProcessingTimeTrigger[T]) OnElement(ctx TriggerContext, window TimeWindow, _ T, _ int64) *future.Future[TriggerResult] {
	ctx.RegisterProcessingTimeTimer(window.MaxTimestamp())
	return future.Completed(Continue)
}

func (p *ProcessingTimeTrigger[T]) OnProcessingTime(_ TriggerContext, window TimeWindow, timestamp int64) *future.Future[TriggerResult] {
	if timestamp == window.MaxTimestamp() {
		return future.Completed(Fire)
	}
	return future.Completed(Continue)
}

func (p *ProcessingTimeTrigger[T]) OnEventTime(TriggerContext, TimeWindow, int64) *future.Future[TriggerResult] {
	return future.Completed(Continue)
}

func (p *ProcessingTimeTrigger[T]) Clear(ctx TriggerContext, window TimeWindow) *future.Future[struct{}] {
	ctx.DeleteProcessingTimeTimer(window.MaxTimestamp())
	return future.Completed(struct{}{})
}

func (p *ProcessingTimeTrigger[T]) CanMerge() bool { return true }

func (p *ProcessingTimeTrigger[T]) OnMerge(ctx OnMergeContext, window TimeWindow) {
	if window.MaxTimestamp() > ctx.CurrentProcessingTimestamp() {
		ctx.RegisterProcessingTimeTimer(window.MaxTimestamp())
	}
}

func (p *ProcessingTimeTrigger[T]) IsEndOfStreamTrigger() bool { return false }

// ContinuousProcessingTimeTrigger fires repeatedly at a fixed wall clock
// interval while the pane stays open. The next fire timestamp is partitioned
// state so a merged pane keeps the earliest pending fire.
type ContinuousProcessingTimeTrigger[T any] struct {
	interval       int64
	fireDescriptor state.Descriptor[int64]
}

func NewContinuousProcessingTimeTrigger[T any](interval int64) *ContinuousProcessingTimeTrigger[T] {
	return &ContinuousProcessingTimeTrigger[T]{
		interval: interval,
		fireDescriptor: state.GobDescriptor[int64]("trigger-fire-timestamp",
			func() int64 { return 0 }, state.Min[int64]()),
	}
}

func (c *ContinuousProcessingTimeTrigger[T]) OnElement(ctx TriggerContext, _ TimeWindow, _ T, _ int64) *future.Future[TriggerResult] {
	cell := PartitionedState(ctx, c.fireDescriptor)
	return future.ThenAsync(cell.Value(), func(fireTimestamp int64) *future.Future[TriggerResult] {
		if fireTimestamp != 0 {
			return future.Completed(Continue)
		}
		now := ctx.CurrentProcessingTimestamp()
		next := now - (now % c.interval) + c.interval
		ctx.RegisterProcessingTimeTimer(next)
		return future.Map(cell.Update(next), func(struct{}) (TriggerResult, error) {
			return Continue, nil
		})
	})
}

func (c *ContinuousProcessingTimeTrigger[T]) OnProcessingTime(ctx TriggerContext, _ TimeWindow, timestamp int64) *future.Future[TriggerResult] {
	cell := PartitionedState(ctx, c.fireDescriptor)
	return future.ThenAsync(cell.Value(), func(fireTimestamp int64) *future.Future[TriggerResult] {
		if fireTimestamp != timestamp {
			return future.Completed(Continue)
		}
		next := timestamp + c.interval
		ctx.RegisterProcessingTimeTimer(next)
		return future.Map(cell.Update(next), func(struct{}) (TriggerResult, error) {
			return Fire, nil
		})
	})
}

func (c *ContinuousProcessingTimeTrigger[T]) OnEventTime(TriggerContext, TimeWindow, int64) *future.Future[TriggerResult] {
	return future.Completed(Continue)
}

func (c *ContinuousProcessingTimeTrigger[T]) Clear(ctx TriggerContext, _ TimeWindow) *future.Future[struct{}] {
	cell := PartitionedState(ctx, c.fireDescriptor)
	return future.ThenAsync(cell.Value(), func(fireTimestamp int64) *future.Future[struct{}] {
		if fireTimestamp != 0 {
			ctx.DeleteProcessingTimeTimer(fireTimestamp)
		}
		return cell.Clear()
	})
}

func (c *ContinuousProcessingTimeTrigger[T]) CanMerge() bool { return true }

func (c *ContinuousProcessingTimeTrigger[T]) OnMerge(ctx OnMergeContext, _ TimeWindow) {
	merged := state.Merge(ctx.StateStore(), c.fireDescriptor, ctx.MergeSources(), ctx.StateNamespace())
	//re-arm the earliest surviving fire on the target pane once the state
	//layer finished recombining
	ctx.DeclareMerge(future.ThenAsync(merged, func(struct{}) *future.Future[struct{}] {
		cell := PartitionedState(ctx, c.fireDescriptor)
		return future.Map(cell.Value(), func(fireTimestamp int64) (struct{}, error) {
			if fireTimestamp != 0 {
				ctx.RegisterProcessingTimeTimer(fireTimestamp)
			}
			return struct{}{}, nil
		})
	}))
}

func (c *ContinuousProcessingTimeTrigger[T]) IsEndOfStreamTrigger() bool { return false }

// PurgingTrigger wraps another trigger and turns every Fire into
// FireAndPurge, everything else passes through.
type PurgingTrigger[T any] struct {
	inner TriggerFn[T]
}

func NewPurgingTrigger[T any](inner TriggerFn[T]) *PurgingTrigger[T] {
	return &PurgingTrigger[T]{inner: inner}
}

func purging(f *future.Future[TriggerResult]) *future.Future[TriggerResult] {
	return future.Map(f, func(result TriggerResult) (TriggerResult, error) {
		if result.IsFire() {
			return FireAndPurge, nil
		}
		return result, nil
	})
}

func (p *PurgingTrigger[T]) OnElement(ctx TriggerContext, window TimeWindow, value T, timestamp int64) *future.Future[TriggerResult] {
	return purging(p.inner.OnElement(ctx, window, value, timestamp))
}

func (p *PurgingTrigger[T]) OnProcessingTime(ctx TriggerContext, window TimeWindow, timestamp int64) *future.Future[TriggerResult] {
	return purging(p.inner.OnProcessingTime(ctx, window, timestamp))
}

func (p *PurgingTrigger[T]) OnEventTime(ctx TriggerContext, window TimeWindow, timestamp int64) *future.Future[TriggerResult] {
	return purging(p.inner.OnEventTime(ctx, window, timestamp))
}

func (p *PurgingTrigger[T]) Clear(ctx TriggerContext, window TimeWindow) *future.Future[struct{}] {
	return p.inner.Clear(ctx, window)
}

func (p *PurgingTrigger[T]) CanMerge() bool {
	return p.inner.CanMerge()
}

func (p *PurgingTrigger[T]) OnMerge(ctx OnMergeContext, window TimeWindow) {
	p.inner.OnMerge(ctx, window)
}

func (p *PurgingTrigger[T]) IsEndOfStreamTrigger() bool {
	return p.inner.IsEndOfStreamTrigger()
}

// EndOfStreamTrigger never fires on its own; the operator forces a terminal
// fire per open pane when the input is exhausted.
type EndOfStreamTrigger[T any] struct{}

func NewEndOfStreamTrigger[T any]() *EndOfStreamTrigger[T] {
	return &EndOfStreamTrigger[T]{}
}

func (e *EndOfStreamTrigger[T]) OnElement(TriggerContext, TimeWindow, T, int64) *future.Future[TriggerResult] {
	return future.Completed(Continue)
}

func (e *EndOfStreamTrigger[T]) OnProcessingTime(TriggerContext, TimeWindow, int64) *future.Future[TriggerResult] {
	return future.Completed(Continue)
}

func (e *EndOfStreamTrigger[T]) OnEventTime(TriggerContext, TimeWindow, int64) *future.Future[TriggerResult] {
	return future.Completed(Continue)
}

func (e *EndOfStreamTrigger[T]) Clear(TriggerContext, TimeWindow) *future.Future[struct{}] {
	return future.Completed(struct{}{})
}

func (e *EndOfStreamTrigger[T]) CanMerge() bool { return true }

func (e *EndOfStreamTrigger[T]) OnMerge(OnMergeContext, TimeWindow) {}

func (e *EndOfStreamTrigger[T]) IsEndOfStreamTrigger() bool { return true }
