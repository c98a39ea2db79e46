package window

import (
	"math"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/uber-go/tally/v4"

	"github.com/RuiFG/streaming/streaming-trigger/common/safe"
	"github.com/RuiFG/streaming/streaming-trigger/future"
	"github.com/RuiFG/streaming/streaming-trigger/log"
	"github.com/RuiFG/streaming/streaming-trigger/state"
	"github.com/RuiFG/streaming/streaming-trigger/timer"
)

// Operator owns pane lifecycle: it assigns arriving values to windows,
// buffers them per pane, consults the trigger on every element, timer firing
// and merge, and interprets the TriggerResult. State access is asynchronous,
// so the operator keeps a mailbox per key; one key's operations apply their
// effects strictly in submission order while different keys run concurrently
// on the shared pool.
type Operator[KEY comparable, IN any] struct {
	name     string
	logger   log.Logger
	selector SelectorFn[KEY, IN]
	assigner AssignerFn[IN]
	//merging is non nil when assigner computes merge groups; validated
	//against the trigger's CanMerge at construction
	merging         MergingAssignerFn[IN]
	trigger         TriggerFn[IN]
	collector       Collector[KEY, IN]
	allowedLateness int64

	bufferDescriptor state.Descriptor[[]IN]
	store            *state.Store
	timers           *timer.Service[paneKey[KEY]]
	pool             *ants.Pool

	mutex     sync.Mutex
	mailboxes map[KEY]*mailbox
	open      map[KEY]map[TimeWindow]struct{}

	//watermarkMutex serializes watermark advances; watermarkOps collects the
	//event-time firings one advance enqueued so the caller can await them
	watermarkMutex sync.Mutex
	watermarkOps   []*future.Future[struct{}]

	triggerScope    tally.Scope
	firesCounter    tally.Counter
	purgesCounter   tally.Counter
	mergesCounter   tally.Counter
	lateCounter     tally.Counter
	failuresCounter tally.Counter
}

// ProcessElement submits one arriving value; the returned future resolves
// once every pane effect of this arrival, including any fired emission, is
// applied. Submission order per key is effect order.
func (o *Operator[KEY, IN]) ProcessElement(value IN, timestamp int64) *future.Future[struct{}] {
	key := o.selector(value)
	return o.enqueue(key, func() *future.Future[struct{}] {
		return o.processElement(key, value, timestamp)
	})
}

// ProcessWatermark advances the event-time clock; due event-time timers are
// enqueued behind whatever their keys already have pending, exactly once per
// registration. The returned future resolves once every firing this advance
// caused is applied.
func (o *Operator[KEY, IN]) ProcessWatermark(timestamp int64) *future.Future[struct{}] {
	o.watermarkMutex.Lock()
	defer o.watermarkMutex.Unlock()
	o.watermarkOps = o.watermarkOps[:0]
	o.timers.AdvanceWatermark(timestamp)
	return future.All(o.watermarkOps...)
}

// Finish implements the forced terminal fire: when the trigger is an
// end-of-stream trigger, every still open pane emits once and closes,
// bypassing its timers. The future resolves when the last pane is gone.
func (o *Operator[KEY, IN]) Finish() *future.Future[struct{}] {
	if !o.trigger.IsEndOfStreamTrigger() {
		return future.Completed(struct{}{})
	}
	o.mutex.Lock()
	pending := make(map[KEY][]TimeWindow, len(o.open))
	for key, windows := range o.open {
		for w := range windows {
			pending[key] = append(pending[key], w)
		}
	}
	o.mutex.Unlock()
	var dones []*future.Future[struct{}]
	for key, windows := range pending {
		key, windows := key, windows
		sort.Slice(windows, func(i, j int) bool {
			if windows[i].Start == windows[j].Start {
				return windows[i].End < windows[j].End
			}
			return windows[i].Start < windows[j].Start
		})
		dones = append(dones, o.enqueue(key, func() *future.Future[struct{}] {
			return o.finishKey(key, windows)
		}))
	}
	return future.All(dones...)
}

func (o *Operator[KEY, IN]) Close() error {
	o.timers.Close()
	o.pool.Release()
	return o.store.Close()
}

//-------------------------------------timer.Handler-------------------------------------

func (o *Operator[KEY, IN]) OnProcessingTime(t timer.Timer[paneKey[KEY]]) {
	o.enqueue(t.Payload.key, func() *future.Future[struct{}] {
		return o.onTimer(t, false)
	})
}

// OnEventTime only ever runs inside AdvanceWatermark, under watermarkMutex.
func (o *Operator[KEY, IN]) OnEventTime(t timer.Timer[paneKey[KEY]]) {
	done := o.enqueue(t.Payload.key, func() *future.Future[struct{}] {
		return o.onTimer(t, true)
	})
	o.watermarkOps = append(o.watermarkOps, done)
}

//-------------------------------------per-key ordering-------------------------------------

func (o *Operator[KEY, IN]) enqueue(key KEY, fn paneOp) *future.Future[struct{}] {
	done := future.New[struct{}]()
	mb := o.mailboxOf(key)
	if mb.push(func() *future.Future[struct{}] {
		execute(fn, done)
		return done
	}) {
		o.submitDrain(mb)
	}
	return done
}

func (o *Operator[KEY, IN]) mailboxOf(key KEY) *mailbox {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	mb, ok := o.mailboxes[key]
	if !ok {
		mb = &mailbox{}
		o.mailboxes[key] = mb
	}
	return mb
}

func (o *Operator[KEY, IN]) submitDrain(mb *mailbox) {
	if err := o.pool.Submit(func() { o.drain(mb) }); err != nil {
		//pool released mid shutdown; drain off the pool so queued panes
		//still resolve
		o.logger.Warnw("worker pool rejected drain", "err", err)
		safe.Go(func() error {
			o.drain(mb)
			return nil
		})
	}
}

func (o *Operator[KEY, IN]) drain(mb *mailbox) {
	next, ok := mb.pop()
	if !ok {
		return
	}
	next().OnComplete(func(_ struct{}, err error) {
		if err != nil {
			//pane-local failure: the pane stays open, other panes are
			//untouched
			o.failuresCounter.Inc(1)
			o.logger.Errorw("pane operation failed", "operator", o.name, "err", err)
		}
		o.submitDrain(mb)
	})
}

//-------------------------------------pane operations-------------------------------------

func (o *Operator[KEY, IN]) processElement(key KEY, value IN, timestamp int64) *future.Future[struct{}] {
	windows := o.assigner.AssignWindows(o.timers, value, timestamp)
	done := future.New[struct{}]()
	var step func(i int)
	step = func(i int) {
		if i >= len(windows) {
			done.Complete(struct{}{})
			return
		}
		o.processWindowElement(key, windows[i], value, timestamp).OnComplete(func(_ struct{}, err error) {
			if err != nil {
				done.Fail(err)
				return
			}
			step(i + 1)
		})
	}
	step(0)
	return done
}

func (o *Operator[KEY, IN]) processWindowElement(key KEY, w TimeWindow, value IN, timestamp int64) *future.Future[struct{}] {
	if o.isWindowLate(w) {
		o.lateCounter.Inc(1)
		return future.Completed(struct{}{})
	}
	if o.merging != nil {
		target, merged := o.mergeAndTrack(key, w)
		return future.ThenAsync(merged, func(struct{}) *future.Future[struct{}] {
			return o.addAndTrigger(key, target, value, timestamp)
		})
	}
	o.track(key, w)
	return o.addAndTrigger(key, w, value, timestamp)
}

func (o *Operator[KEY, IN]) addAndTrigger(key KEY, w TimeWindow, value IN, timestamp int64) *future.Future[struct{}] {
	ctx := o.bind(key, w)
	buffer := state.Bind(o.store, ctx.namespace, o.bufferDescriptor)
	return future.ThenAsync(buffer.Value(), func(buffered []IN) *future.Future[struct{}] {
		return future.ThenAsync(buffer.Update(append(buffered, value)), func(struct{}) *future.Future[struct{}] {
			o.registerCleanupTimer(key, w)
			return future.ThenAsync(o.trigger.OnElement(ctx, w, value, timestamp), func(result TriggerResult) *future.Future[struct{}] {
				return o.applyResult(key, w, ctx, result)
			})
		})
	})
}

func (o *Operator[KEY, IN]) onTimer(t timer.Timer[paneKey[KEY]], eventTime bool) *future.Future[struct{}] {
	key, w := t.Payload.key, t.Payload.window
	//timers of retired or closed panes fire into the void
	if !o.isOpen(key, w) {
		return future.Completed(struct{}{})
	}
	ctx := o.bind(key, w)
	var resolved *future.Future[TriggerResult]
	if eventTime {
		resolved = o.trigger.OnEventTime(ctx, w, t.Timestamp)
	} else {
		resolved = o.trigger.OnProcessingTime(ctx, w, t.Timestamp)
	}
	applied := future.ThenAsync(resolved, func(result TriggerResult) *future.Future[struct{}] {
		return o.applyResult(key, w, ctx, result)
	})
	if eventTime == o.assigner.IsEventTime() && t.Timestamp == o.cleanupTime(w) {
		return future.ThenAsync(applied, func(struct{}) *future.Future[struct{}] {
			if !o.isOpen(key, w) {
				return future.Completed(struct{}{})
			}
			return o.clearPane(key, w, ctx)
		})
	}
	return applied
}

func (o *Operator[KEY, IN]) finishKey(key KEY, windows []TimeWindow) *future.Future[struct{}] {
	done := future.New[struct{}]()
	var step func(i int)
	step = func(i int) {
		if i >= len(windows) {
			done.Complete(struct{}{})
			return
		}
		w := windows[i]
		if !o.isOpen(key, w) {
			step(i + 1)
			return
		}
		ctx := o.bind(key, w)
		o.applyResult(key, w, ctx, FireAndPurge).OnComplete(func(_ struct{}, err error) {
			if err != nil {
				done.Fail(err)
				return
			}
			step(i + 1)
		})
	}
	step(0)
	return done
}

// applyResult turns a TriggerResult into pane effects: emission for fires,
// clear for purges, both in that order for FireAndPurge.
func (o *Operator[KEY, IN]) applyResult(key KEY, w TimeWindow, ctx *paneContext[KEY], result TriggerResult) *future.Future[struct{}] {
	if !result.IsFire() && !result.IsPurge() {
		return future.Completed(struct{}{})
	}
	emitted := future.Completed(struct{}{})
	if result.IsFire() {
		buffer := state.Bind(o.store, ctx.namespace, o.bufferDescriptor)
		emitted = future.Map(buffer.Value(), func(buffered []IN) (struct{}, error) {
			if len(buffered) > 0 {
				o.collector.Collect(Pane[KEY, IN]{Key: key, Window: w, Elements: buffered}, w.MaxTimestamp())
				o.firesCounter.Inc(1)
			}
			return struct{}{}, nil
		})
	}
	if result.IsPurge() {
		return future.ThenAsync(emitted, func(struct{}) *future.Future[struct{}] {
			return o.clearPane(key, w, ctx)
		})
	}
	return emitted
}

// clearPane closes the pane: the trigger releases its timers and cells,
// then the whole namespace is dropped so any later read sees the default
// value. The pane leaves the open registry only once the whole chain
// succeeded; a failed clear keeps it open with its cleanup timer armed so a
// later operation can purge it again. No callback is ever dispatched against
// a closed pane.
func (o *Operator[KEY, IN]) clearPane(key KEY, w TimeWindow, ctx *paneContext[KEY]) *future.Future[struct{}] {
	cleared := future.ThenAsync(o.trigger.Clear(ctx, w), func(struct{}) *future.Future[struct{}] {
		return o.store.DeleteNamespace(ctx.namespace)
	})
	return future.Map(cleared, func(struct{}) (struct{}, error) {
		o.markClosed(key, w)
		o.deleteCleanupTimer(key, w)
		o.purgesCounter.Inc(1)
		return struct{}{}, nil
	})
}

//-------------------------------------merge orchestration-------------------------------------

// mergeAndTrack records w as open and, when the assigner coalesces windows,
// runs the merge protocol: OnMerge synchronously on the target, then the
// declared state recombinations plus the operator's own pane buffer, then
// the retired namespaces are dropped for good. The element continues against
// the returned window only after the resolved future completes, and queued
// operations for this key line up behind it.
func (o *Operator[KEY, IN]) mergeAndTrack(key KEY, w TimeWindow) (TimeWindow, *future.Future[struct{}]) {
	o.mutex.Lock()
	windows, ok := o.open[key]
	if !ok {
		windows = map[TimeWindow]struct{}{}
		o.open[key] = windows
	}
	windows[w] = struct{}{}
	openWindows := make([]TimeWindow, 0, len(windows))
	for open := range windows {
		openWindows = append(openWindows, open)
	}
	var group *MergeGroup
	for _, g := range o.merging.MergeWindows(openWindows) {
		for _, source := range g.Sources {
			if source == w {
				g := g
				group = &g
				break
			}
		}
	}
	if group == nil {
		o.mutex.Unlock()
		return w, future.Completed(struct{}{})
	}
	target := group.Target
	for _, source := range group.Sources {
		delete(windows, source)
	}
	windows[target] = struct{}{}
	o.mutex.Unlock()

	var sources []string
	for _, source := range group.Sources {
		if source == target {
			continue
		}
		o.deleteCleanupTimer(key, source)
		sources = append(sources, paneNamespace(key, source))
	}
	mctx := &mergeContext[KEY]{
		paneContext: *o.bind(key, target),
		sources:     sources,
	}
	o.trigger.OnMerge(mctx, target)
	//the pane buffer follows the merge like any other declared cell
	mctx.DeclareMerge(state.Merge(o.store, o.bufferDescriptor, sources, mctx.namespace))
	o.mergesCounter.Inc(1)

	//once every declared recombination landed, the retired panes' leftover
	//state vanishes irreversibly
	retired := future.ThenAsync(future.All(mctx.declared...), func(struct{}) *future.Future[struct{}] {
		var drops []*future.Future[struct{}]
		for _, namespace := range sources {
			drops = append(drops, o.store.DeleteNamespace(namespace))
		}
		return future.All(drops...)
	})
	return target, retired
}

//-------------------------------------pane registry-------------------------------------

func (o *Operator[KEY, IN]) track(key KEY, w TimeWindow) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	windows, ok := o.open[key]
	if !ok {
		windows = map[TimeWindow]struct{}{}
		o.open[key] = windows
	}
	windows[w] = struct{}{}
}

func (o *Operator[KEY, IN]) isOpen(key KEY, w TimeWindow) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	_, ok := o.open[key][w]
	return ok
}

func (o *Operator[KEY, IN]) markClosed(key KEY, w TimeWindow) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	windows := o.open[key]
	delete(windows, w)
	if len(windows) == 0 {
		delete(o.open, key)
	}
}

//-------------------------------------lateness & cleanup-------------------------------------

func (o *Operator[KEY, IN]) bind(key KEY, w TimeWindow) *paneContext[KEY] {
	return &paneContext[KEY]{
		timers:    o.timers,
		store:     o.store,
		scope:     o.triggerScope,
		key:       key,
		window:    w,
		namespace: paneNamespace(key, w),
	}
}

func (o *Operator[KEY, IN]) isWindowLate(w TimeWindow) bool {
	return o.assigner.IsEventTime() &&
		o.cleanupTime(w) <= o.timers.CurrentWatermarkTimestamp()
}

// cleanupTime is Window.MaxTimestamp + allowedLateness for event time,
// guarded against overflow, and the bare max timestamp for processing time.
func (o *Operator[KEY, IN]) cleanupTime(w TimeWindow) int64 {
	if o.assigner.IsEventTime() {
		cleanupTime := w.MaxTimestamp() + o.allowedLateness
		if cleanupTime >= w.MaxTimestamp() {
			return cleanupTime
		}
		return math.MaxInt64
	}
	return w.MaxTimestamp()
}

func (o *Operator[KEY, IN]) registerCleanupTimer(key KEY, w TimeWindow) {
	cleanupTime := o.cleanupTime(w)
	if cleanupTime == math.MaxInt64 {
		return
	}
	t := timer.Timer[paneKey[KEY]]{
		Payload:   paneKey[KEY]{key: key, window: w},
		Timestamp: cleanupTime,
	}
	if o.assigner.IsEventTime() {
		o.timers.RegisterEventTimeTimer(t)
	} else {
		o.timers.RegisterProcessingTimeTimer(t)
	}
}

func (o *Operator[KEY, IN]) deleteCleanupTimer(key KEY, w TimeWindow) {
	cleanupTime := o.cleanupTime(w)
	if cleanupTime == math.MaxInt64 {
		return
	}
	t := timer.Timer[paneKey[KEY]]{
		Payload:   paneKey[KEY]{key: key, window: w},
		Timestamp: cleanupTime,
	}
	if o.assigner.IsEventTime() {
		o.timers.DeleteEventTimeTimer(t)
	} else {
		o.timers.DeleteProcessingTimeTimer(t)
	}
}
