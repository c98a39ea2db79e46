package window

import (
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"

	"github.com/RuiFG/streaming/streaming-trigger/log"
	"github.com/RuiFG/streaming/streaming-trigger/state"
	"github.com/RuiFG/streaming/streaming-trigger/timer"
)

type options[KEY comparable, IN any] struct {
	selectorFn      SelectorFn[KEY, IN]
	triggerFn       TriggerFn[IN]
	assignerFn      AssignerFn[IN]
	allowedLateness int64
	backend         state.Backend
	scope           tally.Scope
	logger          log.Logger
	poolSize        int
}

type WithOptions[KEY comparable, IN any] func(opts *options[KEY, IN]) error

func WithKeySelector[KEY comparable, IN any](fn SelectorFn[KEY, IN]) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if fn == nil {
			return errors.Errorf("SelectorFn can't be nil")
		}
		opts.selectorFn = fn
		return nil
	}
}

func WithNonKeySelector[IN any]() WithOptions[struct{}, IN] {
	return func(opts *options[struct{}, IN]) error {
		nonKey := struct{}{}
		opts.selectorFn = func(IN) struct{} {
			return nonKey
		}
		return nil
	}
}

func WithAssigner[KEY comparable, IN any](fn AssignerFn[IN]) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if fn == nil {
			return errors.Errorf("AssignerFn can't be nil")
		}
		opts.assignerFn = fn
		return nil
	}
}

func WithTumblingEventTime[KEY comparable, IN any](windowSize time.Duration, globalOffset time.Duration) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if windowSize < time.Millisecond {
			return errors.Errorf("windowSize should be greater than milliseconds")
		}
		opts.assignerFn = NewTumblingEventTimeAssigner[IN](
			int64(windowSize/time.Millisecond), int64(globalOffset/time.Millisecond))
		return nil
	}
}

func WithTumblingProcessingTime[KEY comparable, IN any](windowSize time.Duration, globalOffset time.Duration) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if windowSize < time.Millisecond {
			return errors.Errorf("windowSize should be greater than milliseconds")
		}
		opts.assignerFn = NewTumblingProcessingTimeAssigner[IN](
			int64(windowSize/time.Millisecond), int64(globalOffset/time.Millisecond))
		return nil
	}
}

func WithSlidingEventTime[KEY comparable, IN any](windowSize time.Duration, slide time.Duration, globalOffset time.Duration) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if windowSize < time.Millisecond || slide < time.Millisecond {
			return errors.Errorf("windowSize and slide should be greater than milliseconds")
		}
		opts.assignerFn = NewSlidingEventTimeAssigner[IN](
			int64(windowSize/time.Millisecond), int64(slide/time.Millisecond), int64(globalOffset/time.Millisecond))
		return nil
	}
}

func WithSessionEventTime[KEY comparable, IN any](gap time.Duration) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if gap < time.Millisecond {
			return errors.Errorf("session gap should be greater than milliseconds")
		}
		opts.assignerFn = NewSessionEventTimeAssigner[IN](int64(gap / time.Millisecond))
		return nil
	}
}

func WithTrigger[KEY comparable, IN any](fn TriggerFn[IN]) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if fn == nil {
			return errors.Errorf("TriggerFn can't be nil")
		}
		opts.triggerFn = fn
		return nil
	}
}

func WithAllowedLateness[KEY comparable, IN any](allowedLateness time.Duration) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if allowedLateness < 0 {
			return errors.Errorf("allowedLateness can't less than 0")
		}
		opts.allowedLateness = int64(allowedLateness / time.Millisecond)
		return nil
	}
}

func WithStateBackend[KEY comparable, IN any](backend state.Backend) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if backend == nil {
			return errors.Errorf("state backend can't be nil")
		}
		opts.backend = backend
		return nil
	}
}

func WithMetricsScope[KEY comparable, IN any](scope tally.Scope) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		opts.scope = scope
		return nil
	}
}

func WithLogger[KEY comparable, IN any](logger log.Logger) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		opts.logger = logger
		return nil
	}
}

func WithPoolSize[KEY comparable, IN any](size int) WithOptions[KEY, IN] {
	return func(opts *options[KEY, IN]) error {
		if size < 1 {
			return errors.Errorf("pool size should be greater than 0")
		}
		opts.poolSize = size
		return nil
	}
}

// New binds selector, assigner and trigger into an operator. A trigger that
// can't merge paired with a merging assigner is a configuration error and is
// rejected here, never at merge time.
func New[KEY comparable, IN any](name string, collector Collector[KEY, IN], withOptionsFns ...WithOptions[KEY, IN]) (*Operator[KEY, IN], error) {
	if collector == nil {
		return nil, errors.Errorf("%s: collector can't be nil", name)
	}
	o := &options[KEY, IN]{poolSize: runtime.NumCPU()}
	for _, withOptionsFn := range withOptionsFns {
		if err := withOptionsFn(o); err != nil {
			return nil, errors.WithMessagef(err, "%s illegal parameter", name)
		}
	}
	if o.selectorFn == nil {
		return nil, errors.Errorf("%s: key selector is required", name)
	}
	if o.assignerFn == nil {
		return nil, errors.Errorf("%s: window assigner is required", name)
	}
	if o.triggerFn == nil {
		if o.assignerFn.IsEventTime() {
			o.triggerFn = NewEventTimeTrigger[IN]()
		} else {
			o.triggerFn = NewProcessingTimeTrigger[IN]()
		}
	}
	merging, _ := o.assignerFn.(MergingAssignerFn[IN])
	if merging != nil && !o.triggerFn.CanMerge() {
		return nil, errors.Errorf("%s: trigger does not support merging windows", name)
	}
	if o.backend == nil {
		o.backend = state.NewMemoryBackend()
	}
	if o.logger == nil {
		o.logger = log.Global().Named(name)
	}
	if o.scope == nil {
		o.scope = tally.NoopScope
	}

	logger := o.logger
	pool, err := ants.NewPool(o.poolSize, ants.WithPanicHandler(func(r interface{}) {
		logger.Errorw("worker panic", "panic", r)
	}))
	if err != nil {
		return nil, errors.WithMessagef(err, "%s: failed to create worker pool", name)
	}

	operator := &Operator[KEY, IN]{
		name:            name,
		logger:          logger,
		selector:        o.selectorFn,
		assigner:        o.assignerFn,
		merging:         merging,
		trigger:         o.triggerFn,
		collector:       collector,
		allowedLateness: o.allowedLateness,
		bufferDescriptor: state.GobDescriptor[[]IN]("pane-buffer",
			func() []IN { return nil }, state.Union[IN]()),
		store:     state.NewStore(o.backend),
		pool:      pool,
		mailboxes: map[KEY]*mailbox{},
		open:      map[KEY]map[TimeWindow]struct{}{},
	}
	operator.timers = timer.NewService[paneKey[KEY]](operator)
	scope := o.scope.SubScope("window")
	operator.triggerScope = scope.SubScope("trigger")
	operator.firesCounter = scope.Counter("fires")
	operator.purgesCounter = scope.Counter("purges")
	operator.mergesCounter = scope.Counter("merges")
	operator.lateCounter = scope.Counter("late_elements")
	operator.failuresCounter = scope.Counter("pane_failures")
	return operator, nil
}
