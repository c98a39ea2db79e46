package window

import (
	"github.com/uber-go/tally/v4"

	"github.com/RuiFG/streaming/streaming-trigger/future"
	"github.com/RuiFG/streaming/streaming-trigger/state"
)

// TriggerResult is the outcome of a trigger callback. Fire emits the pane
// and keeps its state; Purge discards the pane without emission;
// FireAndPurge does both, in that order.
type TriggerResult int

const (
	Continue     TriggerResult = 0
	Fire         TriggerResult = 1
	Purge        TriggerResult = 2
	FireAndPurge TriggerResult = 3
)

func (t TriggerResult) IsFire() bool {
	return t&Fire == Fire
}

func (t TriggerResult) IsPurge() bool {
	return t&Purge == Purge
}

// TriggerContext is the bound view of one (key, window) pane a trigger
// callback works through: clocks, idempotent timer registration scoped to
// the pane, partitioned state and metrics. Timer registration for a tuple
// already registered collapses to one; deleting an unregistered timer is a
// no-op.
type TriggerContext interface {
	CurrentProcessingTimestamp() int64
	CurrentWatermarkTimestamp() int64
	RegisterProcessingTimeTimer(timestamp int64)
	RegisterEventTimeTimer(timestamp int64)
	DeleteProcessingTimeTimer(timestamp int64)
	DeleteEventTimeTimer(timestamp int64)
	//StateStore and StateNamespace feed the generic PartitionedState helper;
	//triggers never touch other panes' namespaces.
	StateStore() *state.Store
	StateNamespace() string
	//MetricGroup returns the operator's trigger scope. Request a metric once
	//and keep it, re-registering the same name is disallowed.
	MetricGroup() tally.Scope
}

// OnMergeContext is handed to OnMerge when source windows coalesce. The
// trigger declares which state cells follow the merge; the recombination
// itself happens in the state layer before any further callback touches the
// target window.
type OnMergeContext interface {
	TriggerContext
	//MergeSources lists the retired source windows' namespaces.
	MergeSources() []string
	//DeclareMerge hands a state recombination to the operator, which awaits
	//it before dispatching anything else against the target window.
	DeclareMerge(done *future.Future[struct{}])
}

// TriggerFn decides when a pane fires or purges. Implementations hold no
// per-pane fields; everything durable lives in partitioned state reached
// through the context, which is what lets one instance serve every pane.
// Callbacks must not block: they chain on the futures of the state cells
// they touch and resolve their TriggerResult when done.
type TriggerFn[T any] interface {
	OnElement(ctx TriggerContext, window TimeWindow, value T, timestamp int64) *future.Future[TriggerResult]
	OnProcessingTime(ctx TriggerContext, window TimeWindow, timestamp int64) *future.Future[TriggerResult]
	OnEventTime(ctx TriggerContext, window TimeWindow, timestamp int64) *future.Future[TriggerResult]
	//Clear releases every timer and state cell the trigger created for the
	//pane; the pane is gone only once the returned future resolves.
	Clear(ctx TriggerContext, window TimeWindow) *future.Future[struct{}]
	//CanMerge reports whether OnMerge is properly implemented. A trigger
	//returning false is rejected at binding time when paired with a merging
	//assigner, never at merge time.
	CanMerge() bool
	OnMerge(ctx OnMergeContext, window TimeWindow)
	//IsEndOfStreamTrigger marks triggers fired once, forcibly, when the
	//input is exhausted.
	IsEndOfStreamTrigger() bool
}

// PartitionedState binds a descriptor to the pane the context points at.
func PartitionedState[T any](ctx TriggerContext, descriptor state.Descriptor[T]) *state.Cell[T] {
	return state.Bind(ctx.StateStore(), ctx.StateNamespace(), descriptor)
}

// MergePartitionedState declares that descriptor's cells of the retired
// source windows collapse into the target window under the descriptor's
// merge rule.
func MergePartitionedState[T any](ctx OnMergeContext, descriptor state.Descriptor[T]) {
	ctx.DeclareMerge(state.Merge(ctx.StateStore(), descriptor, ctx.MergeSources(), ctx.StateNamespace()))
}
