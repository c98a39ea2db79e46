package window

import (
	"fmt"

	"github.com/uber-go/tally/v4"

	"github.com/RuiFG/streaming/streaming-trigger/future"
	"github.com/RuiFG/streaming/streaming-trigger/state"
	"github.com/RuiFG/streaming/streaming-trigger/timer"
)

// paneKey identifies one pane; it is the payload of every timer the pane
// registers, which is what makes registration idempotent per
// (key, window, time, kind).
type paneKey[KEY comparable] struct {
	key    KEY
	window TimeWindow
}

func paneNamespace[KEY comparable](key KEY, window TimeWindow) string {
	return fmt.Sprintf("%v/%s", key, window.Key())
}

type paneContext[KEY comparable] struct {
	timers    *timer.Service[paneKey[KEY]]
	store     *state.Store
	scope     tally.Scope
	key       KEY
	window    TimeWindow
	namespace string
}

func (c *paneContext[KEY]) CurrentProcessingTimestamp() int64 {
	return c.timers.CurrentProcessingTimestamp()
}

func (c *paneContext[KEY]) CurrentWatermarkTimestamp() int64 {
	return c.timers.CurrentWatermarkTimestamp()
}

func (c *paneContext[KEY]) RegisterProcessingTimeTimer(timestamp int64) {
	c.timers.RegisterProcessingTimeTimer(timer.Timer[paneKey[KEY]]{
		Payload:   paneKey[KEY]{key: c.key, window: c.window},
		Timestamp: timestamp,
	})
}

func (c *paneContext[KEY]) RegisterEventTimeTimer(timestamp int64) {
	c.timers.RegisterEventTimeTimer(timer.Timer[paneKey[KEY]]{
		Payload:   paneKey[KEY]{key: c.key, window: c.window},
		Timestamp: timestamp,
	})
}

func (c *paneContext[KEY]) DeleteProcessingTimeTimer(timestamp int64) {
	c.timers.DeleteProcessingTimeTimer(timer.Timer[paneKey[KEY]]{
		Payload:   paneKey[KEY]{key: c.key, window: c.window},
		Timestamp: timestamp,
	})
}

func (c *paneContext[KEY]) DeleteEventTimeTimer(timestamp int64) {
	c.timers.DeleteEventTimeTimer(timer.Timer[paneKey[KEY]]{
		Payload:   paneKey[KEY]{key: c.key, window: c.window},
		Timestamp: timestamp,
	})
}

func (c *paneContext[KEY]) StateStore() *state.Store {
	return c.store
}

func (c *paneContext[KEY]) StateNamespace() string {
	return c.namespace
}

func (c *paneContext[KEY]) MetricGroup() tally.Scope {
	return c.scope
}

// mergeContext binds the target window and remembers the recombinations the
// trigger declared, so the operator can await them before letting anything
// else at the target pane.
type mergeContext[KEY comparable] struct {
	paneContext[KEY]
	sources  []string
	declared []*future.Future[struct{}]
}

func (c *mergeContext[KEY]) MergeSources() []string {
	return c.sources
}

func (c *mergeContext[KEY]) DeclareMerge(done *future.Future[struct{}]) {
	c.declared = append(c.declared, done)
}
