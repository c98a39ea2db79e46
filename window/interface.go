package window

// SelectorFn will select the key from the arriving value
type SelectorFn[KEY comparable, T any] func(T) KEY

// Pane is one (key, window) bucket's buffered contents at emission time.
type Pane[KEY comparable, T any] struct {
	Key      KEY
	Window   TimeWindow
	Elements []T
}

// Collector receives fired panes; the timestamp is the window's max
// timestamp so downstream event-time logic stays consistent.
type Collector[KEY comparable, T any] interface {
	Collect(pane Pane[KEY, T], timestamp int64)
}

type CollectorFn[KEY comparable, T any] func(pane Pane[KEY, T], timestamp int64)

func (fn CollectorFn[KEY, T]) Collect(pane Pane[KEY, T], timestamp int64) {
	fn(pane, timestamp)
}
