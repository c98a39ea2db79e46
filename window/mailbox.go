package window

import (
	"sync"

	"github.com/RuiFG/streaming/streaming-trigger/common/safe"
	"github.com/RuiFG/streaming/streaming-trigger/future"
)

// paneOp is one queued pane operation; the future it hands back resolves
// once every effect of the operation, including the state writes it issued,
// is applied.
type paneOp func() *future.Future[struct{}]

// mailbox is one key's logical queue of pending pane operations. Operations
// run one at a time in submission order; the next one is dispatched only
// after the previous operation's future fully resolved. Distinct keys'
// mailboxes drain concurrently on the shared pool, which is the engine's
// throughput lever.
type mailbox struct {
	mutex   sync.Mutex
	queue   []paneOp
	running bool
}

// push appends fn and reports whether the caller must start a drain.
func (m *mailbox) push(fn paneOp) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.queue = append(m.queue, fn)
	if m.running {
		return false
	}
	m.running = true
	return true
}

// pop takes the next operation, or marks the mailbox idle when drained.
func (m *mailbox) pop() (paneOp, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.queue) == 0 {
		m.running = false
		return nil, false
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	return next, true
}

// execute runs fn, funneling a panic or a failed inner future into done.
func execute(fn paneOp, done *future.Future[struct{}]) {
	var inner *future.Future[struct{}]
	if err := safe.Run(func() error {
		inner = fn()
		return nil
	}); err != nil {
		done.Fail(err)
		return
	}
	inner.OnComplete(func(value struct{}, err error) {
		if err != nil {
			done.Fail(err)
		} else {
			done.Complete(value)
		}
	})
}
