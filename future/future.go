package future

import (
	"sync"
	"sync/atomic"
)

// Future is the deferred counterpart of a plain return value: it resolves
// exactly once, either with a value or with an error. Trigger callbacks and
// state accesses hand these back instead of blocking the processing thread.
type Future[T any] struct {
	//0: pending 1: resolved
	status uint32
	done   chan struct{}

	mutex         sync.Mutex
	value         T
	err           error
	continuations []func(T, error)
}

func New[T any]() *Future[T] {
	return &Future[T]{
		status: 0,
		done:   make(chan struct{}),
	}
}

// Completed returns an already resolved Future holding value.
func Completed[T any](value T) *Future[T] {
	f := New[T]()
	f.Complete(value)
	return f
}

// Failed returns an already resolved Future holding err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)
	return f
}

func (f *Future[T]) Complete(value T) bool {
	return f.resolve(value, nil)
}

func (f *Future[T]) Fail(err error) bool {
	var nilV T
	return f.resolve(nilV, err)
}

func (f *Future[T]) resolve(value T, err error) bool {
	f.mutex.Lock()
	if atomic.LoadUint32(&f.status) == 1 {
		f.mutex.Unlock()
		return false
	}
	//value and err must be in place before the status flip becomes visible;
	//OnComplete snapshots them as soon as it observes status 1
	f.value = value
	f.err = err
	continuations := f.continuations
	f.continuations = nil
	atomic.StoreUint32(&f.status, 1)
	f.mutex.Unlock()
	close(f.done)
	if len(continuations) > 0 {
		go func() {
			for _, continuation := range continuations {
				continuation(value, err)
			}
		}()
	}
	return true
}

func (f *Future[T]) Resolved() bool {
	return atomic.LoadUint32(&f.status) == 1
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the Future resolves. Only tests and the outermost engine
// loop should call it; callbacks chain with OnComplete instead.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.value, f.err
}

// OnComplete registers a continuation invoked once the Future resolves.
// Continuations never run on the resolving goroutine, so a continuation may
// safely submit work back to the pool that resolved the Future.
func (f *Future[T]) OnComplete(continuation func(T, error)) {
	f.mutex.Lock()
	if atomic.LoadUint32(&f.status) == 0 {
		f.continuations = append(f.continuations, continuation)
		f.mutex.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mutex.Unlock()
	go continuation(value, err)
}

// Map resolves a new Future with fn applied to f's value, passing a failure
// through untouched.
func Map[IN, OUT any](f *Future[IN], fn func(IN) (OUT, error)) *Future[OUT] {
	mapped := New[OUT]()
	f.OnComplete(func(value IN, err error) {
		if err != nil {
			mapped.Fail(err)
			return
		}
		if out, mapErr := fn(value); mapErr != nil {
			mapped.Fail(mapErr)
		} else {
			mapped.Complete(out)
		}
	})
	return mapped
}

// ThenAsync chains fn after f, resolving with the Future fn returns.
func ThenAsync[IN, OUT any](f *Future[IN], fn func(IN) *Future[OUT]) *Future[OUT] {
	chained := New[OUT]()
	f.OnComplete(func(value IN, err error) {
		if err != nil {
			chained.Fail(err)
			return
		}
		fn(value).OnComplete(func(out OUT, err error) {
			if err != nil {
				chained.Fail(err)
			} else {
				chained.Complete(out)
			}
		})
	})
	return chained
}

// All resolves once every given Future resolved, failing with the first error
// observed. A nil or empty slice resolves immediately.
func All(futures ...*Future[struct{}]) *Future[struct{}] {
	if len(futures) == 0 {
		return Completed(struct{}{})
	}
	all := New[struct{}]()
	var pending int64 = int64(len(futures))
	for _, f := range futures {
		f.OnComplete(func(_ struct{}, err error) {
			if err != nil {
				all.Fail(err)
				return
			}
			if atomic.AddInt64(&pending, -1) == 0 {
				all.Complete(struct{}{})
			}
		})
	}
	return all
}
