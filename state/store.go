package state

import (
	"github.com/pkg/errors"

	"github.com/RuiFG/streaming/streaming-trigger/common/safe"
	"github.com/RuiFG/streaming/streaming-trigger/future"
)

// Store serves descriptor cells off the processing thread: every operation
// resolves a future instead of returning in place. Ordering between
// operations is the caller's business; the windowing operator's per key
// queue is what keeps one pane's operations sequential.
type Store struct {
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) Backend() Backend {
	return s.backend
}

// DeleteNamespace drops every cell of a pane.
func (s *Store) DeleteNamespace(namespace string) *future.Future[struct{}] {
	return run(func() (struct{}, error) {
		return struct{}{}, s.backend.DeleteNamespace(namespace)
	})
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Cell is one descriptor's state scoped to a single (key, window) namespace.
type Cell[T any] struct {
	store      *Store
	namespace  string
	descriptor Descriptor[T]
}

func Bind[T any](store *Store, namespace string, descriptor Descriptor[T]) *Cell[T] {
	return &Cell[T]{store: store, namespace: namespace, descriptor: descriptor}
}

// Value reads the cell, resolving with the descriptor's initial value if the
// cell was never written or has been cleared.
func (c *Cell[T]) Value() *future.Future[T] {
	return run(func() (T, error) {
		return c.load()
	})
}

func (c *Cell[T]) Update(value T) *future.Future[struct{}] {
	return run(func() (struct{}, error) {
		bytes, err := c.descriptor.Serializer(value)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.store.backend.Put(c.namespace, c.descriptor.Key, bytes)
	})
}

func (c *Cell[T]) Clear() *future.Future[struct{}] {
	return run(func() (struct{}, error) {
		return struct{}{}, c.store.backend.Delete(c.namespace, c.descriptor.Key)
	})
}

func (c *Cell[T]) load() (T, error) {
	bytes, err := c.store.backend.Get(c.namespace, c.descriptor.Key)
	if err != nil {
		var nilV T
		return nilV, err
	}
	if bytes == nil {
		return c.descriptor.Initializer(), nil
	}
	return c.descriptor.Deserializer(bytes)
}

// Merge combines one descriptor's cells from every source namespace into the
// target namespace under the descriptor's merge rule, deleting the source
// cells. Sources without a written cell contribute nothing; if no source
// wrote the cell the target is left untouched.
func Merge[T any](store *Store, descriptor Descriptor[T], sources []string, target string) *future.Future[struct{}] {
	if descriptor.Merger == nil {
		return future.Failed[struct{}](errors.Errorf("state %s has no merge rule declared", descriptor.Key))
	}
	return run(func() (struct{}, error) {
		var values []T
		if targetBytes, err := store.backend.Get(target, descriptor.Key); err != nil {
			return struct{}{}, err
		} else if targetBytes != nil {
			value, err := descriptor.Deserializer(targetBytes)
			if err != nil {
				return struct{}{}, err
			}
			values = append(values, value)
		}
		merged := false
		for _, source := range sources {
			if source == target {
				continue
			}
			sourceBytes, err := store.backend.Get(source, descriptor.Key)
			if err != nil {
				return struct{}{}, err
			}
			if sourceBytes == nil {
				continue
			}
			value, err := descriptor.Deserializer(sourceBytes)
			if err != nil {
				return struct{}{}, err
			}
			values = append(values, value)
			merged = true
			if err = store.backend.Delete(source, descriptor.Key); err != nil {
				return struct{}{}, err
			}
		}
		if !merged {
			return struct{}{}, nil
		}
		bytes, err := descriptor.Serializer(descriptor.Merger(values))
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, store.backend.Put(target, descriptor.Key, bytes)
	})
}

func run[T any](fn func() (T, error)) *future.Future[T] {
	f := future.New[T]()
	go func() {
		var value T
		if err := safe.Run(func() (err error) {
			value, err = fn()
			return err
		}); err != nil {
			f.Fail(err)
		} else {
			f.Complete(value)
		}
	}()
	return f
}
