package state

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/xujiajun/nutsdb"

	"github.com/RuiFG/streaming/streaming-trigger/log"
)

// fs is a nutsdb backed Backend: bucket per namespace, write-through with an
// in-memory view so reads never touch the db file. The view is rebuilt from
// the db on open, which is how a recovered job sees its previous pane state.
type fs struct {
	logger log.Logger
	db     *nutsdb.DB

	mutex      sync.RWMutex
	namespaces map[string]map[string][]byte
}

func (r *fs) init() error {
	return r.db.View(func(tx *nutsdb.Tx) error {
		var buckets []string
		if err := tx.IterateBuckets(nutsdb.DataStructureBPTree, "*", func(bucket string) bool {
			buckets = append(buckets, bucket)
			return true
		}); err != nil {
			return errors.WithMessage(err, "unable to iterate buckets, the state maybe corrupted")
		}
		for _, bucket := range buckets {
			entries, err := tx.GetAll(bucket)
			if err != nil {
				//a bucket whose entries were all deleted reads as empty;
				//nothing to restore
				r.logger.Debugw("skip unreadable namespace bucket", "namespace", bucket, "err", err)
				continue
			}
			cells := map[string][]byte{}
			for _, entry := range entries {
				cells[string(entry.Key)] = entry.Value
			}
			r.namespaces[bucket] = cells
		}
		return nil
	})
}

func (r *fs) Get(namespace string, key string) ([]byte, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if cells, ok := r.namespaces[namespace]; ok {
		return cells[key], nil
	}
	return nil, nil
}

func (r *fs) Put(namespace string, key string, value []byte) error {
	if err := r.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(namespace, []byte(key), value, 0)
	}); err != nil {
		return errors.WithMessagef(err, "failed to put %s/%s", namespace, key)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	cells, ok := r.namespaces[namespace]
	if !ok {
		cells = map[string][]byte{}
		r.namespaces[namespace] = cells
	}
	cells[key] = value
	return nil
}

func (r *fs) Delete(namespace string, key string) error {
	r.mutex.Lock()
	cells, ok := r.namespaces[namespace]
	if ok {
		_, ok = cells[key]
		delete(cells, key)
	}
	r.mutex.Unlock()
	if !ok {
		return nil
	}
	if err := r.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Delete(namespace, []byte(key))
	}); err != nil {
		return errors.WithMessagef(err, "failed to delete %s/%s", namespace, key)
	}
	return nil
}

func (r *fs) DeleteNamespace(namespace string) error {
	r.mutex.Lock()
	_, ok := r.namespaces[namespace]
	delete(r.namespaces, namespace)
	r.mutex.Unlock()
	if !ok {
		return nil
	}
	if err := r.db.Update(func(tx *nutsdb.Tx) error {
		return tx.DeleteBucket(nutsdb.DataStructureBPTree, namespace)
	}); err != nil {
		r.logger.Warnw("failed to delete namespace bucket", "namespace", namespace, "err", err)
	}
	return nil
}

func (r *fs) Close() error {
	return r.db.Close()
}

func NewFSBackend(logger log.Logger, dir string) (Backend, error) {
	opts := nutsdb.DefaultOptions
	opts.Dir = dir
	db, err := nutsdb.Open(opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open state dir %s", dir)
	}
	backend := &fs{
		logger:     logger,
		db:         db,
		namespaces: map[string]map[string][]byte{},
	}
	return backend, backend.init()
}
