package state

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
)

type Serializer[T any] func(T) ([]byte, error)
type Deserializer[T any] func([]byte) (T, error)
type Initializer[T any] func() T

// Descriptor names a partitioned state cell and carries its codec. The
// Initializer supplies the default value an uncreated or cleared cell reads
// as. Merger is consulted only when several windows' cells are merged into
// one; a descriptor without a Merger can't be used with a merging assigner.
type Descriptor[T any] struct {
	Key          string
	Initializer  Initializer[T]
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
	Merger       MergeFn[T]
}

// GobDescriptor will use gob decode or encode the cell, so the value type
// should expose fields.
func GobDescriptor[T any](key string, initializer Initializer[T], merger MergeFn[T]) Descriptor[T] {
	return Descriptor[T]{
		Key:         key,
		Initializer: initializer,
		Merger:      merger,
		Serializer: func(v T) ([]byte, error) {
			var buffer bytes.Buffer
			if err := gob.NewEncoder(&buffer).Encode(&v); err != nil {
				return nil, errors.WithMessagef(err, "failed to encode %s state", key)
			}
			return buffer.Bytes(), nil
		},
		Deserializer: func(v []byte) (T, error) {
			vPointer := new(T)
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(vPointer); err != nil {
				return *vPointer, errors.WithMessagef(err, "failed to decode %s state", key)
			}
			return *vPointer, nil
		},
	}
}
