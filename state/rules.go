package state

import (
	"reflect"

	"github.com/spf13/cast"
)

// MergeFn collapses the surviving cells of several source windows into the
// target window's value. Values arrive in source declaration order.
type MergeFn[T any] func(values []T) T

// Sum adds numeric cells together. Non-numeric values count as zero, the
// same leniency cast applies everywhere else.
func Sum[T any]() MergeFn[T] {
	return func(values []T) T {
		var total float64
		for _, value := range values {
			total += cast.ToFloat64(value)
		}
		var out T
		outValue := reflect.ValueOf(&out).Elem()
		switch outValue.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			outValue.SetInt(int64(total))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			outValue.SetUint(uint64(total))
		case reflect.Float32, reflect.Float64:
			outValue.SetFloat(total)
		}
		return out
	}
}

// Union concatenates list cells, keeping source order.
func Union[T any]() MergeFn[[]T] {
	return func(values [][]T) []T {
		var union []T
		for _, value := range values {
			union = append(union, value...)
		}
		return union
	}
}

// Latest keeps the last declared source's value.
func Latest[T any]() MergeFn[T] {
	return func(values []T) T {
		return values[len(values)-1]
	}
}

// Min keeps the smallest numeric cell.
func Min[T any]() MergeFn[T] {
	return func(values []T) T {
		min := values[0]
		for _, value := range values[1:] {
			if cast.ToFloat64(value) < cast.ToFloat64(min) {
				min = value
			}
		}
		return min
	}
}
