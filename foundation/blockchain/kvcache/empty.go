package kvcache

import "reflect"

// Emptier is implemented by record types that mark a deletion by
// emptying themselves. An empty value held in a layer is a tombstone.
type Emptier interface {
	IsEmpty() bool
	SetEmpty()
}

// IsEmpty reports whether the value is a tombstone. Records implement
// Emptier, scalars are empty at their zero value, and strings, slices and
// maps are empty when they have no elements.
func IsEmpty[V any](value V) bool {
	if e, ok := any(&value).(Emptier); ok {
		return e.IsEmpty()
	}

	rv := reflect.ValueOf(&value).Elem()
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}

	return rv.IsZero()
}

// Empty returns the tombstone value for the type.
func Empty[V any]() V {
	var value V
	if e, ok := any(&value).(Emptier); ok {
		e.SetEmpty()
	}
	return value
}
