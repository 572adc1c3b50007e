package common

import "sync/atomic"

var localIDCounter atomic.Int64

// NextLocalID returns a process-wide unique, strictly increasing integer id.
// Ids start at 1 so that 0 can be used as "no id".
//
// Returns:
//   - int: the next id
func NextLocalID() int {
	return int(localIDCounter.Add(1))
}

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Ptr returns a pointer to a copy of v.
//
// Parameters:
//   - v: the value to point to
//
// Returns:
//   - *T: a pointer to a copy of v
func Ptr[T any](v T) *T {
	return &v
}
