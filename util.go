package bincodec

import "golang.org/x/exp/constraints"

// minCapacity is the smallest capacity a growing table or buffer allocates.
const minCapacity = 4

// Ptr returns a pointer to a copy of v, for building optional values inline.
func Ptr[T any](v T) *T { return &v }

// growCap returns the capacity to grow to from current so that at least need
// elements fit: doubling, with a floor of minCapacity.
func growCap[T constraints.Integer](current, need T) T {
	next := max(current*2, T(minCapacity))
	for next < need {
		next *= 2
	}
	return next
}
