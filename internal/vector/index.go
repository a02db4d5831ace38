// Package vector provides the vector index capability used by knowledge bases:
// fixed-capacity ordinal-addressed storage with nearest-neighbor queries over
// cosine distance, plus binary persistence.
package vector

import "errors"

// ErrCapacityExceeded is returned when an insert targets an ordinal at or
// beyond the index capacity. The registry's growth policy is supposed to make
// this unreachable; seeing it means an invariant was violated upstream.
var ErrCapacityExceeded = errors.New("vector: index capacity exceeded")

// ErrIndexNotFound is returned by Open when no persisted index exists at the
// given path. Callers treat this as "no index yet", not as a failure.
var ErrIndexNotFound = errors.New("vector: index file not found")

// Neighbor is a single query hit: the ordinal slot of the stored vector and
// its cosine distance from the query (ascending distance = best first).
type Neighbor struct {
	Ordinal  int
	Distance float64
}

// Index is the capability over one vector index instance. Ordinals are
// contiguous from 0; Insert must be called with ordinals in increasing order
// starting at Count(). Callers clamp k to [1, min(requested, Count())] and
// must not query an empty index.
type Index interface {
	Insert(vec []float32, ordinal int) error
	Query(vec []float32, k int) ([]Neighbor, error)
	Count() int
	Capacity() int
	Dimensions() int
	Grow(newCapacity int) error
	Save(path string) error
}
