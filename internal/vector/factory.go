package vector

import "fmt"

// IndexType identifies an index implementation.
type IndexType string

const (
	// IndexTypeFlat uses exact brute-force cosine search over a preallocated
	// buffer. The only backend currently built in; the Index interface keeps
	// the door open for an ANN-backed implementation.
	IndexTypeFlat IndexType = "flat"
)

// New creates an empty index of the given type.
func New(indexType string, dimensions, capacity int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return NewFlatIndex(dimensions, capacity)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat)", indexType)
	}
}

// Open loads a persisted index of the given type from path.
// Returns ErrIndexNotFound when no file exists at path.
func Open(indexType, path string, dimensions int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return OpenFlat(path, dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat)", indexType)
	}
}
