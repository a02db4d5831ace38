package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// flatMagic identifies a persisted flat index file.
const flatMagic uint32 = 0x4b555241 // "KURA"

// flatVersion is the on-disk format version.
const flatVersion uint32 = 1

// flatHeaderSize is the byte length of the persisted header
// (magic, version, dimensions, capacity, count).
const flatHeaderSize = 20

// maxCapacitySlack bounds how far a persisted capacity may exceed the stored
// count. The growth policy never leaves more than 1.5x+256 headroom and fresh
// indices start at most 1024 over the first batch, so anything beyond
// 2*count+maxCapacitySlack cannot come from a healthy save.
const maxCapacitySlack = 4096

// FlatIndex is a bounded-capacity exact index: vectors live in a preallocated
// contiguous buffer addressed by ordinal, and queries scan all stored vectors
// computing cosine distance. Exact results, suitable up to tens of thousands
// of vectors per knowledge base.
type FlatIndex struct {
	dimensions int
	capacity   int
	count      int
	data       []float32 // capacity*dimensions, row per ordinal
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty index fixed to the given dimension with a hard
// capacity ceiling on stored vectors until Grow is called.
func NewFlatIndex(dimensions, capacity int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	return &FlatIndex{
		dimensions: dimensions,
		capacity:   capacity,
		data:       make([]float32, capacity*dimensions),
	}, nil
}

// Insert stores vec at the given ordinal slot. Ordinals must be assigned
// contiguously: the only valid ordinal is the current count.
func (f *FlatIndex) Insert(vec []float32, ordinal int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(vec) != f.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
	}
	if ordinal >= f.capacity {
		return fmt.Errorf("insert at ordinal %d with capacity %d: %w", ordinal, f.capacity, ErrCapacityExceeded)
	}
	if ordinal != f.count {
		return fmt.Errorf("insert at ordinal %d out of order, next slot is %d", ordinal, f.count)
	}
	copy(f.data[ordinal*f.dimensions:(ordinal+1)*f.dimensions], vec)
	f.count++
	return nil
}

// Query returns up to k neighbors ordered by ascending cosine distance.
// Querying an empty index is an error; callers are expected to avoid it.
func (f *FlatIndex) Query(vec []float32, k int) ([]Neighbor, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(vec) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
	}
	if f.count == 0 {
		return nil, fmt.Errorf("query against empty index")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if k > f.count {
		k = f.count
	}
	neighbors := make([]Neighbor, f.count)
	for i := 0; i < f.count; i++ {
		row := f.data[i*f.dimensions : (i+1)*f.dimensions]
		neighbors[i] = Neighbor{Ordinal: i, Distance: cosineDistance(vec, row)}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Distance < neighbors[j].Distance })
	return neighbors[:k], nil
}

// Count returns the number of stored vectors.
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Capacity returns the current hard ceiling on stored vectors.
func (f *FlatIndex) Capacity() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.capacity
}

// Dimensions returns the fixed vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Grow reallocates to a larger capacity, preserving all stored vectors.
// newCapacity must be strictly greater than the current capacity.
func (f *FlatIndex) Grow(newCapacity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if newCapacity <= f.capacity {
		return fmt.Errorf("grow to %d not larger than current capacity %d", newCapacity, f.capacity)
	}
	data := make([]float32, newCapacity*f.dimensions)
	copy(data, f.data[:f.count*f.dimensions])
	f.data = data
	f.capacity = newCapacity
	return nil
}

// Save persists the index to path. Directory is created if needed.
// Format: magic, version, dimensions, capacity, count (uint32 little-endian),
// then count*dimensions float32 values.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer file.Close()
	header := []uint32{flatMagic, flatVersion, uint32(f.dimensions), uint32(f.capacity), uint32(f.count)}
	for _, v := range header {
		if err := binary.Write(file, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write index header: %w", err)
		}
	}
	if _, err := file.Write(float32SliceToBytes(f.data[:f.count*f.dimensions])); err != nil {
		return fmt.Errorf("write index vectors: %w", err)
	}
	return nil
}

// OpenFlat loads a persisted index from path. A missing file returns
// ErrIndexNotFound (soft: no index yet); an existing but unreadable or
// malformed file is a hard error. The stored dimension must match dimensions.
func OpenFlat(path string, dimensions int) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	var magic, version, dim, capacity, count uint32
	for _, dst := range []*uint32{&magic, &version, &dim, &capacity, &count} {
		if err := binary.Read(file, binary.LittleEndian, dst); err != nil {
			return nil, fmt.Errorf("read index header: %w", err)
		}
	}
	if magic != flatMagic {
		return nil, fmt.Errorf("not a kura index file: bad magic %#x", magic)
	}
	if version != flatVersion {
		return nil, fmt.Errorf("unsupported index version %d", version)
	}
	if int(dim) != dimensions {
		return nil, fmt.Errorf("dimension mismatch: file has %d, expected %d", dim, dimensions)
	}
	if count > capacity {
		return nil, fmt.Errorf("corrupt index header: count %d exceeds capacity %d", count, capacity)
	}
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index file: %w", err)
	}
	want := flatHeaderSize + int64(count)*int64(dim)*4
	if info.Size() != want {
		return nil, fmt.Errorf("corrupt index: file is %d bytes, header implies %d", info.Size(), want)
	}
	if int64(capacity) > 2*int64(count)+maxCapacitySlack {
		return nil, fmt.Errorf("corrupt index header: capacity %d implausible for count %d", capacity, count)
	}
	idx, err := NewFlatIndex(int(dim), int(capacity))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, int(count)*dimensions*4)
	if _, err := io.ReadFull(file, buf); err != nil {
		return nil, fmt.Errorf("read index vectors: %w", err)
	}
	copy(idx.data, bytesToFloat32Slice(buf))
	idx.count = int(count)
	return idx, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
