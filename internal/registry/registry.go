// Package registry owns the set of open knowledge bases: lazy loading from
// disk, ordinal assignment, capacity growth, and synchronous persistence.
//
// All mutation of a single knowledge base (insert, grow, remove) happens under
// that knowledge base's lock; concurrent ordinal assignment is the principal
// correctness hazard here.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/vector"
)

// Growth policy constants: a fresh knowledge base starts at
// max(batch+minHeadroom, minInitialCapacity); a full one grows to
// max(count+batch+minHeadroom, capacity*3/2).
const (
	minHeadroom        = 256
	minInitialCapacity = 1024
)

// PersistenceError reports a corrupt or unreadable persisted file for a
// knowledge base that is known to exist. It is a hard failure, unlike a
// missing file, which just means the knowledge base has no state yet.
type PersistenceError struct {
	Name string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("knowledge base %q: persisted state unreadable: %v", e.Name, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// KnowledgeBase is one open named collection: a vector index plus the
// ordinal-to-chunk map. The key set of chunks is exactly {0..Count()-1} after
// every successful mutation.
type KnowledgeBase struct {
	name   string
	index  vector.Index
	chunks map[int]*models.Chunk
	mu     sync.RWMutex

	// removed marks a handle whose knowledge base was deleted while the
	// handle was still referenced. A removed handle must never be
	// persisted or mutated; writers re-resolve the name instead.
	removed bool
}

// Count returns the number of stored chunks.
func (kb *KnowledgeBase) Count() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.index.Count()
}

// Capacity returns the index capacity.
func (kb *KnowledgeBase) Capacity() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.index.Capacity()
}

// Query runs a nearest-neighbor query. Safe concurrently with queries and
// with mutations of other knowledge bases, but serialized against mutations
// of this one.
func (kb *KnowledgeBase) Query(vec []float32, k int) ([]vector.Neighbor, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.index.Query(vec, k)
}

// Chunk returns the chunk stored at ordinal, if any.
func (kb *KnowledgeBase) Chunk(ordinal int) (*models.Chunk, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	c, ok := kb.chunks[ordinal]
	return c, ok
}

// Registry owns all open knowledge bases. No other component touches index
// handles or chunk maps directly.
type Registry struct {
	dir        string
	dimensions int
	indexType  string
	logger     *zap.Logger

	mu    sync.Mutex
	bases map[string]*KnowledgeBase

	// maxCapacity caps the index capacity of every knowledge base;
	// zero means unlimited.
	maxCapacity int

	now func() time.Time // test hook for chunk timestamps
}

// New creates a registry persisting under dir with the given embedding
// dimension. The directory is created if needed. maxCapacity, when positive,
// is a hard per-knowledge-base document ceiling.
func New(dir string, dimensions int, indexType string, maxCapacity int, logger *zap.Logger) (*Registry, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Registry{
		dir:         dir,
		dimensions:  dimensions,
		indexType:   indexType,
		logger:      logger,
		bases:       make(map[string]*KnowledgeBase),
		maxCapacity: maxCapacity,
		now:         time.Now,
	}, nil
}

func (r *Registry) indexPath(name string) string {
	return filepath.Join(r.dir, name+".hnsw")
}

func (r *Registry) chunksPath(name string) string {
	return filepath.Join(r.dir, name+".chunks.json")
}

// validateName rejects names that would escape the store directory.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("knowledge base name is empty")
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid knowledge base name %q", name)
	}
	return nil
}

// GetOrLoad returns the open knowledge base for name, loading persisted state
// on first access. ok is false when the knowledge base does not exist in
// memory or on disk; callers treat that as an empty knowledge base, not an
// error. Malformed persisted state is a *PersistenceError.
func (r *Registry) GetOrLoad(name string) (kb *KnowledgeBase, ok bool, err error) {
	if err := validateName(name); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrLoadLocked(name)
}

func (r *Registry) getOrLoadLocked(name string) (*KnowledgeBase, bool, error) {
	if kb, open := r.bases[name]; open {
		return kb, true, nil
	}
	idx, err := vector.Open(r.indexType, r.indexPath(name), r.dimensions)
	if err != nil {
		if errors.Is(err, vector.ErrIndexNotFound) {
			return nil, false, nil
		}
		return nil, false, &PersistenceError{Name: name, Err: err}
	}
	chunks, err := r.readChunks(name)
	if err != nil {
		return nil, false, err
	}
	kb := &KnowledgeBase{name: name, index: idx, chunks: chunks}
	r.bases[name] = kb
	r.logger.Info("knowledge base loaded",
		zap.String("name", name),
		zap.Int("count", idx.Count()),
		zap.Int("capacity", idx.Capacity()),
	)
	return kb, true, nil
}

// readChunks parses <name>.chunks.json into the ordinal map. A missing file
// yields an empty map; a malformed one is a hard PersistenceError.
func (r *Registry) readChunks(name string) (map[int]*models.Chunk, error) {
	data, err := os.ReadFile(r.chunksPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[int]*models.Chunk), nil
		}
		return nil, &PersistenceError{Name: name, Err: err}
	}
	var raw map[string]*models.Chunk
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &PersistenceError{Name: name, Err: fmt.Errorf("parse chunk map: %w", err)}
	}
	chunks := make(map[int]*models.Chunk, len(raw))
	for k, c := range raw {
		ordinal, err := strconv.Atoi(k)
		if err != nil {
			return nil, &PersistenceError{Name: name, Err: fmt.Errorf("chunk map key %q is not an ordinal", k)}
		}
		chunks[ordinal] = c
	}
	return chunks, nil
}

// acquireForInsert resolves name to an open knowledge base, creating one
// sized for a batch of the given length when none exists, and returns with
// kb.mu held. If Remove won the race between releasing the registry lock and
// locking the handle, the orphaned handle is discarded and the name is
// resolved again.
func (r *Registry) acquireForInsert(name string, batch int) (*KnowledgeBase, error) {
	for {
		r.mu.Lock()
		kb, ok, err := r.getOrLoadLocked(name)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		if !ok {
			capacity := batch + minHeadroom
			if capacity < minInitialCapacity {
				capacity = minInitialCapacity
			}
			if r.maxCapacity > 0 && capacity > r.maxCapacity {
				capacity = r.maxCapacity
			}
			idx, err := vector.New(r.indexType, r.dimensions, capacity)
			if err != nil {
				r.mu.Unlock()
				return nil, err
			}
			kb = &KnowledgeBase{name: name, index: idx, chunks: make(map[int]*models.Chunk)}
			r.bases[name] = kb
			r.logger.Info("knowledge base created",
				zap.String("name", name),
				zap.Int("capacity", capacity),
				zap.Int("dimensions", r.dimensions),
			)
		}
		r.mu.Unlock()

		kb.mu.Lock()
		if !kb.removed {
			return kb, nil
		}
		kb.mu.Unlock()
	}
}

// EnsureCapacityAndInsert creates the knowledge base if needed, grows the
// index when the batch would exceed capacity, inserts each vector at the next
// ordinal recording its chunk, and persists index and chunk map synchronously
// before returning. vectors and chunks must be the same length; chunk IDs and
// timestamps are defaulted when unset.
func (r *Registry) EnsureCapacityAndInsert(name string, vectors [][]float32, chunks []*models.Chunk) error {
	if err := validateName(name); err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vectors and chunks length mismatch: %d vs %d", len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return nil
	}
	if r.maxCapacity > 0 && len(vectors) > r.maxCapacity {
		return fmt.Errorf("knowledge base %q: batch of %d exceeds capacity ceiling %d", name, len(vectors), r.maxCapacity)
	}

	kb, err := r.acquireForInsert(name, len(vectors))
	if err != nil {
		return err
	}
	defer kb.mu.Unlock()

	count := kb.index.Count()
	if r.maxCapacity > 0 && count+len(vectors) > r.maxCapacity {
		return fmt.Errorf("knowledge base %q: %d documents would exceed capacity ceiling %d", name, count+len(vectors), r.maxCapacity)
	}
	if count+len(vectors) > kb.index.Capacity() {
		grown := count + len(vectors) + minHeadroom
		if scaled := kb.index.Capacity() * 3 / 2; scaled > grown {
			grown = scaled
		}
		if r.maxCapacity > 0 && grown > r.maxCapacity {
			grown = r.maxCapacity
		}
		if err := kb.index.Grow(grown); err != nil {
			return fmt.Errorf("grow knowledge base %q: %w", name, err)
		}
		r.logger.Info("knowledge base grown", zap.String("name", name), zap.Int("capacity", grown))
	}

	for i, vec := range vectors {
		ordinal := count + i
		if err := kb.index.Insert(vec, ordinal); err != nil {
			return fmt.Errorf("insert into knowledge base %q: %w", name, err)
		}
		c := chunks[i]
		if c.ID == "" {
			c.ID = fmt.Sprintf("doc-%d", ordinal)
		}
		if c.Timestamp.IsZero() {
			c.Timestamp = r.now()
		}
		kb.chunks[ordinal] = c
	}

	if err := r.persistLocked(kb); err != nil {
		return err
	}
	r.logger.Debug("documents inserted",
		zap.String("name", name),
		zap.Int("batch", len(vectors)),
		zap.Int("count", kb.index.Count()),
	)
	return nil
}

// persistLocked writes the index and chunk map for kb. Caller holds kb.mu.
// Orphaned handles are skipped so a removed knowledge base cannot be written
// back to disk.
func (r *Registry) persistLocked(kb *KnowledgeBase) error {
	if kb.removed {
		return nil
	}
	if err := kb.index.Save(r.indexPath(kb.name)); err != nil {
		return &PersistenceError{Name: kb.name, Err: err}
	}
	raw := make(map[string]*models.Chunk, len(kb.chunks))
	for ordinal, c := range kb.chunks {
		raw[strconv.Itoa(ordinal)] = c
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return &PersistenceError{Name: kb.name, Err: err}
	}
	if err := os.WriteFile(r.chunksPath(kb.name), data, 0644); err != nil {
		return &PersistenceError{Name: kb.name, Err: err}
	}
	return nil
}

// Remove drops the knowledge base from memory and deletes its persisted
// files. Removing a knowledge base that does not exist is a no-op. The
// registry lock is held for the whole operation so a concurrent writer either
// finishes before the files go away or re-resolves the name afterwards and
// finds nothing.
func (r *Registry) Remove(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	kb, open := r.bases[name]
	delete(r.bases, name)
	if kb != nil {
		// Waits out any in-flight mutation, then orphans the handle so a
		// writer that already picked it up cannot persist it again.
		kb.mu.Lock()
		kb.removed = true
		kb.mu.Unlock()
	}
	for _, path := range []string{r.indexPath(name), r.chunksPath(name)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	r.logger.Info("knowledge base removed", zap.String("name", name), zap.Bool("was_open", open))
	return nil
}

// Counts returns the document count of every open knowledge base.
func (r *Registry) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int, len(r.bases))
	for name, kb := range r.bases {
		counts[name] = kb.Count()
	}
	return counts
}

// PersistAll saves every open knowledge base. Used at shutdown.
func (r *Registry) PersistAll() error {
	r.mu.Lock()
	bases := make([]*KnowledgeBase, 0, len(r.bases))
	for _, kb := range r.bases {
		bases = append(bases, kb)
	}
	r.mu.Unlock()

	var firstErr error
	for _, kb := range bases {
		kb.mu.Lock()
		err := r.persistLocked(kb)
		kb.mu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close persists and releases all in-memory state.
func (r *Registry) Close() error {
	err := r.PersistAll()
	r.mu.Lock()
	r.bases = make(map[string]*KnowledgeBase)
	r.mu.Unlock()
	return err
}
