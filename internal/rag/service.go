// Package rag provides the public operation surface of Kura: search, document
// ingestion, knowledge base removal, status, and shutdown, composed from the
// embedding gateway, the knowledge base registry, and the search cache.
package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/cache"
	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/registry"
	"github.com/hyperjump/kura/internal/storage"
	"github.com/hyperjump/kura/internal/vector"
)

// Service orchestrates retrieval over named knowledge bases. It owns the
// search cache and the embedding gateway; the registry owns all index state.
type Service struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder embedding.Embedder
	registry *registry.Registry
	cache    *cache.SearchCache

	mu           sync.Mutex
	searchCount  int64
	totalLatency time.Duration
}

// New builds a service from cfg, creating the store directory if needed.
// The embedder is injected so tests and offline tools can substitute one.
func New(cfg *config.Config, embedder embedding.Embedder, logger *zap.Logger) (*Service, error) {
	reg, err := registry.New(cfg.Store.Dir, cfg.Vectorizer.Dimensions, cfg.Store.IndexType, cfg.Store.MaxCapacity, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		registry: reg,
		cache:    cache.New(cfg.Cache.MaxSize, time.Duration(cfg.Cache.TTLMillis)*time.Millisecond),
	}, nil
}

// Search embeds the query, consults the result cache, and on a miss queries
// the knowledge base's index, converting neighbor distances into similarity
// scores with 1/(1+distance). An absent knowledge base yields an empty result
// list, not an error. Results are sorted by descending score and every score
// is >= threshold.
func (s *Service) Search(ctx context.Context, query, kb string, k int, threshold float64) ([]models.RAGResult, error) {
	start := time.Now()
	if k <= 0 {
		k = s.cfg.Search.DefaultK
	}
	if k > s.cfg.Search.Breadth {
		k = s.cfg.Search.Breadth
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if results, ok := s.cache.Get(kb, vec, k); ok {
		s.recordSearch(time.Since(start))
		s.logger.Debug("search cache hit", zap.String("kb", kb), zap.Int("k", k))
		return results, nil
	}

	base, ok, err := s.registry.GetOrLoad(kb)
	if err != nil {
		return nil, err
	}
	if !ok || base.Count() == 0 {
		s.recordSearch(time.Since(start))
		return []models.RAGResult{}, nil
	}

	effK := k
	if count := base.Count(); effK > count {
		effK = count
	}
	neighbors, err := base.Query(vec, effK)
	if err != nil {
		return nil, fmt.Errorf("query knowledge base %q: %w", kb, err)
	}

	results := make([]models.RAGResult, 0, len(neighbors))
	for _, n := range neighbors {
		score := vector.Similarity(n.Distance)
		if score < threshold {
			continue
		}
		r := models.RAGResult{Score: score}
		if c, found := base.Chunk(n.Ordinal); found {
			r.ID = c.ID
			r.Content = c.Text
			r.Metadata = c.Metadata
		} else {
			// Chunk map hole: degrade to an empty result rather than failing
			// the whole query.
			r.ID = fmt.Sprintf("doc-%d", n.Ordinal)
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	s.cache.Put(kb, vec, k, results)
	s.recordSearch(time.Since(start))
	s.logger.Debug("search completed",
		zap.String("kb", kb),
		zap.Int("k", k),
		zap.Int("results", len(results)),
		zap.Duration("latency", time.Since(start)),
	)
	return results, nil
}

// AddDocument adds a single document to its knowledge base.
func (s *Service) AddDocument(ctx context.Context, doc *models.DocumentInput) error {
	return s.AddDocuments(ctx, []*models.DocumentInput{doc})
}

// AddDocuments groups documents by knowledge base, embeds each group's
// content in one provider call, and inserts the group atomically with respect
// to that knowledge base. State is persisted before return.
func (s *Service) AddDocuments(ctx context.Context, docs []*models.DocumentInput) error {
	groups := make(map[string][]*models.DocumentInput)
	for _, doc := range docs {
		name := doc.KnowledgeBase
		if name == "" {
			name = models.DefaultKnowledgeBase
		}
		groups[name] = append(groups[name], doc)
	}
	for name, group := range groups {
		texts := make([]string, len(group))
		for i, doc := range group {
			texts[i] = doc.Content
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed documents for %q: %w", name, err)
		}
		chunks := make([]*models.Chunk, len(group))
		for i, doc := range group {
			chunks[i] = &models.Chunk{
				ID:       doc.ID,
				Text:     doc.Content,
				Source:   doc.Source,
				Metadata: doc.Metadata,
			}
		}
		if err := s.registry.EnsureCapacityAndInsert(name, vecs, chunks); err != nil {
			return err
		}
	}
	return nil
}

// UpdateDocument is remove-then-add of the same id. Because RemoveDocument is
// a no-op (see below), an update currently appends a duplicate entry instead
// of replacing the old one. Known limitation, kept deliberately.
func (s *Service) UpdateDocument(ctx context.Context, id string, doc *models.DocumentInput) error {
	if err := s.RemoveDocument(ctx, id); err != nil {
		return err
	}
	updated := *doc
	updated.ID = id
	return s.AddDocument(ctx, &updated)
}

// RemoveDocument is not implemented: there is no reverse index from document
// id to (knowledge base, ordinal), and scanning every knowledge base was
// judged not worth it yet. The call logs and succeeds so callers can keep a
// uniform code path.
func (s *Service) RemoveDocument(ctx context.Context, id string) error {
	s.logger.Warn("removeDocument is not implemented; document left in place", zap.String("id", id))
	return nil
}

// RemoveKnowledgeBase deletes the knowledge base's in-memory and on-disk
// state. The result cache is cleared so stale hits cannot resurrect results
// for the removed knowledge base within the TTL window.
func (s *Service) RemoveKnowledgeBase(name string) error {
	if err := s.registry.Remove(name); err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}

// Status reports per-knowledge-base document counts plus aggregate search and
// cache metrics and the store directory's disk usage.
func (s *Service) Status() (*models.Status, error) {
	s.mu.Lock()
	count := s.searchCount
	var avg float64
	if count > 0 {
		// Microsecond resolution: sub-millisecond searches still show up.
		avg = float64(s.totalLatency.Microseconds()) / 1000 / float64(count)
	}
	s.mu.Unlock()

	diskBytes, err := storage.DirUsageBytes(s.cfg.Store.Dir)
	if err != nil {
		return nil, fmt.Errorf("disk usage: %w", err)
	}
	return &models.Status{
		KnowledgeBases: s.registry.Counts(),
		SearchCount:    count,
		AvgLatencyMS:   avg,
		CacheHitRate:   s.cache.HitRate(),
		CacheSize:      s.cache.Len(),
		DiskUsageBytes: diskBytes,
	}, nil
}

// Shutdown persists every open knowledge base, clears the cache, and releases
// all in-memory state.
func (s *Service) Shutdown() error {
	s.logger.Info("shutting down", zap.Int("cache_size", s.cache.Len()))
	err := s.registry.Close()
	s.cache.Clear()
	if cerr := s.embedder.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Service) recordSearch(latency time.Duration) {
	s.mu.Lock()
	s.searchCount++
	s.totalLatency += latency
	s.mu.Unlock()
}
