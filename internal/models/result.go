package models

// RAGResult is a single search hit. Score is the similarity derived from the
// index's cosine distance as 1/(1+distance): distance 0 maps to 1 and large
// distances approach 0. This is a ranking score, not a probability.
type RAGResult struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Status reports service-level counters and per-knowledge-base sizes.
type Status struct {
	KnowledgeBases map[string]int `json:"knowledge_bases"`
	SearchCount    int64          `json:"search_count"`
	AvgLatencyMS   float64        `json:"avg_latency_ms"`
	CacheHitRate   float64        `json:"cache_hit_rate"`
	CacheSize      int            `json:"cache_size"`
	DiskUsageBytes int64          `json:"disk_usage_bytes"`
}
