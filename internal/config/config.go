// Package config provides configuration loading, defaults, and merging for
// the Kura service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Vectorizer VectorizerConfig `yaml:"vectorizer"`
	Cache      CacheConfig      `yaml:"cache"`
	Search     SearchConfig     `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig holds the working directory for persisted knowledge bases.
type StoreConfig struct {
	Dir       string `yaml:"dir"`
	IndexType string `yaml:"index_type"`
	// MaxCapacity caps the document count of any single knowledge base.
	// Zero means unlimited.
	MaxCapacity int `yaml:"max_capacity"`
	// MaxMemoryMB is carried through config merges for deployments that
	// declare a memory budget. Nothing enforces it yet.
	MaxMemoryMB int `yaml:"max_memory_mb"`
}

// VectorizerConfig holds the embedding provider settings.
type VectorizerConfig struct {
	APIURL         string `yaml:"api_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CacheConfig holds search result cache settings.
type CacheConfig struct {
	MaxSize   int `yaml:"max_size"`
	TTLMillis int `yaml:"ttl_ms"`
}

// SearchConfig holds query-time settings.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	// Breadth caps the candidate pool of a single query (the ef-search knob
	// of an ANN backend). Requested k values above it are clamped.
	Breadth int `yaml:"breadth"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies defaults, and
// expands the store directory relative to the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	cfg.Store.Dir = expandPath(cfg.Store.Dir, filepath.Dir(path))
	return &cfg, nil
}

// Merge overlays override onto base and returns the result. Scalar fields in
// override win when set; the nested vectorizer block merges field-wise rather
// than replacing wholesale, so a caller can override just the API key without
// losing the model or dimension settings.
func Merge(base, override *Config) *Config {
	merged := *base
	if override == nil {
		return &merged
	}
	if override.Debug {
		merged.Debug = true
	}
	if override.Server.Host != "" {
		merged.Server.Host = override.Server.Host
	}
	if override.Server.Port != 0 {
		merged.Server.Port = override.Server.Port
	}
	if override.Store.Dir != "" {
		merged.Store.Dir = override.Store.Dir
	}
	if override.Store.IndexType != "" {
		merged.Store.IndexType = override.Store.IndexType
	}
	if override.Store.MaxCapacity != 0 {
		merged.Store.MaxCapacity = override.Store.MaxCapacity
	}
	if override.Store.MaxMemoryMB != 0 {
		merged.Store.MaxMemoryMB = override.Store.MaxMemoryMB
	}
	if override.Vectorizer.APIURL != "" {
		merged.Vectorizer.APIURL = override.Vectorizer.APIURL
	}
	if override.Vectorizer.APIKey != "" {
		merged.Vectorizer.APIKey = override.Vectorizer.APIKey
	}
	if override.Vectorizer.Model != "" {
		merged.Vectorizer.Model = override.Vectorizer.Model
		// A new model resets the dimension to its table default unless the
		// override pins one explicitly.
		if override.Vectorizer.Dimensions == 0 {
			merged.Vectorizer.Dimensions = dimensionsForModel(override.Vectorizer.Model)
		}
	}
	if override.Vectorizer.Dimensions != 0 {
		merged.Vectorizer.Dimensions = override.Vectorizer.Dimensions
	}
	if override.Vectorizer.TimeoutSeconds != 0 {
		merged.Vectorizer.TimeoutSeconds = override.Vectorizer.TimeoutSeconds
	}
	if override.Cache.MaxSize != 0 {
		merged.Cache.MaxSize = override.Cache.MaxSize
	}
	if override.Cache.TTLMillis != 0 {
		merged.Cache.TTLMillis = override.Cache.TTLMillis
	}
	if override.Search.DefaultK != 0 {
		merged.Search.DefaultK = override.Search.DefaultK
	}
	if override.Search.Breadth != 0 {
		merged.Search.Breadth = override.Search.Breadth
	}
	return &merged
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to baseDir; other paths are kept as given.
func expandPath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(baseDir, path)
	}
	return path
}
