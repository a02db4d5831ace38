package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Store.Dir != "./VectorStore" {
		t.Errorf("Store.Dir=%q", cfg.Store.Dir)
	}
	if cfg.Vectorizer.Dimensions != 1536 {
		t.Errorf("Dimensions=%d", cfg.Vectorizer.Dimensions)
	}
	if cfg.Cache.MaxSize != 100 || cfg.Cache.TTLMillis != 60000 {
		t.Errorf("cache defaults: %+v", cfg.Cache)
	}
	if cfg.Search.Breadth != 150 || cfg.Search.DefaultK != 10 {
		t.Errorf("search defaults: %+v", cfg.Search)
	}
	if cfg.Debug {
		t.Error("debug should default off")
	}
}

func TestApplyDefaults_ModelDimensionTable(t *testing.T) {
	cfg := &Config{}
	cfg.Vectorizer.Model = "text-embedding-3-large"
	ApplyDefaults(cfg)
	if cfg.Vectorizer.Dimensions != 3072 {
		t.Errorf("Dimensions=%d for 3-large", cfg.Vectorizer.Dimensions)
	}

	cfg = &Config{}
	cfg.Vectorizer.Model = "some-unknown-model"
	ApplyDefaults(cfg)
	if cfg.Vectorizer.Dimensions != 1536 {
		t.Errorf("unknown model should fall back to 1536, got %d", cfg.Vectorizer.Dimensions)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kura.yaml")
	content := `
debug: true
store:
  dir: ./data
vectorizer:
  model: text-embedding-3-large
  api_key: sk-test
cache:
  max_size: 5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug not loaded")
	}
	if cfg.Store.Dir != filepath.Join(dir, "data") {
		t.Errorf("Store.Dir=%q, expected expansion relative to config dir", cfg.Store.Dir)
	}
	if cfg.Vectorizer.Dimensions != 3072 {
		t.Errorf("Dimensions=%d", cfg.Vectorizer.Dimensions)
	}
	if cfg.Cache.MaxSize != 5 {
		t.Errorf("MaxSize=%d", cfg.Cache.MaxSize)
	}
	// Untouched fields still get defaults.
	if cfg.Cache.TTLMillis != 60000 {
		t.Errorf("TTLMillis=%d", cfg.Cache.TTLMillis)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("store: ["), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestMerge_VectorizerDeepMerge(t *testing.T) {
	base := Default()
	base.Vectorizer.APIKey = "sk-base"
	base.Vectorizer.Model = "text-embedding-3-large"
	base.Vectorizer.Dimensions = 3072

	// Overriding only the key must not clobber the rest of the block.
	merged := Merge(base, &Config{Vectorizer: VectorizerConfig{APIKey: "sk-override"}})
	if merged.Vectorizer.APIKey != "sk-override" {
		t.Errorf("APIKey=%q", merged.Vectorizer.APIKey)
	}
	if merged.Vectorizer.Model != "text-embedding-3-large" {
		t.Errorf("Model=%q, deep merge lost the model", merged.Vectorizer.Model)
	}
	if merged.Vectorizer.Dimensions != 3072 {
		t.Errorf("Dimensions=%d, deep merge lost the dimension", merged.Vectorizer.Dimensions)
	}
}

func TestMerge_ModelChangeResetsDimensions(t *testing.T) {
	base := Default() // 3-small, 1536
	merged := Merge(base, &Config{Vectorizer: VectorizerConfig{Model: "text-embedding-3-large"}})
	if merged.Vectorizer.Dimensions != 3072 {
		t.Errorf("Dimensions=%d, expected table default for new model", merged.Vectorizer.Dimensions)
	}

	pinned := Merge(base, &Config{Vectorizer: VectorizerConfig{Model: "text-embedding-3-large", Dimensions: 256}})
	if pinned.Vectorizer.Dimensions != 256 {
		t.Errorf("Dimensions=%d, explicit override should win", pinned.Vectorizer.Dimensions)
	}
}

func TestMerge_StoreCeilings(t *testing.T) {
	base := Default()
	base.Store.MaxCapacity = 50000
	base.Store.MaxMemoryMB = 512

	// Unset override fields leave the base ceilings in place.
	merged := Merge(base, &Config{Store: StoreConfig{Dir: "/elsewhere"}})
	if merged.Store.MaxCapacity != 50000 || merged.Store.MaxMemoryMB != 512 {
		t.Errorf("ceilings lost in merge: %+v", merged.Store)
	}

	merged = Merge(base, &Config{Store: StoreConfig{MaxCapacity: 1000, MaxMemoryMB: 128}})
	if merged.Store.MaxCapacity != 1000 {
		t.Errorf("MaxCapacity=%d", merged.Store.MaxCapacity)
	}
	if merged.Store.MaxMemoryMB != 128 {
		t.Errorf("MaxMemoryMB=%d", merged.Store.MaxMemoryMB)
	}
}

func TestMerge_Nil(t *testing.T) {
	base := Default()
	merged := Merge(base, nil)
	if merged.Cache.MaxSize != base.Cache.MaxSize {
		t.Error("nil override should return a copy of base")
	}
}
