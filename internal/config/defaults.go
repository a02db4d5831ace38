package config

// modelDimensions maps known embedding models to their output dimension.
// Unknown models fall back to defaultDimensions.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

const (
	defaultDimensions = 1536
	defaultModel      = "text-embedding-3-small"
)

func dimensionsForModel(model string) int {
	if d, ok := modelDimensions[model]; ok {
		return d
	}
	return defaultDimensions
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "./VectorStore"
	}
	if cfg.Store.IndexType == "" {
		cfg.Store.IndexType = "flat"
	}
	if cfg.Vectorizer.APIURL == "" {
		cfg.Vectorizer.APIURL = "https://api.openai.com/v1/embeddings"
	}
	if cfg.Vectorizer.Model == "" {
		cfg.Vectorizer.Model = defaultModel
	}
	if cfg.Vectorizer.Dimensions == 0 {
		cfg.Vectorizer.Dimensions = dimensionsForModel(cfg.Vectorizer.Model)
	}
	if cfg.Vectorizer.TimeoutSeconds == 0 {
		cfg.Vectorizer.TimeoutSeconds = 30
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 100
	}
	if cfg.Cache.TTLMillis == 0 {
		cfg.Cache.TTLMillis = 60000
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 10
	}
	if cfg.Search.Breadth == 0 {
		cfg.Search.Breadth = 150
	}
}
