// Package embedding provides text embedding via an OpenAI-compatible HTTP
// provider, plus a deterministic mock for tests.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// ProviderError reports a failed or malformed response from the embedding
// provider. Status is the HTTP status code, or 0 when the request never got a
// response. Provider errors are surfaced to the caller and never retried here.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("embedding provider: %s", e.Message)
	}
	return fmt.Sprintf("embedding provider: status %d: %s", e.Status, e.Message)
}
