package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/pkg/utils"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint
// (POST {api_url} with a bearer key, {input, model} body). One HTTP call per
// EmbedBatch invocation, order-preserving, no retries and no caching: the
// caller owns batching policy, and result caching lives a layer up.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *zap.Logger
}

// NewOpenAIEmbedder creates a gateway for the given endpoint. apiURL may be
// the provider base URL or the full /embeddings endpoint; both are accepted.
func NewOpenAIEmbedder(apiURL, apiKey, model string, dimensions int, timeout time.Duration, logger *zap.Logger) *OpenAIEmbedder {
	cc := openai.DefaultConfig(apiKey)
	if apiURL != "" {
		cc.BaseURL = strings.TrimSuffix(strings.TrimSuffix(apiURL, "/"), "/embeddings")
	}
	cc.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cc),
		model:      model,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one provider call. The returned slice is in
// input order. Any non-success response surfaces as a *ProviderError.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, providerError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data))}
	}
	vecs := make([][]float32, len(texts))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		if e.dimensions > 0 && len(vec) != e.dimensions {
			return nil, &ProviderError{Message: fmt.Sprintf("embedding %d has dimension %d, expected %d", i, len(vec), e.dimensions)}
		}
		utils.NormalizeL2(vec)
		vecs[i] = vec
	}
	e.logger.Debug("embedded batch", zap.Int("texts", len(texts)), zap.String("model", e.model))
	return vecs, nil
}

// providerError maps go-openai errors onto the ProviderError taxonomy.
func providerError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Status: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return &ProviderError{Message: err.Error()}
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client has no resources to release.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
