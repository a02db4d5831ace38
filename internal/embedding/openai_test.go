package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

const testDim = 4

// embeddingsHandler serves the provider wire format: {input, model} in,
// {data: [{embedding}]} out, in input order.
func embeddingsHandler(t *testing.T, wantKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+wantKey {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string `json:"object"`
			Data   []item `json:"data"`
			Model  string `json:"model"`
		}{Object: "list", Model: req.Model}
		for i := range req.Input {
			// Encode the input position so order preservation is observable.
			vec := make([]float32, testDim)
			vec[i%testDim] = 1
			resp.Data = append(resp.Data, item{Object: "embedding", Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	ts := httptest.NewServer(embeddingsHandler(t, "sk-test"))
	defer ts.Close()

	e := NewOpenAIEmbedder(ts.URL, "sk-test", "text-embedding-3-small", testDim, 5*time.Second, zap.NewNop())
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != testDim {
			t.Fatalf("embedding %d has dimension %d", i, len(vec))
		}
		if vec[i%testDim] != 1 {
			t.Errorf("embedding %d out of order: %v", i, vec)
		}
	}
}

func TestOpenAIEmbedder_EndpointSuffixAccepted(t *testing.T) {
	ts := httptest.NewServer(embeddingsHandler(t, "sk-test"))
	defer ts.Close()

	// Configs that name the full endpoint work the same as base URLs.
	e := NewOpenAIEmbedder(ts.URL+"/embeddings", "sk-test", "text-embedding-3-small", testDim, 5*time.Second, zap.NewNop())
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != testDim {
		t.Errorf("dimension %d", len(vec))
	}
}

func TestOpenAIEmbedder_ProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad api key","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	e := NewOpenAIEmbedder(ts.URL, "sk-bad", "text-embedding-3-small", testDim, 5*time.Second, zap.NewNop())
	_, err := e.EmbedBatch(context.Background(), []string{"text"})
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Status != http.StatusUnauthorized {
		t.Errorf("Status=%d", perr.Status)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	a1, _ := e.Embed(context.Background(), "same text")
	a2, _ := e.Embed(context.Background(), "same text")
	b, _ := e.Embed(context.Background(), "other text")
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatal("same text produced different embeddings")
		}
	}
	same := true
	for i := range a1 {
		if a1[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical embeddings")
	}
}
