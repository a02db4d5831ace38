package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/rag"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Dir = t.TempDir()
	cfg.Vectorizer.Dimensions = 8
	service, err := rag.New(cfg, embedding.NewMockEmbedder(8), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(service, &cfg.Server, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHandleAddAndSearch(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/documents", addDocumentsRequest{
		Documents: []*models.DocumentInput{
			{Content: "kafka is a distributed log", KnowledgeBase: "docs"},
			{Content: "redis is an in-memory store", KnowledgeBase: "docs"},
		},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status=%d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/search", SearchRequest{
		Query:         "kafka is a distributed log",
		KnowledgeBase: "docs",
		K:             1,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status=%d", resp.StatusCode)
	}
	var sr SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		t.Fatal(err)
	}
	if len(sr.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(sr.Results))
	}
	if sr.Results[0].Content != "kafka is a distributed log" {
		t.Errorf("top result %q", sr.Results[0].Content)
	}
}

func TestHandleSearch_MissingFields(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/search", SearchRequest{Query: "x"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status=%d, want 400", resp.StatusCode)
	}
}

func TestHandleAdd_SingleDocument(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/documents", models.DocumentInput{
		Content:       "a single document",
		KnowledgeBase: "solo",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestHandleRemoveKnowledgeBase(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/documents", models.DocumentInput{
		Content:       "to be removed",
		KnowledgeBase: "temp",
	})
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/knowledge-bases/temp", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove status=%d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/search", SearchRequest{Query: "to be removed", KnowledgeBase: "temp"})
	defer resp.Body.Close()
	var sr SearchResponse
	_ = json.NewDecoder(resp.Body).Decode(&sr)
	if len(sr.Results) != 0 {
		t.Errorf("expected no results after removal, got %d", len(sr.Results))
	}
}

func TestHandleRemoveDocument_Accepted(t *testing.T) {
	ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/documents/doc-0", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status=%d, want 202", resp.StatusCode)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/v1/documents", models.DocumentInput{Content: "x", KnowledgeBase: "docs"})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var status models.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.KnowledgeBases["docs"] != 1 {
		t.Errorf("docs count=%d", status.KnowledgeBases["docs"])
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status=%d", resp.StatusCode)
	}
}
