package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/models"
)

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query         string  `json:"query"`
	KnowledgeBase string  `json:"knowledge_base"`
	K             int     `json:"k,omitempty"`
	Threshold     float64 `json:"threshold,omitempty"`
}

// SearchResponse is the response of POST /api/v1/search.
type SearchResponse struct {
	Results []models.RAGResult `json:"results"`
}

// addDocumentsRequest accepts either a single document or a batch.
type addDocumentsRequest struct {
	models.DocumentInput
	Documents []*models.DocumentInput `json:"documents,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" || req.KnowledgeBase == "" {
		s.respondError(w, http.StatusBadRequest, "query and knowledge_base are required")
		return
	}
	results, err := s.service.Search(r.Context(), req.Query, req.KnowledgeBase, req.K, req.Threshold)
	if err != nil {
		s.logger.Error("search failed", zap.String("kb", req.KnowledgeBase), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req addDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	docs := req.Documents
	if len(docs) == 0 {
		if req.Content == "" {
			s.respondError(w, http.StatusBadRequest, "content or documents is required")
			return
		}
		docs = []*models.DocumentInput{&req.DocumentInput}
	}
	if err := s.service.AddDocuments(r.Context(), docs); err != nil {
		s.logger.Error("add documents failed", zap.Int("count", len(docs)), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"status": "added", "count": len(docs)})
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var doc models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.service.UpdateDocument(r.Context(), id, &doc); err != nil {
		s.logger.Error("update document failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

func (s *Server) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.RemoveDocument(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Per-document deletion is accepted but not yet applied; see rag.RemoveDocument.
	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "accepted"})
}

func (s *Server) handleRemoveKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.service.RemoveKnowledgeBase(name); err != nil {
		s.logger.Error("remove knowledge base failed", zap.String("name", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"name": name, "status": "removed"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status()
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors to HTTP status codes: embedding provider
// failures are upstream errors, everything else is internal.
func statusFor(err error) int {
	var perr *embedding.ProviderError
	if errors.As(err, &perr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
