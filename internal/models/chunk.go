// Package models defines core data structures for documents, chunks, and search results.
package models

import "time"

// Chunk is one stored unit of a knowledge base: the text at a fixed ordinal
// slot together with its metadata. The JSON form is what gets persisted in
// <name>.chunks.json, keyed by the string ordinal.
type Chunk struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	Source    string                 `json:"source,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentInput is the input for adding a document to a knowledge base.
// ID is optional; when empty a stable doc-{ordinal} id is generated at insert.
type DocumentInput struct {
	ID            string                 `json:"id,omitempty"`
	Content       string                 `json:"content"`
	KnowledgeBase string                 `json:"knowledge_base,omitempty"`
	Source        string                 `json:"source,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// DefaultKnowledgeBase is used when a document does not name one.
const DefaultKnowledgeBase = "default"
