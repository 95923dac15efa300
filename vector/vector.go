// Package vector defines the boundary to embedding/vector-store backends.
// The engine only depends on this interface; concrete stores (file-backed,
// in-memory, or a vector database) are injected at construction time.
package vector

import "context"

// Document is one stored or retrieved record.
type Document struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	Score     float64        `json:"score,omitempty"`
}

// Store is the workspace-scoped vector backend consumed by operations as
// their vector-store handle.
//
// Search with an empty query degrades to a filter-only scan: results match
// the filters but carry no similarity ranking.
type Store interface {
	Insert(ctx context.Context, workspace string, docs []Document) error
	Search(ctx context.Context, workspace, query string, topK int, filters map[string]any) ([]Document, error)
	Delete(ctx context.Context, workspace string, ids []string) error
}
