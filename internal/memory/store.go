package memory

import "context"

// Document is one stored chunk: content plus its embedding and metadata.
// A nil Embedding is computed by the store on upsert.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// QueryResult is one similarity match, highest score first.
type QueryResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// VectorStore is the backend-agnostic contract over content+embedding+metadata
// tuples. Upsert is insert-or-replace keyed by id; Query ranks by similarity,
// optionally restricted by an equality filter over metadata fields.
type VectorStore interface {
	Upsert(ctx context.Context, docs []Document) error
	Query(ctx context.Context, text string, topK int, filter map[string]any) ([]QueryResult, error)
	Delete(ctx context.Context, ids []string) error
}

// DocumentDeleter removes every chunk of a source document in one call.
// Both shipped backends implement it.
type DocumentDeleter interface {
	DeleteByDocument(ctx context.Context, documentID string) error
}
