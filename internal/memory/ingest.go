package memory

import (
	"context"
	"fmt"
	"strings"
)

// Ingestor chunks source documents and writes them to the vector store.
type Ingestor struct {
	store    VectorStore
	defaults ChunkOptions
}

func NewIngestor(store VectorStore, defaults ChunkOptions) *Ingestor {
	return &Ingestor{store: store, defaults: defaults}
}

// IngestRequest is one document to (re-)ingest. Zero chunking fields fall
// back to the configured defaults.
type IngestRequest struct {
	DocumentID string
	Content    string
	Metadata   map[string]any
	ChunkSize  int
	Overlap    int
}

// Ingest chunks and upserts one document, returning the chunk count.
// Chunk ids derive from (documentId, index), so re-ingestion overwrites.
func (ing *Ingestor) Ingest(ctx context.Context, req IngestRequest) (int, error) {
	if req.DocumentID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	opts := ing.defaults
	opts.PreserveParagraphs = true
	if req.ChunkSize > 0 {
		opts.MaxChunkSize = req.ChunkSize
	}
	if req.Overlap > 0 {
		opts.Overlap = req.Overlap
	}

	chunks := ChunkText(req.Content, opts)
	docs := make([]Document, len(chunks))
	for i, chunk := range chunks {
		meta := map[string]any{
			"documentId": req.DocumentID,
			"chunkIndex": i,
		}
		for k, v := range req.Metadata {
			meta[k] = v
		}
		docs[i] = Document{
			ID:       ChunkID(req.DocumentID, i),
			Content:  chunk,
			Metadata: meta,
		}
	}

	if err := ing.store.Upsert(ctx, docs); err != nil {
		return 0, fmt.Errorf("ingest %s: %w", req.DocumentID, err)
	}
	return len(docs), nil
}

// DeleteDocument removes every chunk of a document.
func (ing *Ingestor) DeleteDocument(ctx context.Context, documentID string) error {
	deleter, ok := ing.store.(DocumentDeleter)
	if !ok {
		return fmt.Errorf("vector store does not support document deletion")
	}
	return deleter.DeleteByDocument(ctx, documentID)
}

// ContextRetriever fetches and formats knowledge-base context for a turn.
type ContextRetriever struct {
	Store VectorStore
	TopK  int
}

// ContextFor returns the formatted context block for a query, or empty when
// nothing relevant is stored. Errors are the caller's to swallow; retrieval
// is best-effort by contract.
func (r *ContextRetriever) ContextFor(ctx context.Context, query string, filter map[string]any) (string, error) {
	topK := r.TopK
	if topK <= 0 {
		topK = 5
	}
	results, err := r.Store.Query(ctx, query, topK, filter)
	if err != nil {
		return "", err
	}
	return FormatContext(results), nil
}

// FormatContext concatenates results as numbered context lines.
func FormatContext(results []QueryResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Content)
	}
	return b.String()
}

// InjectContext rewrites the user's question with retrieved context prepended.
func InjectContext(question, contextBlock string) string {
	if contextBlock == "" {
		return question
	}
	return fmt.Sprintf("Context from knowledge base:\n%s\n\nUser question: %s", contextBlock, question)
}
