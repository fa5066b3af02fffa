package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// pineconeUpsertBatch is the provider's documented per-request vector limit.
const pineconeUpsertBatch = 100

// PineconeStore is the index-as-a-service backend, speaking the Pinecone data
// plane REST API. Chunk content rides in vector metadata under "content".
type PineconeStore struct {
	apiKey    string
	indexHost string
	namespace string
	embedder  Embedder
	client    *http.Client
}

func NewPineconeStore(apiKey, indexHost, namespace string, embedder Embedder, client *http.Client) *PineconeStore {
	if namespace == "" {
		namespace = "default"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &PineconeStore{
		apiKey:    apiKey,
		indexHost: indexHost,
		namespace: namespace,
		embedder:  embedder,
		client:    client,
	}
}

func (s *PineconeStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	embeddings, err := embedMissing(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	vectors := make([]pineconeVector, len(docs))
	next := 0
	for i, doc := range docs {
		emb := doc.Embedding
		if emb == nil {
			emb = embeddings[next]
			next++
		}
		meta := map[string]any{"content": doc.Content}
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		vectors[i] = pineconeVector{ID: doc.ID, Values: emb, Metadata: meta}
	}

	for start := 0; start < len(vectors); start += pineconeUpsertBatch {
		end := start + pineconeUpsertBatch
		if end > len(vectors) {
			end = len(vectors)
		}
		body := map[string]any{
			"vectors":   vectors[start:end],
			"namespace": s.namespace,
		}
		if err := s.post(ctx, "/vectors/upsert", body, nil); err != nil {
			return fmt.Errorf("pinecone upsert: %w", err)
		}
	}
	return nil
}

func (s *PineconeStore) Query(ctx context.Context, text string, topK int, filter map[string]any) ([]QueryResult, error) {
	if topK <= 0 {
		topK = 5
	}

	queryEmbedding, err := s.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	body := map[string]any{
		"vector":          queryEmbedding,
		"topK":            topK,
		"includeMetadata": true,
		"namespace":       s.namespace,
	}
	if len(filter) > 0 {
		body["filter"] = filter
	}

	var parsed struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float64        `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := s.post(ctx, "/query", body, &parsed); err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}

	results := make([]QueryResult, 0, len(parsed.Matches))
	for _, m := range parsed.Matches {
		content, _ := m.Metadata["content"].(string)
		results = append(results, QueryResult{
			ID:       m.ID,
			Content:  content,
			Score:    m.Score,
			Metadata: m.Metadata,
		})
	}
	return results, nil
}

func (s *PineconeStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{
		"ids":       ids,
		"namespace": s.namespace,
	}
	if err := s.post(ctx, "/vectors/delete", body, nil); err != nil {
		return fmt.Errorf("pinecone delete: %w", err)
	}
	return nil
}

// DeleteByDocument removes every chunk ingested under one document id via a
// metadata filter delete.
func (s *PineconeStore) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter":    map[string]any{"documentId": documentID},
		"namespace": s.namespace,
	}
	if err := s.post(ctx, "/vectors/delete", body, nil); err != nil {
		return fmt.Errorf("pinecone delete document %s: %w", documentID, err)
	}
	return nil
}

var _ VectorStore = (*PineconeStore)(nil)
var _ DocumentDeleter = (*PineconeStore)(nil)

func (s *PineconeStore) post(ctx context.Context, path string, body any, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.indexHost+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
	}
	if dest != nil {
		if err := json.Unmarshal(respBody, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
