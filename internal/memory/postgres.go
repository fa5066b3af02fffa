package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore is the relational backend: a pgvector column ranked by cosine
// distance, with a JSONB metadata column for equality filters. The table and
// its HNSW index are owned by the schema migrations.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder Embedder
	table    string
}

func NewPostgresStore(pool *pgxpool.Pool, embedder Embedder, table string) *PostgresStore {
	if table == "" {
		table = "embeddings"
	}
	return &PostgresStore{pool: pool, embedder: embedder, table: table}
}

func (s *PostgresStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	embeddings, err := embedMissing(ctx, s.embedder, docs)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sql := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata
	`, s.table)

	next := 0
	for _, doc := range docs {
		emb := doc.Embedding
		if emb == nil {
			emb = embeddings[next]
			next++
		}
		meta, err := json.Marshal(metadataOrEmpty(doc.Metadata))
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", doc.ID, err)
		}
		if _, err := tx.Exec(ctx, sql, doc.ID, doc.Content, pgvector.NewVector(emb), meta); err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, text string, topK int, filter map[string]any) ([]QueryResult, error) {
	if topK <= 0 {
		topK = 5
	}

	queryEmbedding, err := s.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	args := []any{pgvector.NewVector(queryEmbedding), topK}
	where := ""
	for _, key := range sortedKeys(filter) {
		args = append(args, key, fmt.Sprintf("%v", filter[key]))
		cond := fmt.Sprintf("metadata->>($%d::text) = $%d", len(args)-1, len(args))
		if where == "" {
			where = "WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}

	// score = 1 - cosine distance, so higher is more similar.
	sql := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, s.table, where)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var r QueryResult
		var meta []byte
		if err := rows.Scan(&r.ID, &r.Content, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		if len(meta) > 0 {
			json.Unmarshal(meta, &r.Metadata)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table)
	if _, err := s.pool.Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// DeleteByDocument removes every chunk ingested under one document id.
func (s *PostgresStore) DeleteByDocument(ctx context.Context, documentID string) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE metadata->>'documentId' = $1`, s.table)
	if _, err := s.pool.Exec(ctx, sql, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

var _ VectorStore = (*PostgresStore)(nil)
var _ DocumentDeleter = (*PostgresStore)(nil)

// embedMissing computes embeddings for every doc without one, in a single
// batched call, returned in document order.
func embedMissing(ctx context.Context, embedder Embedder, docs []Document) ([][]float32, error) {
	var texts []string
	for _, doc := range docs {
		if doc.Embedding == nil {
			texts = append(texts, doc.Content)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}
	embeddings, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	return embeddings, nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
