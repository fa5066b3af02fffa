package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f fixedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, _ := f.Embed(ctx, []string{text})
	return vecs[0], nil
}

func TestPineconeStore_UpsertAndQuery(t *testing.T) {
	var upsertBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "pc-test" {
			t.Errorf("missing api key header")
		}
		switch r.URL.Path {
		case "/vectors/upsert":
			json.NewDecoder(r.Body).Decode(&upsertBody)
			w.Write([]byte(`{"upsertedCount": 1}`))
		case "/query":
			json.NewEncoder(w).Encode(map[string]any{
				"matches": []map[string]any{
					{"id": "doc_chunk_0", "score": 0.93, "metadata": map[string]any{"content": "stored text", "documentId": "doc"}},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	store := NewPineconeStore("pc-test", srv.URL, "testing", fixedEmbedder{}, srv.Client())

	err := store.Upsert(context.Background(), []Document{
		{ID: "doc_chunk_0", Content: "stored text", Metadata: map[string]any{"documentId": "doc"}},
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if upsertBody["namespace"] != "testing" {
		t.Errorf("namespace not sent, got %v", upsertBody["namespace"])
	}
	vectors := upsertBody["vectors"].([]any)
	meta := vectors[0].(map[string]any)["metadata"].(map[string]any)
	if meta["content"] != "stored text" {
		t.Errorf("content must ride in metadata, got %v", meta)
	}

	results, err := store.Query(context.Background(), "query text", 5, nil)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 1 || results[0].Content != "stored text" || results[0].Score != 0.93 {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestPineconeStore_DeleteByDocument(t *testing.T) {
	var deleteBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/delete" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&deleteBody)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := NewPineconeStore("pc-test", srv.URL, "", fixedEmbedder{}, srv.Client())
	if err := store.DeleteByDocument(context.Background(), "doc-9"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	filter := deleteBody["filter"].(map[string]any)
	if filter["documentId"] != "doc-9" {
		t.Errorf("expected documentId filter, got %v", filter)
	}
	if deleteBody["namespace"] != "default" {
		t.Errorf("expected default namespace, got %v", deleteBody["namespace"])
	}
}

func TestOpenAIEmbedder_Batches(t *testing.T) {
	var gotInput []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotInput = req.Input
		resp := map[string]any{"data": []map[string]any{}}
		data := resp["data"].([]map[string]any)
		for i := range req.Input {
			data = append(data, map[string]any{"index": i, "embedding": []float32{float32(i), 1}})
		}
		resp["data"] = data
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder("sk-test", "", srv.URL, srv.Client())
	vecs, err := emb.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(gotInput) != 3 {
		t.Errorf("expected one batched call with 3 inputs, got %d", len(gotInput))
	}
	if len(vecs) != 3 || vecs[2][0] != 2 {
		t.Errorf("vectors not ordered by index: %+v", vecs)
	}
}
