package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/helix-labs/helix/internal/auth"
	"github.com/helix-labs/helix/internal/engine"
	"github.com/helix-labs/helix/internal/memory"
	"github.com/helix-labs/helix/internal/orchestrator"
	"github.com/helix-labs/helix/internal/store"
	"github.com/helix-labs/helix/internal/types"
)

type staticEngine struct {
	id    string
	reply string
}

func (e *staticEngine) ID() string       { return e.id }
func (e *staticEngine) Provider() string { return "test" }

func (e *staticEngine) Complete(ctx context.Context, req types.CompletionRequest) (*types.CompletionResponse, error) {
	return &types.CompletionResponse{
		Text:  e.reply,
		Usage: &types.Usage{PromptTokens: 10000, CompletionTokens: 10000, TotalTokens: 20000},
	}, nil
}

type staticResolver struct {
	eng  *staticEngine
	desc types.EngineDescriptor
}

func (r *staticResolver) Engine(id string) (engine.CompletionEngine, types.EngineDescriptor, bool) {
	if id != r.desc.ID {
		return nil, types.EngineDescriptor{}, false
	}
	return r.eng, r.desc, true
}

func (r *staticResolver) Descriptor(id string) (types.EngineDescriptor, bool) {
	if id != r.desc.ID {
		return types.EngineDescriptor{}, false
	}
	return r.desc, true
}

func (r *staticResolver) Descriptors() []types.EngineDescriptor {
	return []types.EngineDescriptor{r.desc}
}

type staticPersonas struct{ persona *types.Persona }

func (p *staticPersonas) PersonaByID(ctx context.Context, personaID, callerID string) (*types.Persona, error) {
	if p.persona == nil || p.persona.ID != personaID {
		return nil, store.ErrNotFound
	}
	return p.persona, nil
}

type memConversations struct{ n int }

func (c *memConversations) Create(ctx context.Context, personaID string) (*types.Conversation, error) {
	c.n++
	return &types.Conversation{ID: "conv-1", PersonaID: personaID}, nil
}

func (c *memConversations) Get(ctx context.Context, conversationID, personaID string) (*types.Conversation, error) {
	return &types.Conversation{ID: conversationID, PersonaID: personaID}, nil
}

func (c *memConversations) Recent(ctx context.Context, conversationID string, n int) ([]types.StoredMessage, error) {
	return nil, nil
}

func (c *memConversations) AppendMessage(ctx context.Context, conversationID, role, content string, costCents int64) error {
	return nil
}

type memBudgets struct{ balance int64 }

func (b *memBudgets) Deduct(ctx context.Context, userID string, cents int64) (int64, error) {
	if cents > b.balance {
		return 0, store.ErrInsufficientBudget
	}
	b.balance -= cents
	return b.balance, nil
}

func testHandler(t *testing.T, budget int64) (*Handler, *staticResolver) {
	t.Helper()
	resolver := &staticResolver{
		eng:  &staticEngine{id: "gpt-test", reply: "hello"},
		desc: types.EngineDescriptor{ID: "gpt-test", Provider: "test", DisplayName: "GPT Test", Enabled: true, InputRate: 100, OutputRate: 100},
	}
	personas := &staticPersonas{persona: &types.Persona{ID: "helper", EngineID: "gpt-test", SystemPrompt: "hi"}}
	orch := orchestrator.New(resolver, personas, &memConversations{}, &memBudgets{balance: budget}, nil, nil, nil, orchestrator.Options{})
	return NewHandler(orch, resolver, nil, nil), resolver
}

func doRequest(h http.HandlerFunc, method, target, body string, authed bool) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if authed {
		info := &auth.CallerInfo{UserID: "user-1", Budget: &types.BudgetState{
			UserID: "user-1", BudgetCents: 1000, MaxBudgetPerQuestionCents: 100, MaxBatonPasses: 5, TruthinessThreshold: 0.70,
		}}
		r = r.WithContext(auth.ContextWithCaller(r.Context(), info))
	}
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func TestChatHappyPath(t *testing.T) {
	h, _ := testHandler(t, 1000)
	w := doRequest(h.Chat, http.MethodPost, "/v1/chat", `{"personaId":"helper","message":"hi"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res orchestrator.TurnResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Answer != "hello" {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.CostCents != 2 {
		t.Errorf("cost = %d, want 2", res.CostCents)
	}
}

func TestChatValidation(t *testing.T) {
	h, _ := testHandler(t, 1000)
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing persona", `{"message":"hi"}`},
		{"missing message", `{"personaId":"helper"}`},
	}
	for _, tt := range tests {
		w := doRequest(h.Chat, http.MethodPost, "/v1/chat", tt.body, true)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, w.Code)
		}
	}
}

func TestChatRequiresAuth(t *testing.T) {
	h, _ := testHandler(t, 1000)
	w := doRequest(h.Chat, http.MethodPost, "/v1/chat", `{"personaId":"helper","message":"hi"}`, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestChatUnknownPersonaMapsTo404(t *testing.T) {
	h, _ := testHandler(t, 1000)
	w := doRequest(h.Chat, http.MethodPost, "/v1/chat", `{"personaId":"ghost","message":"hi"}`, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestBatonValidation(t *testing.T) {
	h, _ := testHandler(t, 1000)
	w := doRequest(h.Baton, http.MethodPost, "/v1/chat/baton", `{"message":"hi"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestBatonTooManyPassesMapsTo400(t *testing.T) {
	h, _ := testHandler(t, 1000)
	body := `{"personaIds":["helper","helper","helper","helper","helper","helper"],"message":"hi"}`
	w := doRequest(h.Baton, http.MethodPost, "/v1/chat/baton", body, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Kind != "too_many_passes" {
		t.Errorf("kind = %q, want too_many_passes", resp.Error.Kind)
	}
}

func TestPanelHappyPath(t *testing.T) {
	h, _ := testHandler(t, 1000)
	w := doRequest(h.Panel, http.MethodPost, "/v1/chat/panel", `{"personaIds":["helper"],"message":"hi"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res orchestrator.PanelResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Answers) != 1 || res.Answers[0].Result == nil {
		t.Errorf("answers = %+v", res.Answers)
	}
}

func TestListEngines(t *testing.T) {
	h, _ := testHandler(t, 1000)
	w := doRequest(h.ListEngines, http.MethodGet, "/v1/engines", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Engines []struct {
			ID      string `json:"id"`
			Enabled bool   `json:"enabled"`
		} `json:"engines"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Engines) != 1 || resp.Engines[0].ID != "gpt-test" {
		t.Errorf("engines = %+v", resp.Engines)
	}
}

type stubVectorStore struct {
	docs    map[string]memory.Document
	queries []map[string]any
}

func newStubVectorStore() *stubVectorStore {
	return &stubVectorStore{docs: map[string]memory.Document{}}
}

func (s *stubVectorStore) Upsert(ctx context.Context, docs []memory.Document) error {
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return nil
}

func (s *stubVectorStore) Query(ctx context.Context, text string, topK int, filter map[string]any) ([]memory.QueryResult, error) {
	s.queries = append(s.queries, filter)
	return []memory.QueryResult{{ID: "doc_chunk_0", Content: "stored text", Score: 0.9}}, nil
}

func (s *stubVectorStore) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

func (s *stubVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	for id, d := range s.docs {
		if d.Metadata["documentId"] == documentID {
			delete(s.docs, id)
		}
	}
	return nil
}

func memoryHandler(t *testing.T) (*Handler, *stubVectorStore) {
	t.Helper()
	h, _ := testHandler(t, 1000)
	vs := newStubVectorStore()
	h.store = vs
	h.ingestor = memory.NewIngestor(vs, memory.ChunkOptions{})
	return h, vs
}

func TestIngestDocumentStampsCaller(t *testing.T) {
	h, vs := memoryHandler(t)
	body := `{"documentId":"doc1","content":"some text to store","metadata":{"topic":"go","userId":"spoofed"}}`
	w := doRequest(h.IngestDocument, http.MethodPost, "/v1/memory/documents", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	doc, ok := vs.docs["doc1_chunk_0"]
	if !ok {
		t.Fatal("chunk doc1_chunk_0 not stored")
	}
	if doc.Metadata["userId"] != "user-1" {
		t.Errorf("userId = %v, caller stamp must win over request metadata", doc.Metadata["userId"])
	}
	if doc.Metadata["topic"] != "go" {
		t.Errorf("topic metadata lost: %v", doc.Metadata)
	}
}

func TestQueryMemoryForcesCallerFilter(t *testing.T) {
	h, vs := memoryHandler(t)
	body := `{"query":"what is stored?","filter":{"userId":"someone-else","topic":"go"}}`
	w := doRequest(h.QueryMemory, http.MethodPost, "/v1/memory/query", body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(vs.queries) != 1 {
		t.Fatalf("queries = %d, want 1", len(vs.queries))
	}
	if vs.queries[0]["userId"] != "user-1" {
		t.Errorf("filter userId = %v, want caller's id", vs.queries[0]["userId"])
	}
	if vs.queries[0]["topic"] != "go" {
		t.Errorf("caller filter keys dropped: %v", vs.queries[0])
	}
}

func TestDeleteDocument(t *testing.T) {
	h, vs := memoryHandler(t)
	vs.docs["doc1_chunk_0"] = memory.Document{ID: "doc1_chunk_0", Metadata: map[string]any{"documentId": "doc1"}}

	r := httptest.NewRequest(http.MethodDelete, "/v1/memory/documents/doc1", nil)
	info := &auth.CallerInfo{UserID: "user-1", Budget: &types.BudgetState{UserID: "user-1"}}
	r = r.WithContext(auth.ContextWithCaller(r.Context(), info))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "doc1")
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.DeleteDocument(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := vs.docs["doc1_chunk_0"]; ok {
		t.Error("document chunk still present after delete")
	}
}

func TestMemoryEndpointsDisabled(t *testing.T) {
	h, _ := testHandler(t, 1000)
	w := doRequest(h.IngestDocument, http.MethodPost, "/v1/memory/documents", `{"documentId":"d","content":"c"}`, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("ingest status = %d, want 404 when retrieval disabled", w.Code)
	}
	w = doRequest(h.QueryMemory, http.MethodPost, "/v1/memory/query", `{"query":"q"}`, true)
	if w.Code != http.StatusNotFound {
		t.Errorf("query status = %d, want 404 when retrieval disabled", w.Code)
	}
}
