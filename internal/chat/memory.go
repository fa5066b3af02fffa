package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helix-labs/helix/internal/auth"
	"github.com/helix-labs/helix/internal/httputil"
	"github.com/helix-labs/helix/internal/memory"
)

type ingestRequest struct {
	DocumentID string         `json:"documentId"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ChunkSize  int            `json:"chunkSize,omitempty"`
	Overlap    int            `json:"overlap,omitempty"`
}

// IngestDocument handles POST /v1/memory/documents. Every chunk is stamped
// with the caller's user id so queries stay scoped to their own documents.
func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}
	if h.ingestor == nil {
		httputil.WriteError(w, reqID, http.StatusNotFound, "retrieval_disabled", "Retrieval is not enabled")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.DocumentID == "" {
		httputil.WriteBadRequestError(w, reqID, "documentId is required")
		return
	}
	if req.Content == "" {
		httputil.WriteBadRequestError(w, reqID, "content is required")
		return
	}

	meta := map[string]any{"userId": caller.UserID}
	for k, v := range req.Metadata {
		if k == "userId" {
			continue
		}
		meta[k] = v
	}

	count, err := h.ingestor.Ingest(r.Context(), memory.IngestRequest{
		DocumentID: req.DocumentID,
		Content:    req.Content,
		Metadata:   meta,
		ChunkSize:  req.ChunkSize,
		Overlap:    req.Overlap,
	})
	if err != nil {
		slog.Error("document ingestion failed", "request_id", reqID, "document_id", req.DocumentID, "error", err)
		httputil.WriteInternalError(w, reqID, "Ingestion failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"documentId": req.DocumentID,
		"chunks":     count,
	})
}

type queryRequest struct {
	Query  string         `json:"query"`
	TopK   int            `json:"topK,omitempty"`
	Filter map[string]any `json:"filter,omitempty"`
}

// QueryMemory handles POST /v1/memory/query.
func (h *Handler) QueryMemory(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}
	if h.store == nil {
		httputil.WriteError(w, reqID, http.StatusNotFound, "retrieval_disabled", "Retrieval is not enabled")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.Query == "" {
		httputil.WriteBadRequestError(w, reqID, "query is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	filter := map[string]any{"userId": caller.UserID}
	for k, v := range req.Filter {
		if k == "userId" {
			continue
		}
		filter[k] = v
	}

	results, err := h.store.Query(r.Context(), req.Query, topK, filter)
	if err != nil {
		slog.Error("memory query failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Query failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

// DeleteDocument handles DELETE /v1/memory/documents/{id}.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	if _, ok := auth.CallerFromContext(r.Context()); !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}
	if h.ingestor == nil {
		httputil.WriteError(w, reqID, http.StatusNotFound, "retrieval_disabled", "Retrieval is not enabled")
		return
	}

	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		httputil.WriteBadRequestError(w, reqID, "document id is required")
		return
	}

	if err := h.ingestor.DeleteDocument(r.Context(), documentID); err != nil {
		slog.Error("document deletion failed", "request_id", reqID, "document_id", documentID, "error", err)
		httputil.WriteInternalError(w, reqID, "Deletion failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"deleted": documentID})
}
