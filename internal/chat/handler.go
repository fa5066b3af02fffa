// Package chat exposes the HTTP surface: chat turns in all three modes,
// knowledge-base management, and the engine catalog.
package chat

import (
	"encoding/json"
	"net/http"

	"github.com/helix-labs/helix/internal/auth"
	"github.com/helix-labs/helix/internal/httputil"
	"github.com/helix-labs/helix/internal/memory"
	"github.com/helix-labs/helix/internal/orchestrator"
	"github.com/helix-labs/helix/internal/types"
)

// EngineCatalog lists the configured engines.
type EngineCatalog interface {
	Descriptors() []types.EngineDescriptor
}

// Handler holds dependencies for the chat HTTP handlers. Ingestor may be nil
// when retrieval is disabled; the memory endpoints then return 404.
type Handler struct {
	orch     *orchestrator.Orchestrator
	engines  EngineCatalog
	ingestor *memory.Ingestor
	store    memory.VectorStore
}

func NewHandler(orch *orchestrator.Orchestrator, engines EngineCatalog, ingestor *memory.Ingestor, store memory.VectorStore) *Handler {
	return &Handler{orch: orch, engines: engines, ingestor: ingestor, store: store}
}

type chatRequest struct {
	PersonaID      string `json:"personaId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	UseRetrieval   bool   `json:"useRetrieval,omitempty"`
}

// Chat handles POST /v1/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.PersonaID == "" {
		httputil.WriteBadRequestError(w, reqID, "personaId is required")
		return
	}
	if req.Message == "" {
		httputil.WriteBadRequestError(w, reqID, "message is required")
		return
	}

	res, err := h.orch.RunTurn(r.Context(), orchestrator.TurnRequest{
		Caller:         caller.Budget,
		PersonaID:      req.PersonaID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
		UseRetrieval:   req.UseRetrieval,
	})
	if err != nil {
		httputil.WriteOrchestratorError(w, reqID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type batonRequest struct {
	PersonaIDs      []string `json:"personaIds"`
	Message         string   `json:"message"`
	ConversationIDs []string `json:"conversationIds,omitempty"`
	UseRetrieval    bool     `json:"useRetrieval,omitempty"`
}

// Baton handles POST /v1/chat/baton.
func (h *Handler) Baton(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var req batonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if len(req.PersonaIDs) == 0 {
		httputil.WriteBadRequestError(w, reqID, "personaIds is required")
		return
	}
	if req.Message == "" {
		httputil.WriteBadRequestError(w, reqID, "message is required")
		return
	}

	res, err := h.orch.RunBaton(r.Context(), orchestrator.BatonRequest{
		Caller:          caller.Budget,
		PersonaIDs:      req.PersonaIDs,
		Message:         req.Message,
		ConversationIDs: req.ConversationIDs,
		UseRetrieval:    req.UseRetrieval,
	})
	if err != nil {
		httputil.WriteOrchestratorError(w, reqID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type panelRequest struct {
	PersonaIDs   []string `json:"personaIds"`
	Message      string   `json:"message"`
	UseRetrieval bool     `json:"useRetrieval,omitempty"`
}

// Panel handles POST /v1/chat/panel.
func (h *Handler) Panel(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var req panelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if len(req.PersonaIDs) == 0 {
		httputil.WriteBadRequestError(w, reqID, "personaIds is required")
		return
	}
	if req.Message == "" {
		httputil.WriteBadRequestError(w, reqID, "message is required")
		return
	}

	res, err := h.orch.RunPanel(r.Context(), orchestrator.PanelRequest{
		Caller:       caller.Budget,
		PersonaIDs:   req.PersonaIDs,
		Message:      req.Message,
		UseRetrieval: req.UseRetrieval,
	})
	if err != nil {
		httputil.WriteOrchestratorError(w, reqID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// ListEngines handles GET /v1/engines.
func (h *Handler) ListEngines(w http.ResponseWriter, r *http.Request) {
	type engineEntry struct {
		ID          string `json:"id"`
		Provider    string `json:"provider"`
		DisplayName string `json:"displayName"`
		Enabled     bool   `json:"enabled"`
	}
	descs := h.engines.Descriptors()
	out := make([]engineEntry, len(descs))
	for i, d := range descs {
		out[i] = engineEntry{ID: d.ID, Provider: d.Provider, DisplayName: d.DisplayName, Enabled: d.Enabled}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"engines": out})
}

// Health handles GET /helix/v1/health.
func Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": version,
		})
	}
}
