package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/helix-labs/helix/internal/orchestrator"
)

// APIError is the stable error envelope returned by every endpoint.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message         string `json:"message"`
	Kind            string `json:"kind"`
	ShortfallCents  int64  `json:"shortfallCents,omitempty"`
	CapCents        int64  `json:"capCents,omitempty"`
	CompletedPasses int    `json:"completedPasses,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, requestID string, statusCode int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Kind:      kind,
			RequestID: requestID,
		},
	})
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "internal_error", message)
}

// WriteOrchestratorError maps the typed turn errors onto HTTP statuses,
// carrying the numeric budget context through to the client.
func WriteOrchestratorError(w http.ResponseWriter, requestID string, err error) {
	var oerr *orchestrator.Error
	if !errors.As(err, &oerr) {
		WriteInternalError(w, requestID, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch oerr.Kind {
	case orchestrator.KindNotFound:
		status = http.StatusNotFound
	case orchestrator.KindEngineDisabled, orchestrator.KindTooManyPasses:
		status = http.StatusBadRequest
	case orchestrator.KindInsufficientBudget,
		orchestrator.KindInsufficientBudgetMidChain,
		orchestrator.KindPerQuestionBudgetExceeded:
		status = http.StatusPaymentRequired
	case orchestrator.KindEngineFailure:
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:         oerr.Message,
			Kind:            string(oerr.Kind),
			ShortfallCents:  oerr.ShortfallCents,
			CapCents:        oerr.CapCents,
			CompletedPasses: oerr.CompletedPasses,
			RequestID:       requestID,
		},
	})
}
