package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/helix-labs/helix/internal/auth"
	"github.com/helix-labs/helix/internal/types"
)

func callerRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	info := &auth.CallerInfo{UserID: userID, Budget: &types.BudgetState{UserID: userID}}
	return req.WithContext(auth.ContextWithCaller(req.Context(), info))
}

func TestMiddlewareAllowsRequest(t *testing.T) {
	mw := Middleware(NewLimiter(nil), 100, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-1")
	handler.ServeHTTP(rec, callerRequest("user-1"))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "100" {
		t.Errorf("limit header = %s, want 100", h)
	}
	if h := rec.Header().Get(headerRateLimitRemainingRequests); h == "" {
		t.Error("missing remaining header")
	}
	if h := rec.Header().Get(headerRateLimitReset); h == "" {
		t.Error("missing reset header")
	}
}

func TestMiddlewareDefaultRPM(t *testing.T) {
	mw := Middleware(NewLimiter(nil), 0, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, callerRequest("user-2"))

	if h := rec.Header().Get(headerRateLimitRequests); h != "60" {
		t.Errorf("limit header = %s, want default 60", h)
	}
}

func TestMiddlewareNoCallerPassThrough(t *testing.T) {
	mw := Middleware(NewLimiter(nil), 60, nil)
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", nil))

	if !called {
		t.Error("request without caller context should pass through to auth")
	}
}
