package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/helix-labs/helix/internal/httputil"
	"github.com/helix-labs/helix/internal/store"
	"github.com/helix-labs/helix/internal/types"
)

// CallerStore resolves an API key hash to a caller's budget state.
type CallerStore interface {
	CallerByKeyHash(ctx context.Context, keyHash string) (*types.BudgetState, error)
}

// Middleware returns a chi middleware that authenticates requests via Bearer
// token and stores the resolved caller in the request context.
func Middleware(callers CallerStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <api-key>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <api-key>")
				return
			}
			if token == "" {
				httputil.WriteAuthError(w, reqID, "Empty API key")
				return
			}

			budget, err := callers.CallerByKeyHash(r.Context(), HashKey(token))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					slog.Warn("auth failed: key not found", "key_prefix", KeyPrefix(token))
					httputil.WriteAuthError(w, reqID, "Invalid API key")
					return
				}
				slog.Error("key lookup failed", "error", err, "key_prefix", KeyPrefix(token))
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}

			info := &CallerInfo{UserID: budget.UserID, Budget: budget}
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), info)))
		})
	}
}
