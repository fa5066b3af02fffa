package auth

import (
	"context"

	"github.com/helix-labs/helix/internal/types"
)

type contextKey string

const callerContextKey contextKey = "helix_caller"

// CallerInfo is the authenticated identity and its budget state, resolved
// once per request and carried through the request context.
type CallerInfo struct {
	UserID string
	Budget *types.BudgetState
}

func ContextWithCaller(ctx context.Context, info *CallerInfo) context.Context {
	return context.WithValue(ctx, callerContextKey, info)
}

func CallerFromContext(ctx context.Context) (*CallerInfo, bool) {
	info, ok := ctx.Value(callerContextKey).(*CallerInfo)
	return info, ok
}
