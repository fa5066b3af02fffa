package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helix-labs/helix/internal/store"
	"github.com/helix-labs/helix/internal/telemetry"
	"github.com/helix-labs/helix/internal/types"
)

// TurnRequest is one single-turn chat request. Caller is the resolved
// identity and budget record supplied by the auth layer.
type TurnRequest struct {
	Caller         *types.BudgetState
	PersonaID      string
	Message        string
	ConversationID string
	UseRetrieval   bool
}

// TurnResult is the outcome of a successful single turn.
type TurnResult struct {
	ConversationID       string       `json:"conversationId"`
	Answer               string       `json:"answer"`
	Usage                *types.Usage `json:"usage,omitempty"`
	CostCents            int64        `json:"costCents"`
	RemainingBudgetCents int64        `json:"remainingBudgetCents"`
}

// RunTurn executes one single-turn completion. All validation and budget
// checks happen before anything is persisted or deducted; a turn rejected by
// the per-question cap leaves no trace.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	persona, eng, desc, oerr := o.resolvePersona(ctx, req.PersonaID, req.Caller.UserID)
	if oerr != nil {
		return nil, oerr
	}

	if req.Caller.BudgetCents <= 0 {
		return nil, insufficientBudget(req.Caller.BudgetCents)
	}

	conv, oerr := o.loadConversation(ctx, req.ConversationID, persona.ID)
	if oerr != nil {
		return nil, oerr
	}

	userContent := req.Message
	if req.UseRetrieval {
		userContent = o.injectedQuestion(ctx, req.Message, req.Caller.UserID)
	}

	messages, err := o.buildMessages(ctx, persona, conv.ID, userContent)
	if err != nil {
		return nil, &Error{Kind: KindEngineFailure, Message: "load history failed", Err: err}
	}

	started := time.Now()
	resp, err := eng.Complete(ctx, completionRequest(persona, messages))
	if err != nil {
		o.metrics.RecordTurn(telemetry.TurnLabels{
			Mode: "single", Engine: desc.ID, Provider: desc.Provider, Status: "engine_error",
			DurationMs: float64(time.Since(started).Milliseconds()),
		})
		return nil, engineFailure(err, 0)
	}

	cost := costOf(desc, resp.Usage)

	if limit := req.Caller.MaxBudgetPerQuestionCents; limit > 0 && cost > limit {
		// Check-before-commit: nothing persisted, nothing deducted.
		return nil, &Error{
			Kind:     KindPerQuestionBudgetExceeded,
			Message:  fmt.Sprintf("turn cost %d cents exceeds per-question cap of %d cents", cost, limit),
			CapCents: limit,
		}
	}

	if err := o.conversations.AppendMessage(ctx, conv.ID, types.RoleUser, req.Message, 0); err != nil {
		return nil, &Error{Kind: KindEngineFailure, Message: "persist user message failed", Err: err}
	}
	if err := o.conversations.AppendMessage(ctx, conv.ID, types.RoleAssistant, resp.Text, cost); err != nil {
		return nil, &Error{Kind: KindEngineFailure, Message: "persist assistant message failed", Err: err}
	}

	remaining, err := o.budgets.Deduct(ctx, req.Caller.UserID, cost)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientBudget) {
			return nil, &Error{
				Kind:           KindInsufficientBudget,
				Message:        fmt.Sprintf("turn cost %d cents exceeds remaining budget", cost),
				ShortfallCents: cost - req.Caller.BudgetCents,
			}
		}
		return nil, &Error{Kind: KindEngineFailure, Message: "budget deduction failed", Err: err}
	}

	o.metrics.RecordTurn(telemetry.TurnLabels{
		Mode: "single", Engine: desc.ID, Provider: desc.Provider, Status: "ok",
		DurationMs:   float64(time.Since(started).Milliseconds()),
		PromptTokens: tokens(resp.Usage).PromptTokens, CompletionTokens: tokens(resp.Usage).CompletionTokens,
		CostCents: cost,
	})

	slog.Info("turn completed",
		"persona_id", persona.ID,
		"engine_id", desc.ID,
		"conversation_id", conv.ID,
		"cost_cents", cost,
		"remaining_budget_cents", remaining,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return &TurnResult{
		ConversationID:       conv.ID,
		Answer:               resp.Text,
		Usage:                resp.Usage,
		CostCents:            cost,
		RemainingBudgetCents: remaining,
	}, nil
}

func tokens(u *types.Usage) types.Usage {
	if u == nil {
		return types.Usage{}
	}
	return *u
}
