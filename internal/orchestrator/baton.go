package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/helix-labs/helix/internal/engine"
	"github.com/helix-labs/helix/internal/rubric"
	"github.com/helix-labs/helix/internal/store"
	"github.com/helix-labs/helix/internal/telemetry"
	"github.com/helix-labs/helix/internal/types"
)

// Step actions.
const (
	ActionInitial  = "initial"
	ActionApproved = "approved"
	ActionRevised  = "revised"
)

// Termination reasons.
const (
	ReasonTruthiness = "truthiness"
	ReasonExhausted  = "exhausted"
)

const (
	approvePrefix = "APPROVE:"
	revisePrefix  = "REVISE:"
)

// BatonRequest runs the question through an ordered persona chain. Each
// persona reviews the best answer so far; ConversationIDs, when supplied,
// must be positionally aligned with PersonaIDs.
type BatonRequest struct {
	Caller          *types.BudgetState
	PersonaIDs      []string
	Message         string
	ConversationIDs []string
	UseRetrieval    bool
}

// BatonStep is one executed pass of the chain.
type BatonStep struct {
	PersonaID      string  `json:"personaId"`
	ConversationID string  `json:"conversationId"`
	Action         string  `json:"action"`
	Content        string  `json:"content"`
	CostCents      int64   `json:"costCents"`
	Score          float64 `json:"score"`
	JudgeDegraded  bool    `json:"judgeDegraded,omitempty"`
}

// BatonResult is a completed chain.
type BatonResult struct {
	Answer               string      `json:"answer"`
	Steps                []BatonStep `json:"steps"`
	TotalCostCents       int64       `json:"totalCostCents"`
	RemainingBudgetCents int64       `json:"remainingBudgetCents"`
	TerminationReason    string      `json:"terminationReason"`
}

type batonStepDeps struct {
	persona *types.Persona
	eng     engine.CompletionEngine
	desc    types.EngineDescriptor
}

// RunBaton executes the sequential refinement chain. All preconditions are
// checked before the first engine call; a rejected request costs nothing.
// Budget is checked before each step commits but deducted once, after the
// loop, covering only the steps that actually executed.
func (o *Orchestrator) RunBaton(ctx context.Context, req BatonRequest) (*BatonResult, error) {
	if len(req.PersonaIDs) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: "empty persona chain"}
	}
	if limit := req.Caller.MaxBatonPasses; limit > 0 && len(req.PersonaIDs) > limit {
		return nil, &Error{
			Kind:    KindTooManyPasses,
			Message: fmt.Sprintf("chain of %d personas exceeds the limit of %d passes", len(req.PersonaIDs), limit),
		}
	}
	if req.Caller.BudgetCents <= 0 {
		return nil, insufficientBudget(req.Caller.BudgetCents)
	}
	if len(req.ConversationIDs) > 0 && len(req.ConversationIDs) != len(req.PersonaIDs) {
		return nil, &Error{Kind: KindNotFound, Message: "conversation ids must align with persona chain"}
	}

	// Resolve the whole chain up front so a broken chain issues no calls.
	deps := make([]batonStepDeps, len(req.PersonaIDs))
	for i, id := range req.PersonaIDs {
		persona, eng, desc, oerr := o.resolvePersona(ctx, id, req.Caller.UserID)
		if oerr != nil {
			return nil, oerr
		}
		deps[i] = batonStepDeps{persona: persona, eng: eng, desc: desc}
	}

	threshold := req.Caller.TruthinessThreshold
	if threshold <= 0 {
		threshold = rubric.TruthinessThreshold
	}
	acceptance := threshold + rubric.DeltaGain

	var (
		steps       []BatonStep
		bestAnswer  string
		totalCost   int64
		reason      = ReasonExhausted
		perQuestion = req.Caller.MaxBudgetPerQuestionCents
	)

	for i, dep := range deps {
		convID := ""
		if len(req.ConversationIDs) > 0 {
			convID = req.ConversationIDs[i]
		}
		conv, oerr := o.loadConversation(ctx, convID, dep.persona.ID)
		if oerr != nil {
			return nil, o.abortChain(ctx, req.Caller.UserID, steps, totalCost, oerr)
		}

		var userTurn string
		if i == 0 {
			userTurn = req.Message
			if req.UseRetrieval {
				userTurn = o.injectedQuestion(ctx, req.Message, req.Caller.UserID)
			}
		} else {
			userTurn = reviewPrompt(req.Message, bestAnswer)
		}

		messages, err := o.buildMessages(ctx, dep.persona, conv.ID, userTurn)
		if err != nil {
			oerr := &Error{Kind: KindEngineFailure, Message: "load history failed", CompletedPasses: i, Err: err}
			return nil, o.abortChain(ctx, req.Caller.UserID, steps, totalCost, oerr)
		}

		started := time.Now()
		resp, err := dep.eng.Complete(ctx, completionRequest(dep.persona, messages))
		if err != nil {
			o.metrics.RecordTurn(telemetry.TurnLabels{
				Mode: "baton", Engine: dep.desc.ID, Provider: dep.desc.Provider, Status: "engine_error",
				DurationMs: float64(time.Since(started).Milliseconds()),
			})
			return nil, o.abortChain(ctx, req.Caller.UserID, steps, totalCost, engineFailure(err, i))
		}

		stepCost := costOf(dep.desc, resp.Usage)

		// Affordability is checked before the step commits: an unaffordable
		// step is neither persisted nor charged.
		if totalCost+stepCost > req.Caller.BudgetCents {
			oerr := &Error{
				Kind:            KindInsufficientBudgetMidChain,
				Message:         fmt.Sprintf("step %d would bring chain cost to %d cents, over the %d cents remaining", i, totalCost+stepCost, req.Caller.BudgetCents),
				ShortfallCents:  totalCost + stepCost - req.Caller.BudgetCents,
				CompletedPasses: i,
			}
			return nil, o.abortChain(ctx, req.Caller.UserID, steps, totalCost, oerr)
		}
		if perQuestion > 0 && totalCost+stepCost > perQuestion {
			oerr := &Error{
				Kind:            KindPerQuestionBudgetExceeded,
				Message:         fmt.Sprintf("step %d would bring chain cost to %d cents, over the per-question cap of %d cents", i, totalCost+stepCost, perQuestion),
				CapCents:        perQuestion,
				CompletedPasses: i,
			}
			return nil, o.abortChain(ctx, req.Caller.UserID, steps, totalCost, oerr)
		}

		if err := o.conversations.AppendMessage(ctx, conv.ID, types.RoleUser, userTurn, 0); err != nil {
			oerr := &Error{Kind: KindEngineFailure, Message: "persist user message failed", CompletedPasses: i, Err: err}
			return nil, o.abortChain(ctx, req.Caller.UserID, steps, totalCost, oerr)
		}
		if err := o.conversations.AppendMessage(ctx, conv.ID, types.RoleAssistant, resp.Text, stepCost); err != nil {
			oerr := &Error{Kind: KindEngineFailure, Message: "persist assistant message failed", CompletedPasses: i, Err: err}
			return nil, o.abortChain(ctx, req.Caller.UserID, steps, totalCost, oerr)
		}
		totalCost += stepCost

		action, content := classifyReply(i, resp.Text)
		if action != ActionApproved {
			bestAnswer = content
		}
		o.metrics.RecordBatonStep(action)
		o.metrics.RecordTurn(telemetry.TurnLabels{
			Mode: "baton", Engine: dep.desc.ID, Provider: dep.desc.Provider, Status: "ok",
			DurationMs:   float64(time.Since(started).Milliseconds()),
			PromptTokens: tokens(resp.Usage).PromptTokens, CompletionTokens: tokens(resp.Usage).CompletionTokens,
			CostCents: stepCost,
		})

		judged := o.judge.Score(ctx, o.judgeEngine(dep.eng), req.Message, bestAnswer)
		if judged.Degraded {
			o.metrics.RecordJudgeFallback()
		}

		steps = append(steps, BatonStep{
			PersonaID:      dep.persona.ID,
			ConversationID: conv.ID,
			Action:         action,
			Content:        content,
			CostCents:      stepCost,
			Score:          judged.Score,
			JudgeDegraded:  judged.Degraded,
		})

		slog.Info("baton step completed",
			"step", i,
			"persona_id", dep.persona.ID,
			"action", action,
			"score", judged.Score,
			"cost_cents", stepCost,
			"chain_cost_cents", totalCost,
		)

		if judged.Score >= acceptance {
			reason = ReasonTruthiness
			break
		}
	}

	remaining, err := o.deduct(ctx, req.Caller.UserID, totalCost)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordBatonTermination(reason)

	slog.Info("baton chain terminated",
		"reason", reason,
		"steps", len(steps),
		"total_cost_cents", totalCost,
		"remaining_budget_cents", remaining,
	)

	return &BatonResult{
		Answer:               bestAnswer,
		Steps:                steps,
		TotalCostCents:       totalCost,
		RemainingBudgetCents: remaining,
		TerminationReason:    reason,
	}, nil
}

// abortChain settles a mid-chain failure: the cost of already-committed steps
// is deducted once, then the triggering error is returned. Persisted steps
// stay durable so a partial chain remains inspectable.
func (o *Orchestrator) abortChain(ctx context.Context, userID string, steps []BatonStep, committedCents int64, cause *Error) error {
	if committedCents > 0 {
		if _, err := o.deduct(ctx, userID, committedCents); err != nil {
			slog.Error("deduction for committed baton steps failed",
				"user_id", userID, "committed_cents", committedCents, "error", err)
		}
	}
	o.metrics.RecordBatonTermination(string(cause.Kind))
	slog.Warn("baton chain aborted",
		"kind", string(cause.Kind),
		"completed_steps", len(steps),
		"committed_cents", committedCents,
	)
	return cause
}

func (o *Orchestrator) deduct(ctx context.Context, userID string, cents int64) (int64, error) {
	remaining, err := o.budgets.Deduct(ctx, userID, cents)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientBudget) {
			return 0, &Error{
				Kind:    KindInsufficientBudget,
				Message: fmt.Sprintf("deducting %d cents exceeds remaining budget", cents),
			}
		}
		return 0, &Error{Kind: KindEngineFailure, Message: "budget deduction failed", Err: err}
	}
	return remaining, nil
}

// classifyReply maps a raw reply to its step action and displayed content.
// Step 0 is always the initial answer; later steps are parsed for the
// APPROVE/REVISE prefixes, and anything else counts as an implicit revision.
func classifyReply(step int, raw string) (action, content string) {
	trimmed := strings.TrimSpace(raw)
	if step == 0 {
		return ActionInitial, trimmed
	}
	switch {
	case strings.HasPrefix(trimmed, approvePrefix):
		return ActionApproved, strings.TrimSpace(strings.TrimPrefix(trimmed, approvePrefix))
	case strings.HasPrefix(trimmed, revisePrefix):
		return ActionRevised, strings.TrimSpace(strings.TrimPrefix(trimmed, revisePrefix))
	default:
		return ActionRevised, trimmed
	}
}

func reviewPrompt(question, currentAnswer string) string {
	return fmt.Sprintf(`Review the current answer to the original question below.

Original question:
%s

Current answer:
%s

If the answer is accurate and complete, reply exactly "APPROVE: <short reason>".
If it can be improved, reply exactly "REVISE: <your improved answer>".`, question, currentAnswer)
}
