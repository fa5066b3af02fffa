// Package orchestrator drives completion turns: the one-shot single-turn
// path, the concurrent panel variant, and the sequential baton refinement
// chain with budget tracking and rubric-gated early termination.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/helix-labs/helix/internal/engine"
	"github.com/helix-labs/helix/internal/memory"
	"github.com/helix-labs/helix/internal/pricing"
	"github.com/helix-labs/helix/internal/rubric"
	"github.com/helix-labs/helix/internal/store"
	"github.com/helix-labs/helix/internal/telemetry"
	"github.com/helix-labs/helix/internal/types"
)

// PersonaDirectory resolves personas visible to a caller.
type PersonaDirectory interface {
	PersonaByID(ctx context.Context, personaID, callerID string) (*types.Persona, error)
}

// Conversations is the append-only conversation/message store.
type Conversations interface {
	Create(ctx context.Context, personaID string) (*types.Conversation, error)
	Get(ctx context.Context, conversationID, personaID string) (*types.Conversation, error)
	Recent(ctx context.Context, conversationID string, n int) ([]types.StoredMessage, error)
	AppendMessage(ctx context.Context, conversationID, role, content string, costCents int64) error
}

// Budgets issues atomic budget deductions.
type Budgets interface {
	Deduct(ctx context.Context, userID string, cents int64) (int64, error)
}

// EngineResolver resolves engine ids to adapters and catalog entries.
type EngineResolver interface {
	Engine(id string) (engine.CompletionEngine, types.EngineDescriptor, bool)
	Descriptor(id string) (types.EngineDescriptor, bool)
}

// Retriever fetches formatted knowledge-base context for a query.
type Retriever interface {
	ContextFor(ctx context.Context, query string, filter map[string]any) (string, error)
}

// Scorer judges a candidate answer against the original question.
type Scorer interface {
	Score(ctx context.Context, eng engine.CompletionEngine, question, answer string) rubric.Result
}

// Orchestrator wires the collaborators for all turn modes. Construct once at
// startup with explicit dependencies; retriever and metrics may be nil.
type Orchestrator struct {
	engines       EngineResolver
	personas      PersonaDirectory
	conversations Conversations
	budgets       Budgets
	retriever     Retriever
	judge         Scorer
	metrics       *telemetry.Metrics

	historyWindow int
	judgeEngineID string
}

// Options tunes the orchestrator.
type Options struct {
	HistoryWindow int    // messages of history per turn; default 20
	JudgeEngineID string // engine for rubric judging; empty = the step's engine
}

func New(engines EngineResolver, personas PersonaDirectory, conversations Conversations, budgets Budgets, retriever Retriever, judge Scorer, metrics *telemetry.Metrics, opts Options) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 20
	}
	if judge == nil {
		judge = rubric.Judge{}
	}
	return &Orchestrator{
		engines:       engines,
		personas:      personas,
		conversations: conversations,
		budgets:       budgets,
		retriever:     retriever,
		judge:         judge,
		metrics:       metrics,
		historyWindow: opts.HistoryWindow,
		judgeEngineID: opts.JudgeEngineID,
	}
}

// resolvePersona loads a persona and its engine, enforcing visibility and the
// enabled flag. No side effects; safe to call before any commitment.
func (o *Orchestrator) resolvePersona(ctx context.Context, personaID, callerID string) (*types.Persona, engine.CompletionEngine, types.EngineDescriptor, *Error) {
	persona, err := o.personas.PersonaByID(ctx, personaID, callerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, types.EngineDescriptor{}, notFound("persona " + personaID)
		}
		return nil, nil, types.EngineDescriptor{}, &Error{Kind: KindNotFound, Message: "persona lookup failed", Err: err}
	}

	eng, desc, ok := o.engines.Engine(persona.EngineID)
	if !ok {
		return nil, nil, types.EngineDescriptor{}, notFound("engine " + persona.EngineID)
	}
	if !desc.Enabled {
		return nil, nil, types.EngineDescriptor{}, engineDisabled(desc.ID)
	}
	return persona, eng, desc, nil
}

// loadConversation reuses the supplied conversation id or lazily creates one.
func (o *Orchestrator) loadConversation(ctx context.Context, conversationID, personaID string) (*types.Conversation, *Error) {
	if conversationID != "" {
		conv, err := o.conversations.Get(ctx, conversationID, personaID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFound("conversation " + conversationID)
			}
			return nil, &Error{Kind: KindNotFound, Message: "conversation lookup failed", Err: err}
		}
		return conv, nil
	}
	conv, err := o.conversations.Create(ctx, personaID)
	if err != nil {
		return nil, &Error{Kind: KindEngineFailure, Message: "create conversation failed", Err: err}
	}
	return conv, nil
}

// buildMessages assembles the engine message list: persona system prompt,
// recent history, then the new user turn.
func (o *Orchestrator) buildMessages(ctx context.Context, persona *types.Persona, conversationID, userContent string) ([]types.Message, error) {
	messages := []types.Message{{Role: types.RoleSystem, Content: persona.SystemPrompt}}

	history, err := o.conversations.Recent(ctx, conversationID, o.historyWindow)
	if err != nil {
		return nil, err
	}
	for _, m := range history {
		messages = append(messages, types.Message{Role: m.Role, Content: m.Content})
	}

	messages = append(messages, types.Message{Role: types.RoleUser, Content: userContent})
	return messages, nil
}

// injectedQuestion runs best-effort retrieval and folds any context into the
// question. Failures are logged and swallowed; retrieval never blocks a turn.
func (o *Orchestrator) injectedQuestion(ctx context.Context, question, callerID string) string {
	if o.retriever == nil {
		return question
	}
	contextBlock, err := o.retriever.ContextFor(ctx, question, map[string]any{"userId": callerID})
	if err != nil {
		slog.Warn("retrieval failed, proceeding without context", "user_id", callerID, "error", err)
		o.metrics.RecordRetrievalFailure()
		return question
	}
	return memory.InjectContext(question, contextBlock)
}

// completionRequest shapes a request from persona parameters.
func completionRequest(persona *types.Persona, messages []types.Message) types.CompletionRequest {
	req := types.CompletionRequest{Messages: messages}
	temp := persona.Temperature
	req.Temperature = &temp
	if persona.MaxTokens > 0 {
		maxTokens := persona.MaxTokens
		req.MaxTokens = &maxTokens
	}
	return req
}

func costOf(desc types.EngineDescriptor, usage *types.Usage) int64 {
	if usage == nil {
		return 0
	}
	return pricing.Cost(pricing.Rates{
		InputCentsPerMTok:  desc.InputRate,
		OutputCentsPerMTok: desc.OutputRate,
	}, usage.PromptTokens, usage.CompletionTokens)
}

// judgeEngine picks the engine used for rubric scoring: the configured judge
// if resolvable and enabled, otherwise the engine that produced the answer.
func (o *Orchestrator) judgeEngine(stepEngine engine.CompletionEngine) engine.CompletionEngine {
	if o.judgeEngineID == "" {
		return stepEngine
	}
	eng, desc, ok := o.engines.Engine(o.judgeEngineID)
	if !ok || !desc.Enabled {
		return stepEngine
	}
	return eng
}
