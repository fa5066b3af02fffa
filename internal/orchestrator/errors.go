package orchestrator

import "fmt"

// Kind is the stable machine-readable error kind exposed to callers.
type Kind string

const (
	KindNotFound                   Kind = "not_found"
	KindEngineDisabled             Kind = "engine_disabled"
	KindInsufficientBudget         Kind = "insufficient_budget"
	KindInsufficientBudgetMidChain Kind = "insufficient_budget_mid_chain"
	KindPerQuestionBudgetExceeded  Kind = "per_question_budget_exceeded"
	KindTooManyPasses              Kind = "too_many_passes"
	KindEngineFailure              Kind = "engine_failure"
)

// Error is the typed error returned by the orchestrators. Budget errors carry
// the numeric shortfall or cap so clients can render actionable messages;
// chain aborts report how many passes actually completed.
type Error struct {
	Kind            Kind
	Message         string
	ShortfallCents  int64
	CapCents        int64
	CompletedPasses int
	Err             error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func notFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func engineDisabled(engineID string) *Error {
	return &Error{Kind: KindEngineDisabled, Message: fmt.Sprintf("engine %s is disabled", engineID)}
}

func insufficientBudget(budgetCents int64) *Error {
	return &Error{
		Kind:           KindInsufficientBudget,
		Message:        fmt.Sprintf("budget exhausted: %d cents remaining", budgetCents),
		ShortfallCents: -budgetCents,
	}
}

func engineFailure(err error, completed int) *Error {
	return &Error{
		Kind:            KindEngineFailure,
		Message:         "engine call failed after retries",
		CompletedPasses: completed,
		Err:             err,
	}
}
