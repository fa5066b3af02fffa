package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/helix-labs/helix/internal/types"
)

// PanelRequest puts the same question to several personas independently; no
// persona sees another's output.
type PanelRequest struct {
	Caller       *types.BudgetState
	PersonaIDs   []string
	Message      string
	UseRetrieval bool
}

// PanelAnswer is one persona's outcome. Exactly one of Result and Error is
// set; a failed persona never aborts the rest of the panel.
type PanelAnswer struct {
	PersonaID string      `json:"personaId"`
	Result    *TurnResult `json:"result,omitempty"`
	Error     *Error      `json:"error,omitempty"`
}

// PanelResult collects the panel, in the order personas were requested.
type PanelResult struct {
	Answers              []PanelAnswer `json:"answers"`
	TotalCostCents       int64         `json:"totalCostCents"`
	RemainingBudgetCents int64         `json:"remainingBudgetCents"`
}

// RunPanel issues every persona's turn concurrently and collects labeled
// results. Each turn deducts its own cost; the returned remaining budget is
// the lowest value observed across the successful turns.
func (o *Orchestrator) RunPanel(ctx context.Context, req PanelRequest) (*PanelResult, error) {
	if len(req.PersonaIDs) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: "empty persona panel"}
	}
	if req.Caller.BudgetCents <= 0 {
		return nil, insufficientBudget(req.Caller.BudgetCents)
	}

	answers := make([]PanelAnswer, len(req.PersonaIDs))
	var wg sync.WaitGroup
	for i, id := range req.PersonaIDs {
		wg.Add(1)
		go func(i int, personaID string) {
			defer wg.Done()
			res, err := o.RunTurn(ctx, TurnRequest{
				Caller:       req.Caller,
				PersonaID:    personaID,
				Message:      req.Message,
				UseRetrieval: req.UseRetrieval,
			})
			answer := PanelAnswer{PersonaID: personaID}
			if err != nil {
				var oerr *Error
				if !errors.As(err, &oerr) {
					oerr = &Error{Kind: KindEngineFailure, Message: err.Error(), Err: err}
				}
				answer.Error = oerr
			} else {
				answer.Result = res
			}
			answers[i] = answer
		}(i, id)
	}
	wg.Wait()

	var (
		total     int64
		remaining = req.Caller.BudgetCents
	)
	for _, a := range answers {
		if a.Result == nil {
			continue
		}
		total += a.Result.CostCents
		if a.Result.RemainingBudgetCents < remaining {
			remaining = a.Result.RemainingBudgetCents
		}
	}

	return &PanelResult{
		Answers:              answers,
		TotalCostCents:       total,
		RemainingBudgetCents: remaining,
	}, nil
}
