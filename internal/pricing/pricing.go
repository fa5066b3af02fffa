// Package pricing computes the cost of a completion in integer cents from
// the engine's per-million-token rates.
package pricing

import "math"

// Rates are cents per million tokens for one engine.
type Rates struct {
	InputCentsPerMTok  int64
	OutputCentsPerMTok int64
}

// Cost returns the cost in cents for the given token counts, rounded up so
// the caller is never undercharged. Zero usage costs zero.
func Cost(r Rates, promptTokens, completionTokens int) int64 {
	if promptTokens <= 0 && completionTokens <= 0 {
		return 0
	}
	input := float64(promptTokens) / 1_000_000 * float64(r.InputCentsPerMTok)
	output := float64(completionTokens) / 1_000_000 * float64(r.OutputCentsPerMTok)
	return int64(math.Ceil(input + output))
}
