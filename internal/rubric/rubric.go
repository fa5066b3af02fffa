// Package rubric scores candidate answers on a five-dimension quality rubric
// using a low-temperature judge call. The score gates the baton chain's early
// termination; it degrades to a neutral fallback instead of failing.
package rubric

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/helix-labs/helix/internal/engine"
	"github.com/helix-labs/helix/internal/types"
)

// Scores are the rubric dimensions, each in [0,1].
type Scores struct {
	Relevance    float64 `json:"relevance"`
	Correctness  float64 `json:"correctness"`
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Brevity      float64 `json:"brevity"`
}

// Dimension weights. Correctness matters most; brevity least.
const (
	weightRelevance    = 0.25
	weightCorrectness  = 0.30
	weightCompleteness = 0.20
	weightClarity      = 0.15
	weightBrevity      = 0.10
)

// TruthinessThreshold is the default acceptance bar for an answer.
const TruthinessThreshold = 0.70

// DeltaGain is the margin above the caller's threshold an answer must clear
// before the chain stops early. Stopping at the bar exactly is not enough;
// the answer has to be meaningfully above it.
const DeltaGain = 0.07

// fallbackScore is returned for every dimension when the judge is unusable.
const fallbackScore = 0.70

// ScoreOf reduces rubric dimensions to a scalar via the fixed weights.
func ScoreOf(s Scores) float64 {
	return weightRelevance*s.Relevance +
		weightCorrectness*s.Correctness +
		weightCompleteness*s.Completeness +
		weightClarity*s.Clarity +
		weightBrevity*s.Brevity
}

// NeutralScores is the degraded fallback: 0.70 in every dimension.
func NeutralScores() Scores {
	return Scores{
		Relevance:    fallbackScore,
		Correctness:  fallbackScore,
		Completeness: fallbackScore,
		Clarity:      fallbackScore,
		Brevity:      fallbackScore,
	}
}

const judgePrompt = `You are a strict quality judge. Rate the answer to the question below.
Respond with a JSON object containing exactly these keys, each a number from 0 to 1:
"relevance", "correctness", "completeness", "clarity", "brevity".

Question:
%s

Answer:
%s`

var judgeTemperature = 0.1

// Judge runs one judge call against an engine and reduces the result.
type Judge struct {
	MaxTokens int
}

// Result is one judging outcome. Degraded is true when the neutral fallback
// was used because the judge call failed or its reply was unparsable.
type Result struct {
	Score    float64
	Scores   Scores
	Degraded bool
}

// Score evaluates a candidate answer. It never returns an error: a quality
// gate must not hard-fail the pipeline it gates, so every failure path yields
// the neutral fallback and is logged as degraded.
func (j Judge) Score(ctx context.Context, eng engine.CompletionEngine, question, answer string) Result {
	maxTokens := j.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}

	resp, err := eng.Complete(ctx, types.CompletionRequest{
		Messages: []types.Message{
			{Role: types.RoleUser, Content: fmt.Sprintf(judgePrompt, question, answer)},
		},
		Temperature: &judgeTemperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		slog.Warn("rubric judge call failed, using neutral fallback",
			"engine_id", eng.ID(), "error", err)
		return degraded()
	}

	scores, ok := parseScores(resp.Text)
	if !ok {
		slog.Warn("rubric judge reply unparsable, using neutral fallback",
			"engine_id", eng.ID(), "reply_len", len(resp.Text))
		return degraded()
	}

	return Result{Score: ScoreOf(scores), Scores: scores}
}

func degraded() Result {
	s := NeutralScores()
	return Result{Score: ScoreOf(s), Scores: s, Degraded: true}
}

// parseScores extracts the first balanced JSON object from free text and
// unmarshals it. The judge often wraps its JSON in prose.
func parseScores(text string) (Scores, bool) {
	raw, ok := firstJSONObject(text)
	if !ok {
		return Scores{}, false
	}
	var s Scores
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Scores{}, false
	}
	return clamp(s), true
}

// firstJSONObject scans for the first balanced {...} span, skipping braces
// inside string literals.
func firstJSONObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func clamp(s Scores) Scores {
	s.Relevance = clamp01(s.Relevance)
	s.Correctness = clamp01(s.Correctness)
	s.Completeness = clamp01(s.Completeness)
	s.Clarity = clamp01(s.Clarity)
	s.Brevity = clamp01(s.Brevity)
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
