package pricing

import "testing"

func TestCost_ZeroUsage(t *testing.T) {
	r := Rates{InputCentsPerMTok: 300, OutputCentsPerMTok: 1500}
	if got := Cost(r, 0, 0); got != 0 {
		t.Errorf("expected 0 for zero usage, got %d", got)
	}
}

func TestCost_RoundsUp(t *testing.T) {
	// 1 token at 300 cents/MTok is a fraction of a cent; must round to 1.
	r := Rates{InputCentsPerMTok: 300, OutputCentsPerMTok: 1500}
	if got := Cost(r, 1, 0); got != 1 {
		t.Errorf("expected 1 cent, got %d", got)
	}
}

func TestCost_ExactMillion(t *testing.T) {
	r := Rates{InputCentsPerMTok: 300, OutputCentsPerMTok: 1500}
	if got := Cost(r, 1_000_000, 1_000_000); got != 1800 {
		t.Errorf("expected 1800 cents, got %d", got)
	}
}

func TestCost_Monotonic(t *testing.T) {
	r := Rates{InputCentsPerMTok: 25, OutputCentsPerMTok: 125}
	prev := int64(-1)
	for _, tokens := range []int{0, 1, 100, 10_000, 500_000, 2_000_000} {
		got := Cost(r, tokens, tokens)
		if got < 0 {
			t.Errorf("cost must be non-negative, got %d for %d tokens", got, tokens)
		}
		if got < prev {
			t.Errorf("cost must be non-decreasing: %d tokens gave %d after %d", tokens, got, prev)
		}
		prev = got
	}
}
