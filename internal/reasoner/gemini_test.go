package reasoner

import (
	"context"
	"strings"
	"testing"

	"leakwatch/internal/core"
)

func TestBuildExplainPrompt(t *testing.T) {
	pattern := core.Pattern{
		Key: "NETFLIX",
		Evidence: core.Evidence{
			TxnCount:         12,
			AvgCents:         9900,
			FirstAmountCents: 9900,
			LastAmountCents:  9900,
			GapMeanDays:      30.4,
			SpanDays:         334,
			RecencyDays:      12,
			ModalTags: core.CategoryTags{
				Level1: "EXPENSE",
				Level2: "Lifestyle",
				Level3: "Subscriptions",
			},
		},
	}
	leak := core.Leak{
		PatternKey:            "NETFLIX",
		Category:              core.LeakSubscription,
		Probability:           0.95,
		EstimatedAnnualSaving: core.Money{Cents: 119007},
	}

	prompt := buildExplainPrompt(pattern, leak)

	for _, want := range []string{
		"merchant: NETFLIX",
		"category: subscription",
		"probability: 0.95",
		"estimated_annual_saving: 1190.07",
		"transaction_count: 12",
		"mean_gap_days: 30.4",
		"EXPENSE > Lifestyle > Subscriptions",
		"STRICT JSON",
		`{"reasoning": "...", "actionable_step": "..."}`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "narration") {
		t.Error("prompt must not reference raw narrations")
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"reasoning":"r","actionable_step":"a"}`, `{"reasoning":"r","actionable_step":"a"}`},
		{"fenced", "```json\n{\"reasoning\":\"r\"}\n```", `{"reasoning":"r"}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNoopReasoner(t *testing.T) {
	reasoning, step, err := Noop{}.Explain(context.Background(), core.Pattern{}, core.Leak{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reasoning != "" || step != "" {
		t.Errorf("Noop returned %q, %q; want empty", reasoning, step)
	}
}
