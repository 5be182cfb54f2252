package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"leakwatch/internal/core"
)

type stubExplainer struct {
	mu    sync.Mutex
	calls int
	fail  map[core.PatternKey]bool
}

func (s *stubExplainer) Explain(_ context.Context, p core.Pattern, _ core.Leak) (string, string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fail[p.Key] {
		return "", "", errors.New("model unavailable")
	}
	return "explained " + string(p.Key), "act on " + string(p.Key), nil
}

func analyzerFixtureTxns() []core.Transaction {
	txns := monthlySeries("NETFLIX", 5, 12, func(int) int64 { return 9900 })
	txns = append(txns, monthlySeries("SPOTIFY", 10, 12, func(int) int64 { return 1099 })...)
	txns = append(txns,
		expense("a1", "AMAZON", core.NewDate(2025, 3, 1), 4000),
		expense("a2", "AMAZON", core.NewDate(2025, 3, 6), 6500),
		expense("a3", "AMAZON", core.NewDate(2025, 4, 22), 2000),
	)
	return txns
}

func TestAnalyzerEndToEnd(t *testing.T) {
	explainer := &stubExplainer{}
	analyzer := NewAnalyzer(NewClassifier(DefaultThresholds()), explainer, 4, nil)

	result, err := analyzer.Analyze(context.Background(), analyzerFixtureTxns(), core.NewDate(2026, 1, 5))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(result.Patterns) != 3 {
		t.Fatalf("patterns = %d, want 3", len(result.Patterns))
	}
	if len(result.Report.Leaks) != 3 {
		t.Fatalf("leaks = %d, want 3", len(result.Report.Leaks))
	}
	if explainer.calls != 3 {
		t.Errorf("explainer calls = %d, want 3", explainer.calls)
	}
	// Largest saving first: the 99.00 subscription dominates.
	if result.Report.Leaks[0].PatternKey != "NETFLIX" {
		t.Errorf("top leak = %q, want NETFLIX", result.Report.Leaks[0].PatternKey)
	}
	for _, leak := range result.Report.Leaks {
		if leak.Reasoning != "explained "+string(leak.PatternKey) {
			t.Errorf("%s: reasoning not replaced: %q", leak.PatternKey, leak.Reasoning)
		}
		if leak.ActionableStep != "act on "+string(leak.PatternKey) {
			t.Errorf("%s: step not replaced: %q", leak.PatternKey, leak.ActionableStep)
		}
	}
	var sum int64
	for _, leak := range result.Report.Leaks {
		sum += leak.EstimatedAnnualSaving.Cents
	}
	if result.Report.TotalEstimatedAnnualSaving.Cents != sum {
		t.Errorf("total = %d, want %d", result.Report.TotalEstimatedAnnualSaving.Cents, sum)
	}
}

func TestAnalyzerExplainerFailureKeepsLeak(t *testing.T) {
	explainer := &stubExplainer{fail: map[core.PatternKey]bool{"NETFLIX": true}}
	analyzer := NewAnalyzer(NewClassifier(DefaultThresholds()), explainer, 2, nil)

	result, err := analyzer.Analyze(context.Background(), analyzerFixtureTxns(), core.NewDate(2026, 1, 5))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Report.Leaks) != 3 {
		t.Fatalf("leaks = %d, want 3", len(result.Report.Leaks))
	}
	for _, leak := range result.Report.Leaks {
		if leak.PatternKey == "NETFLIX" {
			if leak.Reasoning == "" {
				t.Error("heuristic reasoning was dropped on explainer failure")
			}
			if leak.Reasoning == "explained NETFLIX" {
				t.Error("failed explainer output was applied")
			}
			continue
		}
		if leak.Reasoning != "explained "+string(leak.PatternKey) {
			t.Errorf("%s: reasoning not replaced: %q", leak.PatternKey, leak.Reasoning)
		}
	}
}

func TestAnalyzerNilExplainer(t *testing.T) {
	analyzer := NewAnalyzer(NewClassifier(DefaultThresholds()), nil, 0, nil)

	result, err := analyzer.Analyze(context.Background(), analyzerFixtureTxns(), core.NewDate(2026, 1, 5))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, leak := range result.Report.Leaks {
		if leak.Reasoning == "" || leak.ActionableStep == "" {
			t.Errorf("%s: missing heuristic text", leak.PatternKey)
		}
	}
}

func TestAnalyzerEmptyInput(t *testing.T) {
	analyzer := NewAnalyzer(NewClassifier(DefaultThresholds()), nil, 1, nil)

	result, err := analyzer.Analyze(context.Background(), nil, core.NewDate(2025, 1, 1))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Report.Leaks) != 0 {
		t.Errorf("leaks = %d, want 0", len(result.Report.Leaks))
	}
	if result.Report.ConfidenceLevel != core.ConfidenceLow {
		t.Errorf("confidence = %q, want low", result.Report.ConfidenceLevel)
	}
}

func TestAnalyzerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analyzer := NewAnalyzer(NewClassifier(DefaultThresholds()), nil, 1, nil)
	if _, err := analyzer.Analyze(ctx, analyzerFixtureTxns(), core.NewDate(2026, 1, 5)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
