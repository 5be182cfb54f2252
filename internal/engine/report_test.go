package engine

import (
	"math/rand"
	"reflect"
	"testing"

	"leakwatch/internal/core"
)

func leakFixture(key string, probability float64, savingCents int64) core.Leak {
	return core.Leak{
		PatternKey:            core.PatternKey(key),
		Category:              core.LeakSubscription,
		Probability:           probability,
		EstimatedAnnualSaving: core.Money{Cents: savingCents},
	}
}

func TestBuildReportOrdering(t *testing.T) {
	leaks := []core.Leak{
		leakFixture("CHEAP", 0.9, 1000),
		leakFixture("BIG", 0.6, 50000),
		leakFixture("TIE-B", 0.8, 20000),
		leakFixture("TIE-A", 0.8, 20000),
		leakFixture("TIE-HIGHER-PROB", 0.95, 20000),
	}

	report := BuildReport(leaks)

	var gotKeys []core.PatternKey
	for _, l := range report.Leaks {
		gotKeys = append(gotKeys, l.PatternKey)
	}
	wantKeys := []core.PatternKey{"BIG", "TIE-HIGHER-PROB", "TIE-A", "TIE-B", "CHEAP"}
	if !reflect.DeepEqual(gotKeys, wantKeys) {
		t.Errorf("order = %v, want %v", gotKeys, wantKeys)
	}
	if report.TotalEstimatedAnnualSaving.Cents != 111000 {
		t.Errorf("total = %d, want 111000", report.TotalEstimatedAnnualSaving.Cents)
	}
}

func TestBuildReportPermutationStable(t *testing.T) {
	leaks := []core.Leak{
		leakFixture("A", 0.5, 100),
		leakFixture("B", 0.5, 100),
		leakFixture("C", 0.7, 300),
		leakFixture("D", 0.9, 300),
		leakFixture("E", 0.4, 50),
	}
	first := BuildReport(leaks)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := make([]core.Leak, len(leaks))
		copy(shuffled, leaks)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if got := BuildReport(shuffled); !reflect.DeepEqual(got, first) {
			t.Fatalf("report differs for permutation %d", i)
		}
	}
}

func TestBuildReportConfidence(t *testing.T) {
	tests := []struct {
		name          string
		probabilities []float64
		want          core.ConfidenceLevel
	}{
		{"empty", nil, core.ConfidenceLow},
		{"high", []float64{0.9, 0.85}, core.ConfidenceHigh},
		{"boundary high", []float64{0.8}, core.ConfidenceHigh},
		{"medium", []float64{0.9, 0.4}, core.ConfidenceMedium},
		{"boundary medium", []float64{0.5}, core.ConfidenceMedium},
		{"low", []float64{0.45, 0.3}, core.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var leaks []core.Leak
			for i, p := range tt.probabilities {
				leaks = append(leaks, leakFixture(string(rune('A'+i)), p, 1000))
			}
			report := BuildReport(leaks)
			if report.ConfidenceLevel != tt.want {
				t.Errorf("confidence = %q, want %q", report.ConfidenceLevel, tt.want)
			}
		})
	}
}

func TestBuildReportEmpty(t *testing.T) {
	report := BuildReport(nil)
	if len(report.Leaks) != 0 {
		t.Errorf("leaks = %d, want 0", len(report.Leaks))
	}
	if report.TotalEstimatedAnnualSaving.Cents != 0 {
		t.Errorf("total = %d, want 0", report.TotalEstimatedAnnualSaving.Cents)
	}
	if report.ConfidenceLevel != core.ConfidenceLow {
		t.Errorf("confidence = %q, want low", report.ConfidenceLevel)
	}
}

func TestBuildReportDoesNotMutateInput(t *testing.T) {
	leaks := []core.Leak{
		leakFixture("A", 0.5, 100),
		leakFixture("B", 0.9, 900),
	}
	BuildReport(leaks)
	if leaks[0].PatternKey != "A" || leaks[1].PatternKey != "B" {
		t.Error("input slice was reordered")
	}
}
