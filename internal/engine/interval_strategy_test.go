package engine

import "testing"

func TestMatchCanonicalInterval(t *testing.T) {
	tests := []struct {
		name        string
		gapMeanDays float64
		wantCadence Cadence
		wantMatch   bool
	}{
		{"exact weekly", 7, CadenceWeekly, true},
		{"weekly inside absolute band", 9.5, CadenceWeekly, true},
		{"weekly outside band", 11, "", false},
		{"exact monthly", 30, CadenceMonthly, true},
		{"calendar month drift", 30.44, CadenceMonthly, true},
		{"monthly upper edge", 34.5, CadenceMonthly, true},
		{"between monthly and yearly", 120, "", false},
		{"exact yearly", 365, CadenceYearly, true},
		{"yearly inside relative band", 400, CadenceYearly, true},
		{"yearly outside band", 450, "", false},
		{"zero gap", 0, "", false},
		{"negative gap", -5, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cadence, ok := MatchCanonicalInterval(tt.gapMeanDays, 0.15, 3)
			if ok != tt.wantMatch {
				t.Fatalf("match = %v, want %v", ok, tt.wantMatch)
			}
			if cadence != tt.wantCadence {
				t.Errorf("cadence = %q, want %q", cadence, tt.wantCadence)
			}
		})
	}
}

func TestIntervalMatcherDays(t *testing.T) {
	if d := WeeklyMatcher().Days(); d != 7 {
		t.Errorf("weekly days = %f, want 7", d)
	}
	if d := MonthlyMatcher().Days(); d != 30 {
		t.Errorf("monthly days = %f, want 30", d)
	}
	if d := YearlyMatcher().Days(); d != 365 {
		t.Errorf("yearly days = %f, want 365", d)
	}
}
