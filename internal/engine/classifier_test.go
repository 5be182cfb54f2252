package engine

import (
	"fmt"
	"testing"
	"time"

	"leakwatch/internal/core"
)

func classifyMerchant(t *testing.T, txns []core.Transaction, asOf time.Time, merchant string) (core.Leak, bool) {
	t.Helper()
	patterns, _ := Aggregate(txns, asOf)
	for _, p := range patterns {
		if string(p.Key) == merchant {
			return NewClassifier(DefaultThresholds()).Classify(p)
		}
	}
	t.Fatalf("no pattern for merchant %q", merchant)
	return core.Leak{}, false
}

func TestClassifySteadyMonthlySubscription(t *testing.T) {
	// Twelve identical 99.00 charges on the 5th of every month.
	txns := monthlySeries("NETFLIX", 5, 12, func(int) int64 { return 9900 })

	leak, ok := classifyMerchant(t, txns, core.NewDate(2026, 1, 5), "NETFLIX")
	if !ok {
		t.Fatal("expected a leak")
	}
	if leak.Category != core.LeakSubscription {
		t.Fatalf("category = %q, want subscription", leak.Category)
	}
	if leak.Probability < 0.9 {
		t.Errorf("probability = %f, want >= 0.9", leak.Probability)
	}
	// 9900 * 365 / (334/11) rounds to 119007.
	if leak.EstimatedAnnualSaving.Cents != 119007 {
		t.Errorf("saving = %d, want 119007", leak.EstimatedAnnualSaving.Cents)
	}
	if leak.Reasoning == "" || leak.ActionableStep == "" {
		t.Error("expected heuristic reasoning and actionable step")
	}
	if err := leak.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestClassifyPriceCreepOutranksSubscription(t *testing.T) {
	// Monthly charges stepping 99.00 -> 109.00 -> 119.00. The overall
	// amount variance stays low, so only the trend check can catch this.
	txns := monthlySeries("HOTSTAR", 1, 12, func(i int) int64 {
		switch {
		case i < 4:
			return 9900
		case i < 8:
			return 10900
		default:
			return 11900
		}
	})

	leak, ok := classifyMerchant(t, txns, core.NewDate(2026, 1, 1), "HOTSTAR")
	if !ok {
		t.Fatal("expected a leak")
	}
	if leak.Category != core.LeakPriceCreep {
		t.Fatalf("category = %q, want price_creep", leak.Category)
	}
	if leak.Probability < 0.7 {
		t.Errorf("probability = %f, want >= 0.7", leak.Probability)
	}
	// The recoverable delta is 20.00 per cycle: 2000 * 365 / (334/11).
	if leak.EstimatedAnnualSaving.Cents != 24042 {
		t.Errorf("saving = %d, want 24042", leak.EstimatedAnnualSaving.Cents)
	}
}

func TestClassifySmallRecurring(t *testing.T) {
	// Twenty small orders every three days, amounts alternating 3.00/5.00.
	var txns []core.Transaction
	start := core.NewDate(2025, 6, 1)
	for i := 0; i < 20; i++ {
		cents := int64(300)
		if i%2 == 1 {
			cents = 500
		}
		txns = append(txns, expense(fmt.Sprintf("s%02d", i), "SWIGGY", start.AddDate(0, 0, 3*i), cents))
	}

	leak, ok := classifyMerchant(t, txns, core.NewDate(2025, 8, 1), "SWIGGY")
	if !ok {
		t.Fatal("expected a leak")
	}
	if leak.Category != core.LeakSmallRecurring {
		t.Fatalf("category = %q, want small_recurring", leak.Category)
	}
	if leak.Probability != 0.9 {
		t.Errorf("probability = %f, want 0.9 (capped)", leak.Probability)
	}
	// avg 400 cents projected over 20/57 txns per day for a year.
	if leak.EstimatedAnnualSaving.Cents != 51228 {
		t.Errorf("saving = %d, want 51228", leak.EstimatedAnnualSaving.Cents)
	}
}

func TestClassifyIrregularHabitual(t *testing.T) {
	// Three sizable purchases with wildly uneven gaps. The mean gap lands
	// near thirty days but the variance disqualifies a regular cadence.
	txns := []core.Transaction{
		expense("a1", "AMAZON", core.NewDate(2025, 3, 1), 4000),
		expense("a2", "AMAZON", core.NewDate(2025, 3, 6), 6500),
		expense("a3", "AMAZON", core.NewDate(2025, 4, 22), 2000),
	}

	leak, ok := classifyMerchant(t, txns, core.NewDate(2025, 5, 1), "AMAZON")
	if !ok {
		t.Fatal("expected a leak")
	}
	if leak.Category != core.LeakIrregularHabitual {
		t.Fatalf("category = %q, want irregular_habitual", leak.Category)
	}
	if leak.Probability != 0.45 {
		t.Errorf("probability = %f, want 0.45", leak.Probability)
	}
	// 12500 cents over 52 days, annualized and halved.
	if leak.EstimatedAnnualSaving.Cents != 43870 {
		t.Errorf("saving = %d, want 43870", leak.EstimatedAnnualSaving.Cents)
	}
}

func TestClassifyMinimumSignal(t *testing.T) {
	tests := []struct {
		name string
		txns []core.Transaction
	}{
		{
			name: "single transaction",
			txns: []core.Transaction{
				expense("t1", "MERCH", core.NewDate(2025, 1, 1), 50000),
			},
		},
		{
			name: "two transactions without cadence",
			txns: []core.Transaction{
				expense("t1", "MERCH", core.NewDate(2025, 1, 1), 50000),
				expense("t2", "MERCH", core.NewDate(2025, 1, 13), 12000),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if leak, ok := classifyMerchant(t, tt.txns, core.NewDate(2025, 6, 1), "MERCH"); ok {
				t.Errorf("unexpected leak %+v", leak)
			}
		})
	}
}

func TestClassifyTwoTxnSubscription(t *testing.T) {
	// Two identical charges exactly a month apart qualify as a tentative
	// subscription; every other category needs at least three.
	txns := []core.Transaction{
		expense("t1", "ICLOUD", core.NewDate(2025, 1, 10), 7500),
		expense("t2", "ICLOUD", core.NewDate(2025, 2, 10), 7500),
	}

	leak, ok := classifyMerchant(t, txns, core.NewDate(2025, 3, 1), "ICLOUD")
	if !ok {
		t.Fatal("expected a leak")
	}
	if leak.Category != core.LeakSubscription {
		t.Fatalf("category = %q, want subscription", leak.Category)
	}
}

func TestClassifyBelowMateriality(t *testing.T) {
	// Irregular spending under the materiality floor stays unflagged.
	txns := []core.Transaction{
		expense("t1", "KIOSK", core.NewDate(2025, 1, 1), 900),
		expense("t2", "KIOSK", core.NewDate(2025, 2, 14), 1200),
		expense("t3", "KIOSK", core.NewDate(2025, 4, 2), 800),
	}

	if leak, ok := classifyMerchant(t, txns, core.NewDate(2025, 6, 1), "KIOSK"); ok {
		t.Errorf("unexpected leak %+v", leak)
	}
}

func TestClassifyProbabilityAndSavingBounds(t *testing.T) {
	series := [][]core.Transaction{
		monthlySeries("NETFLIX", 5, 12, func(int) int64 { return 9900 }),
		monthlySeries("HOTSTAR", 1, 12, func(i int) int64 { return 9900 + int64(i)*200 }),
		{
			expense("a1", "AMAZON", core.NewDate(2025, 3, 1), 4000),
			expense("a2", "AMAZON", core.NewDate(2025, 3, 6), 6500),
			expense("a3", "AMAZON", core.NewDate(2025, 4, 22), 2000),
		},
	}
	classifier := NewClassifier(DefaultThresholds())
	for _, txns := range series {
		patterns, _ := Aggregate(txns, core.NewDate(2026, 2, 1))
		for _, p := range patterns {
			leak, ok := classifier.Classify(p)
			if !ok {
				continue
			}
			if leak.Probability < 0 || leak.Probability > 1 {
				t.Errorf("%s: probability %f out of range", p.Key, leak.Probability)
			}
			if leak.EstimatedAnnualSaving.Cents < 0 {
				t.Errorf("%s: negative saving %d", p.Key, leak.EstimatedAnnualSaving.Cents)
			}
		}
	}
}
