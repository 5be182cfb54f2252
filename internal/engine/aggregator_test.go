package engine

import (
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"leakwatch/internal/core"
)

func expense(id, merchant string, date time.Time, cents int64) core.Transaction {
	return core.Transaction{
		ID:           id,
		UserID:       "u1",
		Date:         date,
		AmountCents:  -cents,
		MerchantHint: merchant,
		Tags: core.CategoryTags{
			Level1:           "EXPENSE",
			Level2:           "Lifestyle",
			Level3:           "Subscriptions",
			Level3Confidence: 0.9,
		},
	}
}

func monthlySeries(merchant string, day int, months int, cents func(i int) int64) []core.Transaction {
	txns := make([]core.Transaction, 0, months)
	for i := 0; i < months; i++ {
		date := core.NewDate(2025, 1+i, day)
		txns = append(txns, expense(fmt.Sprintf("%s-%02d", merchant, i), merchant, date, cents(i)))
	}
	return txns
}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestAggregateSkipCounts(t *testing.T) {
	asOf := core.NewDate(2025, 6, 1)
	txns := []core.Transaction{
		expense("t1", "NETFLIX", core.NewDate(2025, 1, 5), 9900),
		expense("t2", "NETFLIX", core.NewDate(2025, 2, 5), 9900),
		// refund, positive amount
		{ID: "t3", UserID: "u1", Date: core.NewDate(2025, 2, 10), AmountCents: 9900, MerchantHint: "NETFLIX"},
		// posted after the as-of date
		expense("t4", "NETFLIX", core.NewDate(2025, 7, 5), 9900),
		// missing merchant hint
		{ID: "t5", UserID: "u1", Date: core.NewDate(2025, 3, 5), AmountCents: -9900},
		// zero amount
		{ID: "t6", UserID: "u1", Date: core.NewDate(2025, 3, 6), AmountCents: 0, MerchantHint: "NETFLIX"},
	}

	patterns, skipped := Aggregate(txns, asOf)

	if skipped.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", skipped.Malformed)
	}
	if skipped.FutureDated != 1 {
		t.Errorf("FutureDated = %d, want 1", skipped.FutureDated)
	}
	if skipped.Inflows != 1 {
		t.Errorf("Inflows = %d, want 1", skipped.Inflows)
	}
	if skipped.Total() != 4 {
		t.Errorf("Total = %d, want 4", skipped.Total())
	}
	if len(patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(patterns))
	}
	if patterns[0].Evidence.TxnCount != 2 {
		t.Errorf("TxnCount = %d, want 2", patterns[0].Evidence.TxnCount)
	}
}

func TestAggregateGroupsByMerchant(t *testing.T) {
	asOf := core.NewDate(2025, 12, 31)
	txns := []core.Transaction{
		expense("a1", "SPOTIFY", core.NewDate(2025, 3, 1), 1099),
		expense("b1", "NETFLIX", core.NewDate(2025, 3, 2), 9900),
		expense("a2", "SPOTIFY", core.NewDate(2025, 4, 1), 1099),
	}

	patterns, _ := Aggregate(txns, asOf)

	if len(patterns) != 2 {
		t.Fatalf("patterns = %d, want 2", len(patterns))
	}
	// Merchant order is ascending.
	if patterns[0].Key != "NETFLIX" || patterns[1].Key != "SPOTIFY" {
		t.Errorf("keys = %q, %q; want NETFLIX, SPOTIFY", patterns[0].Key, patterns[1].Key)
	}
	if got := len(patterns[1].Transactions); got != 2 {
		t.Errorf("SPOTIFY transactions = %d, want 2", got)
	}
}

func TestAggregateEvidenceStats(t *testing.T) {
	asOf := core.NewDate(2026, 1, 5)
	txns := monthlySeries("NETFLIX", 5, 12, func(int) int64 { return 9900 })

	patterns, _ := Aggregate(txns, asOf)
	if len(patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(patterns))
	}
	ev := patterns[0].Evidence

	if ev.TxnCount != 12 {
		t.Errorf("TxnCount = %d, want 12", ev.TxnCount)
	}
	if ev.TotalCents != 12*9900 {
		t.Errorf("TotalCents = %d, want %d", ev.TotalCents, 12*9900)
	}
	if ev.AvgCents != 9900 {
		t.Errorf("AvgCents = %f, want 9900", ev.AvgCents)
	}
	if ev.AmountStdCents != 0 {
		t.Errorf("AmountStdCents = %f, want 0", ev.AmountStdCents)
	}
	if ev.MinCents != 9900 || ev.MaxCents != 9900 {
		t.Errorf("Min/Max = %d/%d, want 9900/9900", ev.MinCents, ev.MaxCents)
	}
	if ev.FirstAmountCents != 9900 || ev.LastAmountCents != 9900 {
		t.Errorf("First/Last = %d/%d, want 9900/9900", ev.FirstAmountCents, ev.LastAmountCents)
	}
	// Jan 5 to Dec 5 2025 spans 334 days, eleven gaps.
	if ev.SpanDays != 334 {
		t.Errorf("SpanDays = %f, want 334", ev.SpanDays)
	}
	if !almostEqual(ev.GapMeanDays, 334.0/11, 1e-9) {
		t.Errorf("GapMeanDays = %f, want %f", ev.GapMeanDays, 334.0/11)
	}
	if ev.GapMinDays != 28 || ev.GapMaxDays != 31 {
		t.Errorf("GapMin/Max = %f/%f, want 28/31", ev.GapMinDays, ev.GapMaxDays)
	}
	if !almostEqual(ev.GapStdDays, 0.9244, 1e-3) {
		t.Errorf("GapStdDays = %f, want ~0.9244", ev.GapStdDays)
	}
	// Dec 5 2025 to Jan 5 2026.
	if ev.RecencyDays != 31 {
		t.Errorf("RecencyDays = %f, want 31", ev.RecencyDays)
	}
	if ev.ModalTags.Level3 != "Subscriptions" {
		t.Errorf("modal level 3 = %q, want Subscriptions", ev.ModalTags.Level3)
	}
	if !almostEqual(ev.Level3Confidence, 0.9, 1e-9) {
		t.Errorf("Level3Confidence = %f, want 0.9", ev.Level3Confidence)
	}
}

func TestAggregateGapStdZeroBelowThreeTxns(t *testing.T) {
	asOf := core.NewDate(2025, 12, 31)
	txns := []core.Transaction{
		expense("t1", "GYM", core.NewDate(2025, 1, 1), 3000),
		expense("t2", "GYM", core.NewDate(2025, 2, 1), 3000),
	}

	patterns, _ := Aggregate(txns, asOf)
	ev := patterns[0].Evidence

	if ev.GapMeanDays != 31 {
		t.Errorf("GapMeanDays = %f, want 31", ev.GapMeanDays)
	}
	if ev.GapStdDays != 0 {
		t.Errorf("GapStdDays = %f, want 0", ev.GapStdDays)
	}
}

func TestAggregateModalTagsTieBreak(t *testing.T) {
	asOf := core.NewDate(2025, 12, 31)
	a := expense("t1", "CAFE", core.NewDate(2025, 1, 1), 400)
	a.Tags.Level3 = "Coffee"
	b := expense("t2", "CAFE", core.NewDate(2025, 1, 2), 400)
	b.Tags.Level3 = "Bakery"

	patterns, _ := Aggregate([]core.Transaction{a, b}, asOf)

	if got := patterns[0].Evidence.ModalTags.Level3; got != "Bakery" {
		t.Errorf("modal level 3 = %q, want Bakery (smallest on tie)", got)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	asOf := core.NewDate(2025, 12, 31)
	merchants := []string{"NETFLIX", "SPOTIFY", "SWIGGY", "UBER", "GYM"}
	rng := rand.New(rand.NewSource(42))

	var txns []core.Transaction
	for i := 0; i < 200; i++ {
		m := merchants[rng.Intn(len(merchants))]
		date := core.NewDate(2025, 1+rng.Intn(12), 1+rng.Intn(28))
		txns = append(txns, expense(fmt.Sprintf("t%03d", i), m, date, int64(100+rng.Intn(10000))))
	}

	first, firstSkipped := Aggregate(txns, asOf)

	shuffled := make([]core.Transaction, len(txns))
	copy(shuffled, txns)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	second, secondSkipped := Aggregate(shuffled, asOf)

	if !reflect.DeepEqual(first, second) {
		t.Error("aggregation differs across input permutations")
	}
	if firstSkipped != secondSkipped {
		t.Errorf("skip counts differ: %+v vs %+v", firstSkipped, secondSkipped)
	}
}
