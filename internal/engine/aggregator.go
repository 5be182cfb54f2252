// Package engine implements the transaction pattern aggregation and leak
// classification core. It is a pure, synchronous computation over an
// in-memory transaction set: no I/O, no shared state, safe to invoke
// concurrently for different users.
package engine

import (
	"math"
	"sort"
	"time"

	"leakwatch/internal/core"
)

// SkipCounts reports records excluded from aggregation, surfaced to the
// caller instead of aborting the run.
type SkipCounts struct {
	// Malformed records are missing a date, amount or merchant hint.
	Malformed int
	// FutureDated records post after the as-of date and are ignored.
	FutureDated int
	// Inflows are deposits and refunds, excluded from leak evidence.
	Inflows int
}

// Total returns the number of records excluded for any reason.
func (s SkipCounts) Total() int {
	return s.Malformed + s.FutureDated + s.Inflows
}

// Aggregate groups a single user's transactions into merchant-level patterns
// and computes the statistical evidence for each. Output is deterministic for
// a fixed input and as-of date: groups are emitted in merchant order and
// transactions are sorted by date ascending with the id as tie-break.
func Aggregate(txns []core.Transaction, asOf time.Time) ([]core.Pattern, SkipCounts) {
	var skipped SkipCounts
	groups := make(map[core.PatternKey][]core.Transaction)

	for _, t := range txns {
		if err := t.Validate(); err != nil {
			skipped.Malformed++
			continue
		}
		if t.Date.After(asOf) {
			skipped.FutureDated++
			continue
		}
		if !t.IsExpense() {
			skipped.Inflows++
			continue
		}
		key := core.PatternKey(t.MerchantHint)
		groups[key] = append(groups[key], t)
	}

	keys := make([]core.PatternKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	patterns := make([]core.Pattern, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		sort.Slice(group, func(i, j int) bool {
			if !group[i].Date.Equal(group[j].Date) {
				return group[i].Date.Before(group[j].Date)
			}
			return group[i].ID < group[j].ID
		})
		patterns = append(patterns, core.Pattern{
			Key:          key,
			Transactions: group,
			Evidence:     computeEvidence(group, asOf),
		})
	}
	return patterns, skipped
}

func computeEvidence(group []core.Transaction, asOf time.Time) core.Evidence {
	if len(group) == 0 {
		panic("engine: computeEvidence on empty group")
	}

	ev := core.Evidence{TxnCount: len(group)}

	amounts := make([]float64, len(group))
	for i, t := range group {
		cents := t.Magnitude().Cents
		amounts[i] = float64(cents)
		ev.TotalCents += cents
		if i == 0 || cents < ev.MinCents {
			ev.MinCents = cents
		}
		if cents > ev.MaxCents {
			ev.MaxCents = cents
		}
		ev.Level3Confidence += t.Tags.Level3Confidence
	}
	ev.FirstAmountCents = group[0].Magnitude().Cents
	ev.LastAmountCents = group[len(group)-1].Magnitude().Cents
	ev.AvgCents = mean(amounts)
	ev.AmountStdCents = sampleStd(amounts)
	ev.Level3Confidence /= float64(len(group))
	ev.ModalTags = modalTags(group)

	first := group[0].Date
	last := group[len(group)-1].Date
	ev.SpanDays = daysBetween(first, last)
	ev.RecencyDays = daysBetween(last, asOf)

	if len(group) >= 2 {
		gaps := make([]float64, 0, len(group)-1)
		for i := 1; i < len(group); i++ {
			gaps = append(gaps, daysBetween(group[i-1].Date, group[i].Date))
		}
		ev.GapMeanDays = mean(gaps)
		ev.GapMinDays = gaps[0]
		ev.GapMaxDays = gaps[0]
		for _, g := range gaps {
			if g < ev.GapMinDays {
				ev.GapMinDays = g
			}
			if g > ev.GapMaxDays {
				ev.GapMaxDays = g
			}
		}
		// Sample variance is degenerate below three observations.
		if len(group) >= 3 {
			ev.GapStdDays = sampleStd(gaps)
		}
	}
	return ev
}

// modalTags picks the most frequent tag per level, smallest value first on
// ties so the result does not depend on map order.
func modalTags(group []core.Transaction) core.CategoryTags {
	return core.CategoryTags{
		Level1: modal(group, func(t core.Transaction) string { return t.Tags.Level1 }),
		Level2: modal(group, func(t core.Transaction) string { return t.Tags.Level2 }),
		Level3: modal(group, func(t core.Transaction) string { return t.Tags.Level3 }),
	}
}

func modal(group []core.Transaction, tag func(core.Transaction) string) string {
	counts := make(map[string]int)
	for _, t := range group {
		counts[tag(t)]++
	}
	best := ""
	bestCount := -1
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best = v
			bestCount = n
		}
	}
	if best == "" {
		return core.TagUnknown
	}
	return best
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd returns the sample standard deviation (ddof=1), zero for fewer
// than two values.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
