package engine

import (
	"sort"

	"leakwatch/internal/core"
)

// BuildReport sorts and sums classified leaks into the final report. It does
// no filtering; callers that want a subset filter before building.
//
// Order is estimated saving descending, probability descending, then pattern
// key ascending so any permutation of the same leak set produces the same
// report.
func BuildReport(leaks []core.Leak) core.Report {
	sorted := make([]core.Leak, len(leaks))
	copy(sorted, leaks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].EstimatedAnnualSaving.Cents != sorted[j].EstimatedAnnualSaving.Cents {
			return sorted[i].EstimatedAnnualSaving.Cents > sorted[j].EstimatedAnnualSaving.Cents
		}
		if sorted[i].Probability != sorted[j].Probability {
			return sorted[i].Probability > sorted[j].Probability
		}
		return sorted[i].PatternKey < sorted[j].PatternKey
	})

	var totalCents int64
	var probabilitySum float64
	for _, l := range sorted {
		totalCents += l.EstimatedAnnualSaving.Cents
		probabilitySum += l.Probability
	}

	confidence := core.ConfidenceLow
	if len(sorted) > 0 {
		switch meanProbability := probabilitySum / float64(len(sorted)); {
		case meanProbability >= 0.8:
			confidence = core.ConfidenceHigh
		case meanProbability >= 0.5:
			confidence = core.ConfidenceMedium
		}
	}

	return core.Report{
		Leaks:                      sorted,
		TotalEstimatedAnnualSaving: core.Money{Cents: totalCents},
		ConfidenceLevel:            confidence,
	}
}
