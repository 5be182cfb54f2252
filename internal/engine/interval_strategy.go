// This file implements the Strategy Pattern for canonical billing-interval
// matching. Each cadence (weekly, monthly, yearly) has its own matcher that
// encapsulates the tolerance check against a pattern's mean gap.

package engine

import "math"

// Cadence names a canonical billing interval.
type Cadence string

const (
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
)

// IntervalMatcher is the strategy interface for recognizing a canonical
// billing cadence from a mean inter-transaction gap.
type IntervalMatcher interface {
	// Days returns the canonical interval length.
	Days() float64
	// Matches reports whether the observed mean gap falls inside the
	// tolerance band around the canonical interval.
	Matches(gapMeanDays, tolerancePct, toleranceDays float64) bool
}

type fixedIntervalMatcher struct {
	days float64
}

func (m fixedIntervalMatcher) Days() float64 { return m.days }

// Matches uses the wider of the relative and absolute tolerance, so short
// intervals keep a usable band and long ones do not balloon.
func (m fixedIntervalMatcher) Matches(gapMeanDays, tolerancePct, toleranceDays float64) bool {
	if gapMeanDays <= 0 {
		return false
	}
	band := math.Max(m.days*tolerancePct, toleranceDays)
	return math.Abs(gapMeanDays-m.days) <= band
}

// WeeklyMatcher matches a ~7 day cadence.
func WeeklyMatcher() IntervalMatcher { return fixedIntervalMatcher{days: 7} }

// MonthlyMatcher matches a ~30 day cadence.
func MonthlyMatcher() IntervalMatcher { return fixedIntervalMatcher{days: 30} }

// YearlyMatcher matches a ~365 day cadence.
func YearlyMatcher() IntervalMatcher { return fixedIntervalMatcher{days: 365} }

// intervalMatchers maps cadences to their matchers, evaluated shortest
// interval first so an ambiguous gap resolves to the tighter cadence.
var intervalMatchers = []struct {
	cadence Cadence
	matcher IntervalMatcher
}{
	{CadenceWeekly, WeeklyMatcher()},
	{CadenceMonthly, MonthlyMatcher()},
	{CadenceYearly, YearlyMatcher()},
}

// MatchCanonicalInterval returns the first cadence whose tolerance band
// contains the mean gap.
func MatchCanonicalInterval(gapMeanDays, tolerancePct, toleranceDays float64) (Cadence, bool) {
	for _, entry := range intervalMatchers {
		if entry.matcher.Matches(gapMeanDays, tolerancePct, toleranceDays) {
			return entry.cadence, true
		}
	}
	return "", false
}
