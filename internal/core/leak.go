package core

import "fmt"

// LeakCategory is the closed taxonomy of leak types. Free-form strings are
// rejected so downstream consumers never see an unrecognized category.
type LeakCategory string

const (
	LeakSubscription      LeakCategory = "subscription"
	LeakPriceCreep        LeakCategory = "price_creep"
	LeakSmallRecurring    LeakCategory = "small_recurring"
	LeakIrregularHabitual LeakCategory = "irregular_habitual"
)

// Categories lists the taxonomy in classifier priority order.
func Categories() []LeakCategory {
	return []LeakCategory{LeakSubscription, LeakPriceCreep, LeakSmallRecurring, LeakIrregularHabitual}
}

func (c LeakCategory) IsValid() bool {
	switch c {
	case LeakSubscription, LeakPriceCreep, LeakSmallRecurring, LeakIrregularHabitual:
		return true
	}
	return false
}

func (c LeakCategory) String() string {
	return string(c)
}

// Leak is a classified, probability-scored instance of recurring or habitual
// spend derived from one pattern.
type Leak struct {
	PatternKey  PatternKey
	Category    LeakCategory
	Probability float64
	// EstimatedAnnualSaving is non-negative by construction.
	EstimatedAnnualSaving Money
	// Reasoning and ActionableStep start as heuristic text from the
	// classifier; a reasoner may replace them with richer wording.
	// Classification never depends on them.
	Reasoning      string
	ActionableStep string
}

func (l Leak) Validate() error {
	if !l.Category.IsValid() {
		return fmt.Errorf("unknown leak category %q", l.Category)
	}
	if l.Probability < 0 || l.Probability > 1 {
		return fmt.Errorf("leak probability %f out of range", l.Probability)
	}
	if l.EstimatedAnnualSaving.Cents < 0 {
		return fmt.Errorf("negative estimated saving %d", l.EstimatedAnnualSaving.Cents)
	}
	return nil
}

// ConfidenceLevel is the coarse report-level signal for the UI.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Report is the final engine output: leaks sorted by estimated saving
// descending, their exact sum, and a derived confidence level.
type Report struct {
	Leaks                      []Leak
	TotalEstimatedAnnualSaving Money
	ConfidenceLevel            ConfidenceLevel
}
