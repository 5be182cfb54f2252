package engine

import (
	"fmt"
	"math"

	"leakwatch/internal/core"
)

// Thresholds carries every numeric cutoff the classifier uses. Values come
// from configuration so product behavior can be tuned without code changes.
type Thresholds struct {
	// IntervalTolerancePct and IntervalToleranceDays bound the band around
	// a canonical interval; the wider of the two applies.
	IntervalTolerancePct  float64
	IntervalToleranceDays float64

	// MaxGapCV is the relative gap variance above which a cadence is no
	// longer considered regular.
	MaxGapCV float64
	// MaxAmountCV is the relative amount variance above which a recurring
	// charge is no longer considered constant.
	MaxAmountCV float64

	// PriceCreepMinRisePct is the minimum last-over-first amount rise that
	// flags an upward price trend.
	PriceCreepMinRisePct float64

	// SmallTicketMaxCents bounds the average amount of a small recurring
	// leak.
	SmallTicketMaxCents int64
	// HighFrequencyPer30Days is the monthly-normalized transaction rate a
	// small recurring leak must exceed.
	HighFrequencyPer30Days float64

	// MaterialityMinCents is the minimum total spend over the observed span
	// for irregular habitual spending to matter.
	MaterialityMinCents int64
	// IrregularSavingFactor scales the annualized total into a conservative
	// saving estimate.
	IrregularSavingFactor float64
}

// DefaultThresholds returns the product defaults. All of them are
// overridable through configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		IntervalTolerancePct:   0.15,
		IntervalToleranceDays:  3,
		MaxGapCV:               0.25,
		MaxAmountCV:            0.10,
		PriceCreepMinRisePct:   0.10,
		SmallTicketMaxCents:    500,
		HighFrequencyPer30Days: 8,
		MaterialityMinCents:    5000,
		IrregularSavingFactor:  0.5,
	}
}

// Classifier assigns a leak category, probability and annual saving estimate
// to patterns whose evidence crosses the minimum-signal threshold.
type Classifier struct {
	thresholds Thresholds
}

func NewClassifier(thresholds Thresholds) *Classifier {
	return &Classifier{thresholds: thresholds}
}

// Classify evaluates the taxonomy in priority order and returns the first
// qualifying leak. Strong periodic signals outrank generic habit signals:
// inside the periodic branch an upward price trend takes precedence over the
// constant-amount subscription check, otherwise a creeping charge would pass
// as a subscription while its variance is still low.
//
// Patterns with fewer than two transactions never yield a leak; with exactly
// two, only the subscription category can qualify.
func (c *Classifier) Classify(p core.Pattern) (core.Leak, bool) {
	ev := p.Evidence
	if ev.TxnCount < 0 {
		panic(fmt.Sprintf("engine: negative txn count %d for pattern %q", ev.TxnCount, p.Key))
	}
	if ev.TxnCount < 2 {
		return core.Leak{}, false
	}
	th := c.thresholds

	_, periodic := MatchCanonicalInterval(ev.GapMeanDays, th.IntervalTolerancePct, th.IntervalToleranceDays)
	if periodic && ev.GapCV() < th.MaxGapCV {
		if ev.TxnCount >= 3 && creepRisePct(ev) > th.PriceCreepMinRisePct {
			return c.priceCreepLeak(p), true
		}
		if ev.AmountCV() < th.MaxAmountCV {
			return c.subscriptionLeak(p), true
		}
	}
	if ev.TxnCount < 3 {
		return core.Leak{}, false
	}

	if monthlyRate(ev) > th.HighFrequencyPer30Days && int64(math.Round(ev.AvgCents)) <= th.SmallTicketMaxCents {
		return c.smallRecurringLeak(p), true
	}

	if ev.TotalCents >= th.MaterialityMinCents && ev.SpanDays > 0 {
		return c.irregularLeak(p), true
	}

	return core.Leak{}, false
}

func (c *Classifier) subscriptionLeak(p core.Pattern) core.Leak {
	ev := p.Evidence
	th := c.thresholds
	regularity := 1 - ev.GapCV()/th.MaxGapCV
	stability := 1 - ev.AmountCV()/th.MaxAmountCV
	countFactor := math.Min(1, float64(ev.TxnCount)/12)
	probability := clamp01(0.55 + 0.2*regularity + 0.1*stability + 0.14*countFactor)

	return core.Leak{
		PatternKey:            p.Key,
		Category:              core.LeakSubscription,
		Probability:           math.Min(probability, 0.99),
		EstimatedAnnualSaving: annualize(ev.AvgCents, ev.GapMeanDays),
		Reasoning: fmt.Sprintf("%d charges of about %s roughly every %.0f days at %q look like a recurring subscription.",
			ev.TxnCount, core.Money{Cents: int64(math.Round(ev.AvgCents))}, ev.GapMeanDays, string(p.Key)),
		ActionableStep: fmt.Sprintf("Review whether you still use %q and cancel the subscription if not.", string(p.Key)),
	}
}

func (c *Classifier) priceCreepLeak(p core.Pattern) core.Leak {
	ev := p.Evidence
	th := c.thresholds
	regularity := 1 - ev.GapCV()/th.MaxGapCV
	countFactor := math.Min(1, float64(ev.TxnCount)/12)
	trend := math.Min(1, creepRisePct(ev)/0.25)
	probability := clamp01(0.5 + 0.2*regularity + 0.15*countFactor + 0.1*trend)

	// The recoverable delta if the price reverted to where it started.
	delta := float64(ev.LastAmountCents - ev.FirstAmountCents)
	if delta < 0 {
		delta = 0
	}
	return core.Leak{
		PatternKey:            p.Key,
		Category:              core.LeakPriceCreep,
		Probability:           math.Min(probability, 0.99),
		EstimatedAnnualSaving: annualize(delta, ev.GapMeanDays),
		Reasoning: fmt.Sprintf("The recurring charge at %q rose from %s to %s, a %.0f%% increase over %d payments.",
			string(p.Key), core.Money{Cents: ev.FirstAmountCents}, core.Money{Cents: ev.LastAmountCents},
			creepRisePct(ev)*100, ev.TxnCount),
		ActionableStep: fmt.Sprintf("Check the plan at %q for price increases and negotiate or switch to a cheaper tier.", string(p.Key)),
	}
}

func (c *Classifier) smallRecurringLeak(p core.Pattern) core.Leak {
	ev := p.Evidence
	probability := clamp01(math.Min(0.9, 0.4+0.05*monthlyRate(ev)))

	projectedAnnualCount := float64(ev.TxnCount) / ev.SpanDays * 365
	saving := ev.AvgCents * projectedAnnualCount
	return core.Leak{
		PatternKey:            p.Key,
		Category:              core.LeakSmallRecurring,
		Probability:           probability,
		EstimatedAnnualSaving: toSaving(saving),
		Reasoning: fmt.Sprintf("%d small charges averaging %s at %q add up to %s over %.0f days.",
			ev.TxnCount, core.Money{Cents: int64(math.Round(ev.AvgCents))}, string(p.Key),
			core.Money{Cents: ev.TotalCents}, ev.SpanDays),
		ActionableStep: fmt.Sprintf("Set a weekly cap for %q purchases; small amounts compound quickly.", string(p.Key)),
	}
}

func (c *Classifier) irregularLeak(p core.Pattern) core.Leak {
	ev := p.Evidence
	probability := clamp01(math.Min(0.6, 0.3+0.05*float64(ev.TxnCount)))

	saving := float64(ev.TotalCents) / ev.SpanDays * 365 * c.thresholds.IrregularSavingFactor
	return core.Leak{
		PatternKey:            p.Key,
		Category:              core.LeakIrregularHabitual,
		Probability:           probability,
		EstimatedAnnualSaving: toSaving(saving),
		Reasoning: fmt.Sprintf("Spending at %q totals %s across %d irregular purchases in %.0f days.",
			string(p.Key), core.Money{Cents: ev.TotalCents}, ev.TxnCount, ev.SpanDays),
		ActionableStep: fmt.Sprintf("Track %q spending for a month and decide a budget for it.", string(p.Key)),
	}
}

// creepRisePct is the relative rise of the latest charge over the earliest.
func creepRisePct(ev core.Evidence) float64 {
	if ev.FirstAmountCents <= 0 {
		return 0
	}
	return float64(ev.LastAmountCents-ev.FirstAmountCents) / float64(ev.FirstAmountCents)
}

// monthlyRate normalizes the observed transaction count to a 30-day window.
func monthlyRate(ev core.Evidence) float64 {
	if ev.SpanDays <= 0 {
		return 0
	}
	return float64(ev.TxnCount) / ev.SpanDays * 30
}

// annualize projects a per-occurrence amount to a year using the day-based
// 365/gap formula.
func annualize(amountCents, gapMeanDays float64) core.Money {
	if gapMeanDays <= 0 {
		return core.Money{}
	}
	return toSaving(amountCents * 365 / gapMeanDays)
}

func toSaving(cents float64) core.Money {
	if cents < 0 || math.IsNaN(cents) || math.IsInf(cents, 0) {
		return core.Money{}
	}
	return core.Money{Cents: int64(math.Round(cents))}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
