package core

// PatternKey identifies a behavioral pattern. Grouping is by merchant hint
// only: merchant identity is the stable key across category drift, so a
// merchant occasionally retagged upstream still lands in one pattern. The
// modal category tags are carried on the evidence for display.
type PatternKey string

// Evidence is the set of statistics computed over one pattern's expense
// transactions. Amounts are unsigned cents; gaps and spans are in days.
type Evidence struct {
	TxnCount int

	TotalCents       int64
	AvgCents         float64
	AmountStdCents   float64
	MinCents         int64
	MaxCents         int64
	FirstAmountCents int64
	LastAmountCents  int64

	SpanDays    float64
	GapMeanDays float64
	// GapStdDays is the sample standard deviation (ddof=1) of the
	// consecutive gaps; zero when fewer than three transactions.
	GapStdDays float64
	GapMinDays float64
	GapMaxDays float64

	RecencyDays float64

	// Modal tags across the group, with the mean level-3 confidence.
	ModalTags        CategoryTags
	Level3Confidence float64
}

// Pattern is the aggregated behavioral fingerprint of all transactions
// sharing a merchant identity. Recomputed fresh on every aggregation pass.
type Pattern struct {
	Key          PatternKey
	Transactions []Transaction
	Evidence     Evidence
}

// GapCV returns the relative gap variance (std over mean), zero when the
// mean is degenerate.
func (e Evidence) GapCV() float64 {
	if e.GapMeanDays <= 0 {
		return 0
	}
	return e.GapStdDays / e.GapMeanDays
}

// AmountCV returns the relative amount variance.
func (e Evidence) AmountCV() float64 {
	if e.AvgCents <= 0 {
		return 0
	}
	return e.AmountStdCents / e.AvgCents
}
