package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"leakwatch/internal/core"
	"leakwatch/internal/log"
)

// Explainer produces human-readable reasoning for a classified leak. The
// engine treats it as best effort: a failing explainer never fails a run.
type Explainer interface {
	Explain(ctx context.Context, pattern core.Pattern, leak core.Leak) (reasoning, actionableStep string, err error)
}

// Result is the full outcome of one analysis run.
type Result struct {
	Report   core.Report
	Patterns []core.Pattern
	Skipped  SkipCounts
}

// Analyzer runs the full pipeline: aggregate transactions into patterns,
// classify each pattern, attach explanations and build the report.
type Analyzer struct {
	classifier   *Classifier
	explainer    Explainer
	explainLimit int
	logger       *log.Logger
}

// NewAnalyzer wires a classifier with an optional explainer. A nil explainer
// leaves the classifier's reasoning untouched. explainLimit bounds concurrent
// explainer calls; values below one fall back to a single in-flight call.
func NewAnalyzer(classifier *Classifier, explainer Explainer, explainLimit int, logger *log.Logger) *Analyzer {
	if explainLimit < 1 {
		explainLimit = 1
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentEngine)
	}
	return &Analyzer{
		classifier:   classifier,
		explainer:    explainer,
		explainLimit: explainLimit,
		logger:       logger,
	}
}

// Analyze processes one user's transactions as of the given instant.
func (a *Analyzer) Analyze(ctx context.Context, txns []core.Transaction, asOf time.Time) (Result, error) {
	patterns, skipped := Aggregate(txns, asOf)

	leaks := make([]core.Leak, 0, len(patterns))
	for _, p := range patterns {
		leak, ok := a.classifier.Classify(p)
		if !ok {
			continue
		}
		leaks = append(leaks, leak)
	}

	if a.explainer != nil && len(leaks) > 0 {
		a.explain(ctx, patterns, leaks)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	report := BuildReport(leaks)
	a.logger.InfoContext(ctx, "Analysis completed",
		log.FieldTxnCount, len(txns),
		log.FieldPatternCount, len(patterns),
		log.FieldLeakCount, len(report.Leaks),
		log.FieldSkippedCount, skipped.Total(),
		log.FieldSavingCents, report.TotalEstimatedAnnualSaving.Cents)

	return Result{Report: report, Patterns: patterns, Skipped: skipped}, nil
}

// explain fills in reasoning and actionable steps concurrently. Explainer
// errors are logged per leak and the classifier's own text is kept.
func (a *Analyzer) explain(ctx context.Context, patterns []core.Pattern, leaks []core.Leak) {
	byKey := make(map[core.PatternKey]core.Pattern, len(patterns))
	for _, p := range patterns {
		byKey[p.Key] = p
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.explainLimit)
	for i := range leaks {
		g.Go(func() error {
			leak := leaks[i]
			reasoning, step, err := a.explainer.Explain(gctx, byKey[leak.PatternKey], leak)
			if err != nil {
				a.logger.WarnContext(gctx, "Explainer failed, keeping heuristic reasoning",
					log.FieldMerchantHint, string(leak.PatternKey),
					log.FieldLeakCategory, string(leak.Category),
					log.FieldError, err.Error())
				return nil
			}
			if reasoning != "" {
				leaks[i].Reasoning = reasoning
			}
			if step != "" {
				leaks[i].ActionableStep = step
			}
			return nil
		})
	}
	// Goroutines only return nil; Wait is for completion, not errors.
	_ = g.Wait()
}
