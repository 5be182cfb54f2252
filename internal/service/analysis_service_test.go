package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"leakwatch/internal/cache"
	"leakwatch/internal/core"
	"leakwatch/internal/engine"
	"leakwatch/internal/storage/memory"
)

type countingStore struct {
	*memory.Store
	analyzeLoads atomic.Int32
}

func (c *countingStore) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	c.analyzeLoads.Add(1)
	return c.Store.ListTransactions(ctx, userID)
}

type recordingExporter struct {
	exports atomic.Int32
	fail    bool
}

func (r *recordingExporter) ExportReport(context.Context, string, core.Report, time.Time) error {
	r.exports.Add(1)
	if r.fail {
		return errors.New("sheet unavailable")
	}
	return nil
}

func subscriptionBatch(userID string, months int) []core.Transaction {
	txns := make([]core.Transaction, 0, months)
	for i := 0; i < months; i++ {
		txns = append(txns, core.Transaction{
			ID:           fmt.Sprintf("%s-n%02d", userID, i),
			UserID:       userID,
			Date:         core.NewDate(2025, 1+i, 5),
			AmountCents:  -9900,
			MerchantHint: "NETFLIX",
			Narration:    fmt.Sprintf("NETFLIX %02d", i),
			Tags:         core.CategoryTags{Level1: core.TagExpense, Level3Confidence: 0.9},
		})
	}
	return txns
}

func newTestService(store Store, exporter ReportExporter) *AnalysisService {
	analyzer := engine.NewAnalyzer(engine.NewClassifier(engine.DefaultThresholds()), nil, 1, nil)
	reports := cache.NewLRUCache[engine.Result](16, time.Minute)
	return NewAnalysisService(store, analyzer, reports, exporter, nil)
}

func TestIngestValidation(t *testing.T) {
	svc := newTestService(&countingStore{Store: memory.NewStore()}, nil)
	ctx := context.Background()

	if _, _, err := svc.Ingest(ctx, nil); err == nil {
		t.Error("expected error for empty batch")
	}

	bad := subscriptionBatch("u1", 2)
	bad[1].MerchantHint = ""
	if _, _, err := svc.Ingest(ctx, bad); err == nil {
		t.Error("expected error for malformed transaction")
	}

	stored, duplicates, err := svc.Ingest(ctx, subscriptionBatch("u1", 12))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stored != 12 || duplicates != 0 {
		t.Errorf("stored/duplicates = %d/%d, want 12/0", stored, duplicates)
	}

	// Same batch again is all duplicates.
	stored, duplicates, err = svc.Ingest(ctx, subscriptionBatch("u1", 12))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stored != 0 || duplicates != 12 {
		t.Errorf("stored/duplicates = %d/%d, want 0/12", stored, duplicates)
	}
}

func TestAnalyzePersistsAndRecordsRun(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	exporter := &recordingExporter{}
	svc := newTestService(store, exporter)
	ctx := context.Background()

	if _, _, err := svc.Ingest(ctx, subscriptionBatch("u1", 12)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	result, run, err := svc.Analyze(ctx, "u1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Report.Leaks) != 1 || result.Report.Leaks[0].Category != core.LeakSubscription {
		t.Fatalf("report = %+v", result.Report)
	}
	if run.Status != core.RunSuccess || run.TxnCount != 12 || run.PatternCount != 1 || run.LeakCount != 1 {
		t.Errorf("run = %+v", run)
	}
	stored, ok := store.Run(run.RunID)
	if !ok || stored.Status != core.RunSuccess {
		t.Errorf("persisted run = %+v, ok = %v", stored, ok)
	}
	if exporter.exports.Load() != 1 {
		t.Errorf("exports = %d, want 1", exporter.exports.Load())
	}

	report, err := svc.LatestReport(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if len(report.Leaks) != 1 || report.TotalEstimatedAnnualSaving.Cents != result.Report.TotalEstimatedAnnualSaving.Cents {
		t.Errorf("latest report = %+v", report)
	}
}

func TestAnalyzeUsesReportCache(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	svc := newTestService(store, nil)
	ctx := context.Background()

	if _, _, err := svc.Ingest(ctx, subscriptionBatch("u1", 12)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	first, _, err := svc.Analyze(ctx, "u1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	second, _, err := svc.Analyze(ctx, "u1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if first.Report.TotalEstimatedAnnualSaving != second.Report.TotalEstimatedAnnualSaving {
		t.Error("cached report differs")
	}

	// New data invalidates the memoized report.
	extra := []core.Transaction{{
		ID:           "u1-extra",
		UserID:       "u1",
		Date:         core.NewDate(2025, 12, 20),
		AmountCents:  -500,
		MerchantHint: "CAFE",
		Narration:    "CAFE DEC",
	}}
	if _, _, err := svc.Ingest(ctx, extra); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	third, _, err := svc.Analyze(ctx, "u1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(third.Patterns) != 2 {
		t.Errorf("patterns = %d, want 2 after new ingest", len(third.Patterns))
	}
}

func TestExporterFailureDoesNotFailRun(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	exporter := &recordingExporter{fail: true}
	svc := newTestService(store, exporter)
	ctx := context.Background()

	if _, _, err := svc.Ingest(ctx, subscriptionBatch("u1", 12)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	_, run, err := svc.Analyze(ctx, "u1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if run.Status != core.RunSuccess {
		t.Errorf("run status = %q, want SUCCESS", run.Status)
	}
}

func TestResolveLifecycleThroughService(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	svc := newTestService(store, nil)
	ctx := context.Background()

	if _, _, err := svc.Ingest(ctx, subscriptionBatch("u1", 12)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, _, err := svc.Analyze(ctx, "u1"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	insights, err := svc.ListLeaks(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("ListLeaks: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("insights = %d, want 1", len(insights))
	}

	if err := svc.SetLeakResolved(ctx, "u1", insights[0].ID, true); err != nil {
		t.Fatalf("SetLeakResolved: %v", err)
	}
	summary, err := svc.Summary(ctx, "u1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.ActiveLeaks != 0 || summary.ResolvedLeaks != 1 {
		t.Errorf("summary = %+v", summary)
	}

	report, err := svc.LatestReport(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if len(report.Leaks) != 0 {
		t.Errorf("resolved leak still in latest report: %+v", report.Leaks)
	}
}

func TestAnalyzeMissingUser(t *testing.T) {
	svc := newTestService(&countingStore{Store: memory.NewStore()}, nil)
	if _, _, err := svc.Analyze(context.Background(), ""); err == nil {
		t.Error("expected error for missing user id")
	}
}
