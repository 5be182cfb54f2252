package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"leakwatch/internal/cache"
	"leakwatch/internal/core"
	"leakwatch/internal/engine"
	"leakwatch/internal/log"
)

// AnalysisService runs the full leak pipeline for one user at a time and
// persists the outcome. Reports are memoized on the exact transaction set so
// repeated analyze calls without new data stay cheap.
type AnalysisService struct {
	store    Store
	analyzer *engine.Analyzer
	reports  *cache.LRUCache[engine.Result]
	exporter   ReportExporter
	logger     *log.Logger
	structured *log.StructuredLogger
	now        func() time.Time
}

func NewAnalysisService(store Store, analyzer *engine.Analyzer, reports *cache.LRUCache[engine.Result], exporter ReportExporter, logger *log.Logger) *AnalysisService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentApp)
	}
	return &AnalysisService{
		store:      store,
		analyzer:   analyzer,
		reports:    reports,
		exporter:   exporter,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
		now:        time.Now,
	}
}

// Ingest validates and stores a batch of transactions. The whole batch is
// rejected when any record is malformed; duplicates inside the store are
// skipped and counted.
func (s *AnalysisService) Ingest(ctx context.Context, txns []core.Transaction) (stored, duplicates int, err error) {
	if len(txns) == 0 {
		return 0, 0, fmt.Errorf("empty transaction batch")
	}
	for i, t := range txns {
		if t.UserID == "" {
			return 0, 0, fmt.Errorf("transaction %d: missing user id", i)
		}
		if err := t.Validate(); err != nil {
			return 0, 0, fmt.Errorf("transaction %d (%s): %w", i, t.ID, err)
		}
	}

	stored, duplicates, err = s.store.SaveTransactions(ctx, txns)
	if err != nil {
		return 0, 0, fmt.Errorf("save transactions: %w", err)
	}
	s.logger.InfoContext(ctx, "Transactions ingested",
		log.FieldUserID, txns[0].UserID,
		log.FieldTxnCount, stored,
		log.FieldSkippedCount, duplicates)
	return stored, duplicates, nil
}

// Analyze loads a user's transactions, runs the engine and persists both the
// insights and the run record. The run id is returned for tracing.
func (s *AnalysisService) Analyze(ctx context.Context, userID string) (engine.Result, core.AnalysisRun, error) {
	if userID == "" {
		return engine.Result{}, core.AnalysisRun{}, fmt.Errorf("missing user id")
	}

	run := core.AnalysisRun{
		RunID:     uuid.NewString(),
		UserID:    userID,
		StartedAt: s.now().UTC(),
		Status:    core.RunRunning,
	}
	if err := s.store.StartRun(ctx, run); err != nil {
		return engine.Result{}, run, fmt.Errorf("start run: %w", err)
	}

	result, err := s.analyze(ctx, userID, run.StartedAt)
	if err != nil {
		run.Status = core.RunFailed
		run.ErrorMessage = err.Error()
		if finishErr := s.store.FinishRun(ctx, run); finishErr != nil {
			s.logger.ErrorContext(ctx, "Failed to record failed run",
				log.FieldRunID, run.RunID,
				log.FieldError, finishErr.Error())
		}
		return engine.Result{}, run, err
	}

	run.Status = core.RunSuccess
	for _, p := range result.Patterns {
		run.TxnCount += p.Evidence.TxnCount
	}
	run.PatternCount = len(result.Patterns)
	run.LeakCount = len(result.Report.Leaks)
	if err := s.store.FinishRun(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record finished run",
			log.FieldRunID, run.RunID,
			log.FieldError, err.Error())
	}
	return result, run, nil
}

func (s *AnalysisService) analyze(ctx context.Context, userID string, analysisAt time.Time) (engine.Result, error) {
	txns, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return engine.Result{}, fmt.Errorf("load transactions: %w", err)
	}

	key := reportCacheKey(userID, txns)
	if s.reports != nil {
		if cached, ok := s.reports.Get(key); ok {
			s.logger.DebugContext(ctx, "Report served from cache", log.FieldUserID, userID)
			return cached, nil
		}
	}

	result, err := s.analyzer.Analyze(ctx, txns, analysisAt)
	if err != nil {
		return engine.Result{}, fmt.Errorf("analyze: %w", err)
	}

	for _, leak := range result.Report.Leaks {
		s.structured.LogLeakDetected(ctx, userID,
			string(leak.PatternKey), leak.Category.String(),
			leak.Probability, leak.EstimatedAnnualSaving.Cents)
	}

	if err := s.store.UpsertLeaks(ctx, userID, result.Report.Leaks, analysisAt); err != nil {
		return engine.Result{}, fmt.Errorf("persist leaks: %w", err)
	}
	if s.reports != nil {
		s.reports.Set(key, result)
	}

	// Export is best effort; a sink failure never fails the run.
	if s.exporter != nil {
		if err := s.exporter.ExportReport(ctx, userID, result.Report, analysisAt); err != nil {
			s.logger.WarnContext(ctx, "Report export failed",
				log.FieldUserID, userID,
				log.FieldError, err.Error())
		}
	}
	return result, nil
}

// LatestReport rebuilds the report view from the stored latest insights,
// resolved ones excluded.
func (s *AnalysisService) LatestReport(ctx context.Context, userID string) (core.Report, error) {
	insights, err := s.store.LatestLeaks(ctx, userID)
	if err != nil {
		return core.Report{}, fmt.Errorf("latest leaks: %w", err)
	}
	leaks := make([]core.Leak, 0, len(insights))
	for _, in := range insights {
		leaks = append(leaks, in.Leak)
	}
	return engine.BuildReport(leaks), nil
}

// ListLeaks returns stored insights, optionally filtered by resolution.
func (s *AnalysisService) ListLeaks(ctx context.Context, userID string, resolved *bool) ([]core.LeakInsight, error) {
	insights, err := s.store.ListLeaks(ctx, userID, resolved)
	if err != nil {
		return nil, fmt.Errorf("list leaks: %w", err)
	}
	return insights, nil
}

// SetLeakResolved marks an insight resolved or active again.
func (s *AnalysisService) SetLeakResolved(ctx context.Context, userID string, insightID int64, resolved bool) error {
	if err := s.store.SetLeakResolved(ctx, userID, insightID, resolved); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Leak resolution updated",
		log.FieldUserID, userID,
		"insight_id", insightID,
		"resolved", resolved)
	return nil
}

// Summary aggregates a user's stored insights.
func (s *AnalysisService) Summary(ctx context.Context, userID string) (core.LeakSummary, error) {
	summary, err := s.store.LeakSummary(ctx, userID)
	if err != nil {
		return core.LeakSummary{}, fmt.Errorf("leak summary: %w", err)
	}
	return summary, nil
}

// ListUserIDs exposes the known users, for the periodic worker.
func (s *AnalysisService) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.store.ListUserIDs(ctx)
}

// reportCacheKey hashes the user with the sorted transaction ids so any
// ingest invalidates the memoized report.
func reportCacheKey(userID string, txns []core.Transaction) string {
	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(userID))
	for _, id := range ids {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}
