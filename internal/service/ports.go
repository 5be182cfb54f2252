// Package service orchestrates ingestion, analysis runs and insight
// persistence on top of the pure engine.
package service

import (
	"context"
	"time"

	"leakwatch/internal/core"
)

// TransactionStore persists and reads externally supplied transactions.
type TransactionStore interface {
	SaveTransactions(ctx context.Context, txns []core.Transaction) (stored, duplicates int, err error)
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// LeakStore persists insights with their resolution lifecycle.
type LeakStore interface {
	UpsertLeaks(ctx context.Context, userID string, leaks []core.Leak, analysisAt time.Time) error
	LatestLeaks(ctx context.Context, userID string) ([]core.LeakInsight, error)
	ListLeaks(ctx context.Context, userID string, resolved *bool) ([]core.LeakInsight, error)
	SetLeakResolved(ctx context.Context, userID string, insightID int64, resolved bool) error
	LeakSummary(ctx context.Context, userID string) (core.LeakSummary, error)
}

// RunRecorder tracks analysis run lifecycles.
type RunRecorder interface {
	StartRun(ctx context.Context, run core.AnalysisRun) error
	FinishRun(ctx context.Context, run core.AnalysisRun) error
}

// Store is the combined persistence surface the service needs.
type Store interface {
	TransactionStore
	LeakStore
	RunRecorder
	Close() error
}

// ReportExporter pushes a finished report to an external sink.
type ReportExporter interface {
	ExportReport(ctx context.Context, userID string, report core.Report, analysisAt time.Time) error
}
