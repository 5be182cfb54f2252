package core

import "time"

// RunStatus tracks the lifecycle of one analysis run.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// LeakInsight is a persisted leak with its resolution lifecycle. One row per
// user and merchant: re-analysis updates the row in place and a leak the user
// marked resolved stays resolved until they undo it.
type LeakInsight struct {
	ID         int64
	UserID     string
	Leak       Leak
	AnalysisAt time.Time
	Resolved   bool
	ResolvedAt *time.Time
}

// AnalysisRun is the persisted record of one analysis invocation.
type AnalysisRun struct {
	RunID        string
	UserID       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       RunStatus
	ErrorMessage string
	TxnCount     int
	PatternCount int
	LeakCount    int
}

// LeakSummary aggregates a user's stored insights for the overview endpoint.
type LeakSummary struct {
	ActiveLeaks           int
	ResolvedLeaks         int
	ActiveAnnualSaving    Money
	SavingCentsByCategory map[LeakCategory]int64
}
