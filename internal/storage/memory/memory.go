// Package memory provides an in-memory store with the same surface as the
// SQLite repository. Used for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"leakwatch/internal/core"
	"leakwatch/internal/storage"
)

type dedupeKey struct {
	userID    string
	date      string
	narration string
	cents     int64
}

type Store struct {
	mu       sync.RWMutex
	txns     map[string][]core.Transaction
	seen     map[dedupeKey]struct{}
	insights map[string][]*core.LeakInsight
	runs     map[string]core.AnalysisRun
	nextID   int64
}

func NewStore() *Store {
	return &Store{
		txns:     make(map[string][]core.Transaction),
		seen:     make(map[dedupeKey]struct{}),
		insights: make(map[string][]*core.LeakInsight),
		runs:     make(map[string]core.AnalysisRun),
		nextID:   1,
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) SaveTransactions(_ context.Context, txns []core.Transaction) (stored, duplicates int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range txns {
		key := dedupeKey{
			userID:    t.UserID,
			date:      t.Date.UTC().Format("2006-01-02"),
			narration: t.Narration,
			cents:     t.AmountCents,
		}
		if _, dup := s.seen[key]; dup {
			duplicates++
			continue
		}
		s.seen[key] = struct{}{}
		s.txns[t.UserID] = append(s.txns[t.UserID], t)
		stored++
	}
	return stored, duplicates, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txns := make([]core.Transaction, len(s.txns[userID]))
	copy(txns, s.txns[userID])
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})
	return txns, nil
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.txns))
	for id := range s.txns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) UpsertLeaks(_ context.Context, userID string, leaks []core.Leak, analysisAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range leaks {
		var existing *core.LeakInsight
		for _, in := range s.insights[userID] {
			if in.Leak.PatternKey == l.PatternKey {
				existing = in
				break
			}
		}
		if existing != nil {
			resolved, resolvedAt := existing.Resolved, existing.ResolvedAt
			existing.Leak = l
			existing.AnalysisAt = analysisAt
			existing.Resolved = resolved
			existing.ResolvedAt = resolvedAt
			continue
		}
		s.insights[userID] = append(s.insights[userID], &core.LeakInsight{
			ID:         s.nextID,
			UserID:     userID,
			Leak:       l,
			AnalysisAt: analysisAt,
		})
		s.nextID++
	}
	return nil
}

func (s *Store) LatestLeaks(_ context.Context, userID string) ([]core.LeakInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, in := range s.insights[userID] {
		if in.AnalysisAt.After(latest) {
			latest = in.AnalysisAt
		}
	}
	var out []core.LeakInsight
	for _, in := range s.insights[userID] {
		if !in.Resolved && in.AnalysisAt.Equal(latest) {
			out = append(out, *in)
		}
	}
	sortInsights(out)
	return out, nil
}

func (s *Store) ListLeaks(_ context.Context, userID string, resolved *bool) ([]core.LeakInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.LeakInsight
	for _, in := range s.insights[userID] {
		if resolved != nil && in.Resolved != *resolved {
			continue
		}
		out = append(out, *in)
	}
	sortInsights(out)
	return out, nil
}

func (s *Store) SetLeakResolved(_ context.Context, userID string, insightID int64, resolved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.insights[userID] {
		if in.ID != insightID {
			continue
		}
		in.Resolved = resolved
		if resolved {
			now := time.Now().UTC()
			in.ResolvedAt = &now
		} else {
			in.ResolvedAt = nil
		}
		return nil
	}
	return storage.ErrNotFound
}

func (s *Store) LeakSummary(_ context.Context, userID string) (core.LeakSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := core.LeakSummary{SavingCentsByCategory: make(map[core.LeakCategory]int64)}
	for _, in := range s.insights[userID] {
		if in.Resolved {
			summary.ResolvedLeaks++
			continue
		}
		summary.ActiveLeaks++
		summary.ActiveAnnualSaving.Cents += in.Leak.EstimatedAnnualSaving.Cents
		summary.SavingCentsByCategory[in.Leak.Category] += in.Leak.EstimatedAnnualSaving.Cents
	}
	return summary, nil
}

func (s *Store) StartRun(_ context.Context, run core.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

func (s *Store) FinishRun(_ context.Context, run core.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.RunID]; !ok {
		return storage.ErrNotFound
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	s.runs[run.RunID] = run
	return nil
}

// Run returns a stored run record, for tests and diagnostics.
func (s *Store) Run(runID string) (core.AnalysisRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	return run, ok
}

func sortInsights(insights []core.LeakInsight) {
	sort.Slice(insights, func(i, j int) bool {
		a, b := insights[i].Leak, insights[j].Leak
		if a.EstimatedAnnualSaving.Cents != b.EstimatedAnnualSaving.Cents {
			return a.EstimatedAnnualSaving.Cents > b.EstimatedAnnualSaving.Cents
		}
		if a.Probability != b.Probability {
			return a.Probability > b.Probability
		}
		return a.PatternKey < b.PatternKey
	})
}
