package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"leakwatch/internal/amqp"
	"leakwatch/internal/cache"
	"leakwatch/internal/core"
	"leakwatch/internal/engine"
	"leakwatch/internal/service"
	"leakwatch/internal/storage/memory"
)

func newTestWorker(t *testing.T, store *memory.Store) *AnalysisWorker {
	t.Helper()
	analyzer := engine.NewAnalyzer(engine.NewClassifier(engine.DefaultThresholds()), nil, 1, nil)
	reports := cache.NewLRUCache[engine.Result](16, time.Minute)
	svc := service.NewAnalysisService(store, analyzer, reports, nil, nil)
	return NewAnalysisWorker(svc, time.Hour, 2, nil)
}

func seedUser(t *testing.T, store *memory.Store, userID string) {
	t.Helper()
	var txns []core.Transaction
	for i := 0; i < 12; i++ {
		txns = append(txns, core.Transaction{
			ID:           fmt.Sprintf("%s-%02d", userID, i),
			UserID:       userID,
			Date:         core.NewDate(2025, 1+i, 5),
			AmountCents:  -9900,
			MerchantHint: "NETFLIX",
			Narration:    fmt.Sprintf("NETFLIX %s %02d", userID, i),
		})
	}
	if _, _, err := store.SaveTransactions(context.Background(), txns); err != nil {
		t.Fatalf("SaveTransactions: %v", err)
	}
}

func TestHandleRequest(t *testing.T) {
	store := memory.NewStore()
	seedUser(t, store, "u1")
	w := newTestWorker(t, store)
	ctx := context.Background()

	msg := amqp.NewAnalysisRequestMessage("u1")
	if err := w.HandleRequest(ctx, msg); err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}

	insights, err := store.LatestLeaks(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestLeaks: %v", err)
	}
	if len(insights) != 1 || insights[0].Leak.Category != core.LeakSubscription {
		t.Errorf("insights = %+v", insights)
	}
}

func TestHandleRequestEmptyUser(t *testing.T) {
	w := newTestWorker(t, memory.NewStore())
	// Dropped, not requeued.
	if err := w.HandleRequest(context.Background(), &amqp.AnalysisRequestMessage{}); err != nil {
		t.Errorf("HandleRequest: %v", err)
	}
}

func TestAnalyzeAll(t *testing.T) {
	store := memory.NewStore()
	seedUser(t, store, "u1")
	seedUser(t, store, "u2")
	seedUser(t, store, "u3")
	w := newTestWorker(t, store)
	ctx := context.Background()

	if err := w.AnalyzeAll(ctx); err != nil {
		t.Fatalf("AnalyzeAll: %v", err)
	}

	for _, userID := range []string{"u1", "u2", "u3"} {
		insights, err := store.LatestLeaks(ctx, userID)
		if err != nil {
			t.Fatalf("LatestLeaks(%s): %v", userID, err)
		}
		if len(insights) != 1 {
			t.Errorf("%s: insights = %d, want 1", userID, len(insights))
		}
	}
}

func TestAnalyzeAllNoUsers(t *testing.T) {
	w := newTestWorker(t, memory.NewStore())
	if err := w.AnalyzeAll(context.Background()); err != nil {
		t.Errorf("AnalyzeAll: %v", err)
	}
}
