// Package worker drives background leak analysis: AMQP-triggered runs when
// new data lands, plus a periodic sweep over every known user.
package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"leakwatch/internal/amqp"
	"leakwatch/internal/log"
	"leakwatch/internal/service"
)

// AnalysisWorker re-analyzes users on demand and on a schedule.
type AnalysisWorker struct {
	service     *service.AnalysisService
	interval    time.Duration
	concurrency int
	logger      *log.Logger
}

func NewAnalysisWorker(svc *service.AnalysisService, interval time.Duration, concurrency int, logger *log.Logger) *AnalysisWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	}
	return &AnalysisWorker{
		service:     svc,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
	}
}

// HandleRequest processes one analysis request message from AMQP.
func (w *AnalysisWorker) HandleRequest(ctx context.Context, msg *amqp.AnalysisRequestMessage) error {
	if msg.UserID == "" {
		w.logger.WarnContext(ctx, "Dropping analysis request without user id")
		return nil
	}

	result, run, err := w.service.Analyze(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("analyze user %s: %w", msg.UserID, err)
	}

	w.logger.InfoContext(ctx, "Requested analysis completed",
		log.FieldUserID, msg.UserID,
		log.FieldRunID, run.RunID,
		log.FieldLeakCount, len(result.Report.Leaks),
		log.FieldSavingCents, result.Report.TotalEstimatedAnnualSaving.Cents)
	return nil
}

// RunPeriodic sweeps every known user on the configured interval until the
// context ends. Per-user failures are logged and the sweep continues.
func (w *AnalysisWorker) RunPeriodic(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "Periodic analysis started",
		"interval", w.interval.String(),
		"concurrency", w.concurrency)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Periodic analysis stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.AnalyzeAll(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// AnalyzeAll runs one bounded-concurrency sweep over every known user.
func (w *AnalysisWorker) AnalyzeAll(ctx context.Context) error {
	userIDs, err := w.service.ListUserIDs(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to list users for sweep", log.FieldError, err.Error())
		return fmt.Errorf("list users: %w", err)
	}
	if len(userIDs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			if _, _, err := w.service.Analyze(gctx, userID); err != nil {
				w.logger.ErrorContext(gctx, "Sweep analysis failed",
					log.FieldUserID, userID,
					log.FieldError, err.Error())
			}
			return nil
		})
	}
	// Failures are logged per user; the sweep itself only stops on cancel.
	_ = g.Wait()
	return ctx.Err()
}
