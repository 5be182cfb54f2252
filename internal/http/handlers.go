package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"leakwatch/internal/core"
	"leakwatch/internal/log"
	"leakwatch/internal/storage"
)

const dateLayout = "2006-01-02"

// transactionRequest is one incoming transaction. Amount may arrive either as
// signed cents or as a decimal string; cents win when both are present.
type transactionRequest struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Date         string  `json:"date"`
	AmountCents  int64   `json:"amount_cents,omitempty"`
	Amount       string  `json:"amount,omitempty"`
	MerchantHint string  `json:"merchant_hint"`
	Narration    string  `json:"narration,omitempty"`
	Tags         tagsDTO `json:"tags"`
}

type tagsDTO struct {
	Level1           string  `json:"level_1,omitempty"`
	Level2           string  `json:"level_2,omitempty"`
	Level3           string  `json:"level_3,omitempty"`
	Level3Confidence float64 `json:"level_3_confidence,omitempty"`
}

type ingestRequest struct {
	Transactions []transactionRequest `json:"transactions"`
}

type ingestResponse struct {
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
}

type analyzeRequest struct {
	UserID string `json:"user_id"`
}

type leakDTO struct {
	MerchantHint          string  `json:"merchant_hint"`
	Category              string  `json:"category"`
	Probability           float64 `json:"probability"`
	EstimatedAnnualSaving string  `json:"estimated_annual_saving"`
	SavingCents           int64   `json:"saving_cents"`
	Reasoning             string  `json:"reasoning,omitempty"`
	ActionableStep        string  `json:"actionable_step,omitempty"`
}

type reportDTO struct {
	Leaks           []leakDTO `json:"leaks"`
	TotalSaving     string    `json:"total_estimated_annual_saving"`
	TotalCents      int64     `json:"total_cents"`
	ConfidenceLevel string    `json:"confidence_level"`
}

type analyzeResponse struct {
	RunID        string    `json:"run_id"`
	Status       string    `json:"status"`
	TxnCount     int       `json:"txn_count"`
	PatternCount int       `json:"pattern_count"`
	Report       reportDTO `json:"report"`
}

type insightDTO struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	AnalysisAt time.Time  `json:"analysis_at"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Leak       leakDTO    `json:"leak"`
}

type summaryDTO struct {
	ActiveLeaks        int              `json:"active_leaks"`
	ResolvedLeaks      int              `json:"resolved_leaks"`
	ActiveAnnualSaving string           `json:"active_annual_saving"`
	ActiveAnnualCents  int64            `json:"active_annual_cents"`
	SavingByCategory   map[string]int64 `json:"saving_cents_by_category"`
}

func toLeakDTO(l core.Leak) leakDTO {
	return leakDTO{
		MerchantHint:          string(l.PatternKey),
		Category:              l.Category.String(),
		Probability:           l.Probability,
		EstimatedAnnualSaving: l.EstimatedAnnualSaving.String(),
		SavingCents:           l.EstimatedAnnualSaving.Cents,
		Reasoning:             l.Reasoning,
		ActionableStep:        l.ActionableStep,
	}
}

func toReportDTO(r core.Report) reportDTO {
	leaks := make([]leakDTO, 0, len(r.Leaks))
	for _, l := range r.Leaks {
		leaks = append(leaks, toLeakDTO(l))
	}
	return reportDTO{
		Leaks:           leaks,
		TotalSaving:     r.TotalEstimatedAnnualSaving.String(),
		TotalCents:      r.TotalEstimatedAnnualSaving.Cents,
		ConfidenceLevel: string(r.ConfidenceLevel),
	}
}

func (t transactionRequest) toTransaction() (core.Transaction, error) {
	date, err := time.ParseInLocation(dateLayout, t.Date, time.UTC)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: invalid date %q", t.ID, t.Date)
	}
	cents := t.AmountCents
	if cents == 0 && t.Amount != "" {
		cents, err = core.ParseAmountToCents(t.Amount)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("transaction %s: invalid amount %q", t.ID, t.Amount)
		}
	}
	return core.Transaction{
		ID:           t.ID,
		UserID:       t.UserID,
		Date:         date,
		AmountCents:  cents,
		MerchantHint: t.MerchantHint,
		Narration:    t.Narration,
		Tags: core.CategoryTags{
			Level1:           t.Tags.Level1,
			Level2:           t.Tags.Level2,
			Level3:           t.Tags.Level3,
			Level3Confidence: t.Tags.Level3Confidence,
		},
	}, nil
}

func (s *Server) handleIngestTransactions(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Transactions) == 0 {
		writeError(w, http.StatusBadRequest, "transactions must not be empty")
		return
	}

	txns := make([]core.Transaction, 0, len(req.Transactions))
	for _, t := range req.Transactions {
		txn, err := t.toTransaction()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		txns = append(txns, txn)
	}

	stored, duplicates, err := s.svc.Ingest(r.Context(), txns)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{Stored: stored, Duplicates: duplicates})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if s.publisher != nil {
		if err := s.publisher.PublishAnalysisRequest(r.Context(), req.UserID); err != nil {
			s.logger.ErrorContext(r.Context(), "Failed to enqueue analysis request",
				log.FieldUserID, req.UserID,
				log.FieldError, err.Error())
			writeError(w, http.StatusServiceUnavailable, "failed to enqueue analysis request")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "queued",
			"user_id": req.UserID,
		})
		return
	}

	result, run, err := s.svc.Analyze(r.Context(), req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		RunID:        run.RunID,
		Status:       string(run.Status),
		TxnCount:     run.TxnCount,
		PatternCount: run.PatternCount,
		Report:       toReportDTO(result.Report),
	})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	report, err := s.svc.LatestReport(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

func (s *Server) handleListLeaks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	resolved, err := parseBoolParam(r, "resolved")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	insights, err := s.svc.ListLeaks(r.Context(), userID, resolved)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]insightDTO, 0, len(insights))
	for _, in := range insights {
		out = append(out, insightDTO{
			ID:         in.ID,
			UserID:     in.UserID,
			AnalysisAt: in.AnalysisAt,
			Resolved:   in.Resolved,
			ResolvedAt: in.ResolvedAt,
			Leak:       toLeakDTO(in.Leak),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaks": out})
}

func (s *Server) handleResolveLeak(w http.ResponseWriter, r *http.Request) {
	s.setLeakResolution(w, r, true)
}

func (s *Server) handleUnresolveLeak(w http.ResponseWriter, r *http.Request) {
	s.setLeakResolution(w, r, false)
}

func (s *Server) setLeakResolution(w http.ResponseWriter, r *http.Request, resolved bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid leak id")
		return
	}
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := s.svc.SetLeakResolved(r.Context(), req.UserID, id, resolved); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "leak not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "resolved": resolved})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	summary, err := s.svc.Summary(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	byCategory := make(map[string]int64, len(summary.SavingCentsByCategory))
	for cat, cents := range summary.SavingCentsByCategory {
		byCategory[cat.String()] = cents
	}
	writeJSON(w, http.StatusOK, summaryDTO{
		ActiveLeaks:        summary.ActiveLeaks,
		ResolvedLeaks:      summary.ResolvedLeaks,
		ActiveAnnualSaving: summary.ActiveAnnualSaving.String(),
		ActiveAnnualCents:  summary.ActiveAnnualSaving.Cents,
		SavingByCategory:   byCategory,
	})
}
