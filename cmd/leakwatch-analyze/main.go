// Command leakwatch-analyze runs the leak engine once over a JSON file of
// transactions and prints the report. Useful for trying the classifier on an
// exported bank statement without a running server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"leakwatch/internal/config"
	"leakwatch/internal/core"
	"leakwatch/internal/engine"
)

type fileTransaction struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Date         string `json:"date"`
	AmountCents  int64  `json:"amount_cents,omitempty"`
	Amount       string `json:"amount,omitempty"`
	MerchantHint string `json:"merchant_hint"`
	Narration    string `json:"narration,omitempty"`
	Tags         struct {
		Level1           string  `json:"level_1,omitempty"`
		Level2           string  `json:"level_2,omitempty"`
		Level3           string  `json:"level_3,omitempty"`
		Level3Confidence float64 `json:"level_3_confidence,omitempty"`
	} `json:"tags"`
}

func main() {
	var (
		file    = flag.String("file", "", "path to a JSON array of transactions (required)")
		asOfStr = flag.String("as-of", "", "analysis date as YYYY-MM-DD (default: today)")
		asJSON  = flag.Bool("json", false, "print the report as JSON instead of text")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: leakwatch-analyze -file transactions.json [-as-of 2025-06-01] [-json]")
		os.Exit(2)
	}

	asOf := time.Now().UTC()
	if *asOfStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", *asOfStr, time.UTC)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -as-of date %q: %v\n", *asOfStr, err)
			os.Exit(2)
		}
		asOf = parsed
	}

	txns, err := loadTransactions(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Thresholds come from the environment like the server binaries.
	cfg := config.Load()
	classifier := engine.NewClassifier(cfg.Thresholds())

	patterns, skipped := engine.Aggregate(txns, asOf)
	leaks := make([]core.Leak, 0, len(patterns))
	for _, p := range patterns {
		if leak, ok := classifier.Classify(p); ok {
			leaks = append(leaks, leak)
		}
	}
	report := engine.BuildReport(leaks)

	if *asJSON {
		printJSON(report, len(txns), len(patterns), skipped.Total())
		return
	}
	printText(report, len(txns), len(patterns), skipped.Total())
}

func loadTransactions(path string) ([]core.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw []fileTransaction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	txns := make([]core.Transaction, 0, len(raw))
	for i, r := range raw {
		date, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("transaction %d (%s): invalid date %q", i, r.ID, r.Date)
		}
		cents := r.AmountCents
		if cents == 0 && r.Amount != "" {
			cents, err = core.ParseAmountToCents(r.Amount)
			if err != nil {
				return nil, fmt.Errorf("transaction %d (%s): invalid amount %q", i, r.ID, r.Amount)
			}
		}
		txn := core.Transaction{
			ID:           r.ID,
			UserID:       r.UserID,
			Date:         date,
			AmountCents:  cents,
			MerchantHint: r.MerchantHint,
			Narration:    r.Narration,
			Tags: core.CategoryTags{
				Level1:           r.Tags.Level1,
				Level2:           r.Tags.Level2,
				Level3:           r.Tags.Level3,
				Level3Confidence: r.Tags.Level3Confidence,
			},
		}
		if err := txn.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d (%s): %w", i, r.ID, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func printText(report core.Report, txnCount, patternCount, skipped int) {
	fmt.Printf("Analyzed %d transactions, %d patterns (%d skipped)\n", txnCount, patternCount, skipped)
	fmt.Printf("Confidence: %s\n\n", report.ConfidenceLevel)

	if len(report.Leaks) == 0 {
		fmt.Println("No spending leaks detected.")
		return
	}
	for _, l := range report.Leaks {
		fmt.Printf("%-24s %-20s p=%.2f  saves %s/yr\n",
			l.PatternKey, l.Category, l.Probability, l.EstimatedAnnualSaving)
		if l.Reasoning != "" {
			fmt.Printf("    %s\n", l.Reasoning)
		}
		if l.ActionableStep != "" {
			fmt.Printf("    -> %s\n", l.ActionableStep)
		}
	}
	fmt.Printf("\nTotal estimated annual saving: %s\n", report.TotalEstimatedAnnualSaving)
}

func printJSON(report core.Report, txnCount, patternCount, skipped int) {
	type leakOut struct {
		MerchantHint   string  `json:"merchant_hint"`
		Category       string  `json:"category"`
		Probability    float64 `json:"probability"`
		SavingCents    int64   `json:"saving_cents"`
		Reasoning      string  `json:"reasoning,omitempty"`
		ActionableStep string  `json:"actionable_step,omitempty"`
	}
	out := struct {
		TxnCount     int       `json:"txn_count"`
		PatternCount int       `json:"pattern_count"`
		Skipped      int       `json:"skipped"`
		Confidence   string    `json:"confidence_level"`
		TotalCents   int64     `json:"total_cents"`
		Leaks        []leakOut `json:"leaks"`
	}{
		TxnCount:     txnCount,
		PatternCount: patternCount,
		Skipped:      skipped,
		Confidence:   string(report.ConfidenceLevel),
		TotalCents:   report.TotalEstimatedAnnualSaving.Cents,
	}
	for _, l := range report.Leaks {
		out.Leaks = append(out.Leaks, leakOut{
			MerchantHint:   string(l.PatternKey),
			Category:       l.Category.String(),
			Probability:    l.Probability,
			SavingCents:    l.EstimatedAnnualSaving.Cents,
			Reasoning:      l.Reasoning,
			ActionableStep: l.ActionableStep,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
