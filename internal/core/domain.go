package core

import (
	"errors"
	"strings"
	"time"
)

const (
	TagUnknown = "UNKNOWN"
	TagExpense = "EXPENSE"
)

type (
	Money struct {
		Cents int64
	}

	// CategoryTags is the three-level category assigned upstream, coarse to
	// fine, with a confidence for the finest level.
	CategoryTags struct {
		Level1           string
		Level2           string
		Level3           string
		Level3Confidence float64
	}

	// Transaction is an immutable, externally supplied record. Expenses carry
	// a negative amount; deposits and refunds a positive one.
	Transaction struct {
		ID           string
		UserID       string
		Date         time.Time
		AmountCents  int64
		MerchantHint string
		Tags         CategoryTags
		Narration    string
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrMissingID         = errors.New("missing transaction id")
	ErrMissingDate       = errors.New("missing transaction date")
	ErrMissingMerchant   = errors.New("missing merchant hint")
	ErrInvalidConfidence = errors.New("confidence out of range")
)

// NewDate builds a UTC-midnight calendar date.
func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func (t CategoryTags) Validate() error {
	if t.Level3Confidence < 0 || t.Level3Confidence > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrMissingID
	}
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	if t.AmountCents == 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.MerchantHint) == "" {
		return ErrMissingMerchant
	}
	return t.Tags.Validate()
}

// IsExpense reports whether money left the account.
func (t Transaction) IsExpense() bool {
	return t.AmountCents < 0
}

// Magnitude returns the unsigned amount.
func (t Transaction) Magnitude() Money {
	if t.AmountCents < 0 {
		return Money{Cents: -t.AmountCents}
	}
	return Money{Cents: t.AmountCents}
}
