package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// CategorySource identifies who assigned a transaction's category.
type CategorySource string

// Category source constants.
const (
	SourceNone     CategorySource = ""
	SourceExternal CategorySource = "external"
	SourceFallback CategorySource = "fallback"
	SourceFailsafe CategorySource = "failsafe"
	SourceUser     CategorySource = "user"
	SourceImport   CategorySource = "import"
)

// Transaction represents a single card transaction.
type Transaction struct {
	Date               time.Time
	Category           *string // nil until categorized
	InstrumentUsedID   *string // nil until matched to an instrument
	ID                 string
	WalletID           string
	MerchantName       string
	CategorySource     CategorySource
	CategoryReason     string
	Estimation         Estimation
	AmountCents        int64 // positive = spend
	CategoryConfidence float64
}

// IsSpend reports whether the transaction can earn rewards.
// Refunds and credits never do.
func (t Transaction) IsSpend() bool {
	return t.AmountCents > 0
}

// CategoryName returns the category or an empty string when unset.
func (t Transaction) CategoryName() string {
	if t.Category == nil {
		return ""
	}
	return *t.Category
}

// InstrumentUsed returns the linked instrument ID or an empty string.
func (t Transaction) InstrumentUsed() string {
	if t.InstrumentUsedID == nil {
		return ""
	}
	return *t.InstrumentUsedID
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%d:%s:%s",
		t.WalletID,
		t.Date.Format("2006-01-02"),
		t.AmountCents,
		t.MerchantName,
		t.InstrumentUsed())
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Estimation holds the reward estimation fields written back onto a transaction.
// EarnedPoints and EarnedValueCents stay nil for unestimated transactions so
// that "earned nothing" and "unknown" remain distinguishable.
type Estimation struct {
	EstimatedAt      time.Time
	EarnedPoints     *int64
	EarnedValueCents *int64
	BestInstrumentID *string // nil when nothing beats the instrument used
	MissedValueCents int64   // always >= 0
}

// IsEstimated reports whether an earned value is known.
func (e Estimation) IsEstimated() bool {
	return e.EarnedValueCents != nil
}

// Equal compares estimation outputs, ignoring the timestamp.
func (e Estimation) Equal(other Estimation) bool {
	return equalInt64Ptr(e.EarnedPoints, other.EarnedPoints) &&
		equalInt64Ptr(e.EarnedValueCents, other.EarnedValueCents) &&
		equalStringPtr(e.BestInstrumentID, other.BestInstrumentID) &&
		e.MissedValueCents == other.MissedValueCents
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DateRange represents a half-open time window [Start, End).
// A zero bound is unbounded on that side.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !t.Before(r.End) {
		return false
	}
	return true
}

// LastDays returns the window covering the days before now.
func LastDays(now time.Time, days int) DateRange {
	if days <= 0 {
		return DateRange{}
	}
	return DateRange{Start: now.AddDate(0, 0, -days), End: now.Add(time.Nanosecond)}
}
