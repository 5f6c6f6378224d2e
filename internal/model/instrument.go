// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RewardRule grants a category-specific multiplier on an instrument.
// Category spelling is free-form; overlapping rules are legal.
type RewardRule struct {
	ID         string
	Category   string
	Multiplier decimal.Decimal
}

// Instrument is a reward-earning payment card or account in a wallet.
type Instrument struct {
	ID             string
	WalletID       string
	Name           string
	AccountID      string // statement account number used to link imported transactions
	BaseMultiplier decimal.Decimal
	PointValue     decimal.Decimal // currency per point, e.g. 0.01
	Rules          []RewardRule
}

// DisplayName returns the instrument name, falling back to its ID.
func (i Instrument) DisplayName() string {
	if strings.TrimSpace(i.Name) != "" {
		return i.Name
	}
	return i.ID
}

// Wallet is an immutable snapshot of one user's instruments.
type Wallet struct {
	ID          string
	Instruments []Instrument
}

// Instrument returns the instrument with the given ID.
func (w Wallet) Instrument(id string) (Instrument, bool) {
	for _, inst := range w.Instruments {
		if inst.ID == id {
			return inst, true
		}
	}
	return Instrument{}, false
}

// IsEmpty reports whether the wallet holds no instruments.
func (w Wallet) IsEmpty() bool {
	return len(w.Instruments) == 0
}
