package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/shopspring/decimal"
)

// WalletBuilder assembles wallet fixtures.
type WalletBuilder struct {
	walletID    string
	instruments []model.Instrument
}

// NewWalletBuilder starts a wallet fixture.
func NewWalletBuilder(walletID string) *WalletBuilder {
	return &WalletBuilder{walletID: walletID}
}

// WithCard adds an instrument. Multipliers and point values are decimal strings.
func (b *WalletBuilder) WithCard(id, baseMultiplier, pointValue string, rules ...model.RewardRule) *WalletBuilder {
	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = fmt.Sprintf("%s-rule-%d", id, i+1)
		}
	}
	b.instruments = append(b.instruments, model.Instrument{
		ID:             id,
		WalletID:       b.walletID,
		Name:           id,
		BaseMultiplier: decimal.RequireFromString(baseMultiplier),
		PointValue:     decimal.RequireFromString(pointValue),
		Rules:          rules,
	})
	return b
}

// WithAccount sets the statement account of the most recently added card.
func (b *WalletBuilder) WithAccount(accountID string) *WalletBuilder {
	if n := len(b.instruments); n > 0 {
		b.instruments[n-1].AccountID = accountID
	}
	return b
}

// Build returns the wallet snapshot.
func (b *WalletBuilder) Build() model.Wallet {
	instruments := make([]model.Instrument, len(b.instruments))
	copy(instruments, b.instruments)
	return model.Wallet{ID: b.walletID, Instruments: instruments}
}

// Rule returns a reward rule without an ID.
func Rule(category, multiplier string) model.RewardRule {
	return model.RewardRule{Category: category, Multiplier: decimal.RequireFromString(multiplier)}
}

// Spend returns a categorized spend charged to instrumentID.
// An empty category or instrument leaves the field nil.
func Spend(id, walletID, merchant, category string, amountCents int64, date time.Time, instrumentID string) model.Transaction {
	txn := model.Transaction{
		ID:           id,
		WalletID:     walletID,
		MerchantName: merchant,
		AmountCents:  amountCents,
		Date:         date,
	}
	if category != "" {
		txn.Category = &category
		txn.CategorySource = model.SourceImport
	}
	if instrumentID != "" {
		txn.InstrumentUsedID = &instrumentID
	}
	return txn
}
