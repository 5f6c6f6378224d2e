package rewards

import (
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string {
	return &s
}

func instrument(id, base, pointValue string, rules ...model.RewardRule) model.Instrument {
	return model.Instrument{
		ID:             id,
		WalletID:       "w1",
		Name:           id,
		BaseMultiplier: dec(base),
		PointValue:     dec(pointValue),
		Rules:          rules,
	}
}

func rule(id, category, multiplier string) model.RewardRule {
	return model.RewardRule{ID: id, Category: category, Multiplier: dec(multiplier)}
}

func txn(id string, cents int64, category *string, used *string) model.Transaction {
	return model.Transaction{
		ID:               id,
		WalletID:         "w1",
		MerchantName:     "Merchant " + id,
		AmountCents:      cents,
		Category:         category,
		InstrumentUsedID: used,
		Date:             time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

func cardWallet() model.Wallet {
	return model.Wallet{
		ID: "w1",
		Instruments: []model.Instrument{
			instrument("card-a", "1", "0.01", rule("a-dining", "Dining", "4")),
			instrument("card-b", "1", "0.01", rule("b-travel", "Travel", "3")),
		},
	}
}
