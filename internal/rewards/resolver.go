package rewards

import "github.com/Veraticus/the-points-must-flow/internal/model"

// Candidate is one instrument evaluated against a transaction.
type Candidate struct {
	Instrument model.Instrument
	Match      Match
	Valuation  Valuation
}

// Evaluate values a transaction on a single instrument.
func Evaluate(inst model.Instrument, txn model.Transaction) Candidate {
	match := MatchRule(inst, txn.Category)
	return Candidate{
		Instrument: inst,
		Match:      match,
		Valuation:  Value(match.Multiplier, txn.AmountCents, inst.PointValue),
	}
}

// Best scans every instrument in the wallet and returns the one with the
// highest value for the transaction. Ties prefer the instrument actually
// used, then the lowest instrument ID. An empty wallet yields nil.
func Best(wallet model.Wallet, txn model.Transaction) *Candidate {
	used := txn.InstrumentUsed()

	var best *Candidate
	for _, inst := range wallet.Instruments {
		candidate := Evaluate(inst, txn)
		if best == nil || beats(candidate, *best, used) {
			c := candidate
			best = &c
		}
	}
	return best
}

func beats(challenger, incumbent Candidate, used string) bool {
	if challenger.Valuation.ValueCents != incumbent.Valuation.ValueCents {
		return challenger.Valuation.ValueCents > incumbent.Valuation.ValueCents
	}
	if used != "" {
		if incumbent.Instrument.ID == used {
			return false
		}
		if challenger.Instrument.ID == used {
			return true
		}
	}
	return challenger.Instrument.ID < incumbent.Instrument.ID
}
