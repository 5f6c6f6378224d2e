package rewards

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
)

// DefaultMaterialityCents suppresses deltas that are only rounding noise.
const DefaultMaterialityCents int64 = 5

// Earned computes the reward on the instrument actually used.
// It returns a DataError when the transaction cannot be estimated.
func Earned(wallet model.Wallet, txn model.Transaction) (Candidate, error) {
	if !txn.IsSpend() {
		return Candidate{}, common.NewDataError(txn.ID, common.ErrNonPositiveAmount)
	}

	used := txn.InstrumentUsed()
	if used == "" {
		return Candidate{}, common.NewDataError(txn.ID, common.ErrNoInstrument)
	}

	inst, ok := wallet.Instrument(used)
	if !ok {
		return Candidate{}, common.NewDataError(txn.ID,
			fmt.Errorf("%w: %s", common.ErrUnknownInstrument, used))
	}

	return Evaluate(inst, txn), nil
}

// Estimator produces the estimation fields for transactions.
type Estimator struct {
	logger           *slog.Logger
	now              func() time.Time
	MaterialityCents int64
}

// NewEstimator creates an estimator with the given materiality threshold.
func NewEstimator(materialityCents int64, logger *slog.Logger) *Estimator {
	if materialityCents < 0 {
		materialityCents = DefaultMaterialityCents
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		MaterialityCents: materialityCents,
		logger:           logger,
		now:              time.Now,
	}
}

// Result is the outcome of estimating one transaction.
type Result struct {
	Err        error // DataError for unestimated transactions
	Earned     *Candidate
	Best       *Candidate
	Estimation model.Estimation
	RawDelta   int64
	Violation  bool
}

// Estimated reports whether an earned value was computed.
func (r Result) Estimated() bool {
	return r.Earned != nil
}

// Estimate computes earned, best and missed values against a wallet snapshot.
func (e *Estimator) Estimate(wallet model.Wallet, txn model.Transaction) Result {
	result := Result{Estimation: model.Estimation{EstimatedAt: e.now().UTC()}}

	earned, err := Earned(wallet, txn)
	if err != nil {
		result.Err = err
		return result
	}
	result.Earned = &earned

	points := earned.Valuation.Points
	value := earned.Valuation.ValueCents
	result.Estimation.EarnedPoints = &points
	result.Estimation.EarnedValueCents = &value

	best := Best(wallet, txn)
	result.Best = best
	if best == nil {
		return result
	}

	result.RawDelta = best.Valuation.ValueCents - value
	missed := result.RawDelta
	if missed < 0 {
		result.Violation = true
		violation := &common.InvariantViolation{
			Err:    common.ErrNegativeDelta,
			Detail: fmt.Sprintf("transaction %s best %d earned %d", txn.ID, best.Valuation.ValueCents, value),
		}
		e.logger.Error("Clamped negative missed value",
			"transaction_id", txn.ID,
			"error", violation)
		missed = 0
	}

	if missed <= e.MaterialityCents || best.Instrument.ID == earned.Instrument.ID {
		return result
	}

	bestID := best.Instrument.ID
	result.Estimation.BestInstrumentID = &bestID
	result.Estimation.MissedValueCents = missed
	return result
}
