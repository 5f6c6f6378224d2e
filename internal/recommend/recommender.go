// Package recommend answers "which card should I use for this category"
// from a cached wallet snapshot within a fixed deadline.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/rewards"
	"github.com/shopspring/decimal"
)

// Defaults for the fast path.
const (
	DefaultTimeout  = 8 * time.Second
	DefaultCacheTTL = time.Minute
)

// Status is the outcome of a recommendation request.
type Status string

// Recommendation statuses.
const (
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
)

// WalletSource loads the instruments of a wallet.
type WalletSource interface {
	ListInstruments(ctx context.Context, walletID string) ([]model.Instrument, error)
}

// OwnedPick is the best instrument the user already holds.
type OwnedPick struct {
	InstrumentID string
	Name         string
	Reason       string
	Multiplier   decimal.Decimal
	ValueRate    decimal.Decimal // currency earned per currency spent
	Matched      bool            // false when only base rates apply
}

// Recommendation is the answer for one category.
type Recommendation struct {
	Owned     *OwnedPick
	Suggested *Suggestion
	Status    Status
	Category  string
	Reason    string // set when unavailable
}

// Options configures a Recommender.
type Options struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Recommender picks the best owned instrument for a category.
type Recommender struct {
	source  WalletSource
	cache   *walletCache
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a Recommender. Call Close to stop the cache janitor.
func New(source WalletSource, opts Options, logger *slog.Logger) *Recommender {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recommender{
		source:  source,
		cache:   newWalletCache(opts.CacheTTL),
		logger:  logger,
		timeout: opts.Timeout,
	}
}

// Close releases background resources.
func (r *Recommender) Close() {
	r.cache.close()
}

// Invalidate drops the cached snapshot of a wallet after it changes.
func (r *Recommender) Invalidate(walletID string) {
	r.cache.invalidate(walletID)
}

// Best returns the best owned instrument for category. It never fails:
// load errors, deadlines and cancellation all yield an unavailable result.
func (r *Recommender) Best(ctx context.Context, walletID, category string) Recommendation {
	if err := ctx.Err(); err != nil {
		return unavailable(category, err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type loaded struct {
		err         error
		instruments []model.Instrument
	}
	ch := make(chan loaded, 1)
	go func() {
		instruments, err := r.instruments(ctx, walletID)
		ch <- loaded{instruments: instruments, err: err}
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("Recommendation deadline exceeded",
			"wallet_id", walletID,
			"category", category,
			"error", ctx.Err())
		return unavailable(category, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			r.logger.Warn("Failed to load wallet for recommendation",
				"wallet_id", walletID,
				"error", res.err)
			return unavailable(category, res.err)
		}
		return recommend(res.instruments, category)
	}
}

func (r *Recommender) instruments(ctx context.Context, walletID string) ([]model.Instrument, error) {
	if cached, ok := r.cache.get(walletID); ok {
		return cached, nil
	}
	instruments, err := r.source.ListInstruments(ctx, walletID)
	if err != nil {
		return nil, err
	}
	r.cache.set(walletID, instruments)
	return instruments, nil
}

func unavailable(category string, err error) Recommendation {
	return Recommendation{
		Status:   StatusUnavailable,
		Category: category,
		Reason:   fmt.Sprintf("recommendation unavailable: %v", err),
	}
}

// recommend compares value per unit spent. Ties prefer the lowest ID.
func recommend(instruments []model.Instrument, category string) Recommendation {
	rec := Recommendation{Status: StatusOK, Category: category}

	var best *OwnedPick
	for _, inst := range instruments {
		match := rewards.MatchRule(inst, &category)
		pick := OwnedPick{
			InstrumentID: inst.ID,
			Name:         inst.DisplayName(),
			Multiplier:   match.Multiplier,
			ValueRate:    rewards.ValueRate(match.Multiplier, inst.PointValue),
			Matched:      match.Kind != rewards.MatchBase,
		}
		if best == nil ||
			pick.ValueRate.GreaterThan(best.ValueRate) ||
			pick.ValueRate.Equal(best.ValueRate) && pick.InstrumentID < best.InstrumentID {
			p := pick
			best = &p
		}
	}

	if best == nil {
		s := suggestFor(category)
		rec.Suggested = &s
		return rec
	}

	if best.Matched {
		best.Reason = fmt.Sprintf("Earns %sx on %s", best.Multiplier.String(), category)
	} else {
		best.Reason = "Base earn rate"
	}
	rec.Owned = best

	if !anyMatched(instruments, category) {
		s := suggestFor(category)
		rec.Suggested = &s
	}
	return rec
}

func anyMatched(instruments []model.Instrument, category string) bool {
	for _, inst := range instruments {
		if rewards.MatchRule(inst, &category).Kind != rewards.MatchBase {
			return true
		}
	}
	return false
}
