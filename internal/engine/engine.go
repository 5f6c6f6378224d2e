// Package engine orchestrates categorization, reward estimation and the
// insight queries built on top of them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/categorize"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/opportunity"
	"github.com/Veraticus/the-points-must-flow/internal/recommend"
	"github.com/Veraticus/the-points-must-flow/internal/recurring"
	"github.com/Veraticus/the-points-must-flow/internal/rewards"
	"github.com/Veraticus/the-points-must-flow/internal/service"
)

// Config holds configuration options for the engine.
type Config struct {
	BatchSize     int // categorizer batch size
	Workers       int // wallets recomputed in parallel
	TopK          int
	WindowDays    int // default opportunity window, 0 for all history
	MergeDistance int // fuzzy merchant merge for recurring detection
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:  50,
		Workers:    4,
		TopK:       5,
		WindowDays: 90,
	}
}

// Dependencies are the collaborators of an Engine. Only Repository is
// required; the rest fall back to defaults.
type Dependencies struct {
	Repository  service.Repository
	Categorizer Categorizer
	Recommender Recommender
	Estimator   *rewards.Estimator
	Aggregator  *opportunity.Aggregator
	Detector    *recurring.Detector
	Logger      *slog.Logger
}

// Engine runs the estimation pipeline over persisted wallets.
type Engine struct {
	repo        service.Repository
	categorizer Categorizer
	recommender Recommender
	estimator   *rewards.Estimator
	aggregator  *opportunity.Aggregator
	detector    *recurring.Detector
	logger      *slog.Logger
	now         func() time.Time
	closer      func()
	config      Config
}

// New creates an engine with the default configuration.
func New(deps Dependencies) (*Engine, error) {
	return NewWithConfig(deps, DefaultConfig())
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(deps Dependencies, config Config) (*Engine, error) {
	if deps.Repository == nil {
		return nil, errors.New("engine requires a repository")
	}

	defaults := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.TopK < 0 {
		config.TopK = defaults.TopK
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		repo:        deps.Repository,
		categorizer: deps.Categorizer,
		recommender: deps.Recommender,
		estimator:   deps.Estimator,
		aggregator:  deps.Aggregator,
		detector:    deps.Detector,
		logger:      logger,
		now:         time.Now,
		closer:      func() {},
		config:      config,
	}
	if e.categorizer == nil {
		e.categorizer = categorize.NewGateway(categorize.Config{Logger: logger})
	}
	if e.recommender == nil {
		owned := recommend.New(deps.Repository, recommend.Options{}, logger)
		e.recommender = owned
		e.closer = owned.Close
	}
	if e.estimator == nil {
		e.estimator = rewards.NewEstimator(rewards.DefaultMaterialityCents, logger)
	}
	if e.aggregator == nil {
		e.aggregator = opportunity.NewAggregator(e.estimator.MaterialityCents, 0, logger)
	}
	if e.detector == nil {
		e.detector = recurring.NewDetector(recurring.DefaultLookbackMonths, config.MergeDistance, logger)
	}
	return e, nil
}

// Close releases resources the engine created itself.
func (e *Engine) Close() {
	e.closer()
}

// CategorizerStatus reports the current categorizer mode.
func (e *Engine) CategorizerStatus() model.CategorizerStatus {
	return e.categorizer.Status()
}

// Wallet loads and validates a wallet snapshot.
func (e *Engine) Wallet(ctx context.Context, walletID string) (model.Wallet, error) {
	instruments, err := e.repo.ListInstruments(ctx, walletID)
	if err != nil {
		return model.Wallet{}, fmt.Errorf("failed to load wallet %s: %w", walletID, err)
	}
	wallet := model.Wallet{ID: walletID, Instruments: instruments}
	if err := rewards.ValidateWallet(wallet); err != nil {
		return model.Wallet{}, fmt.Errorf("wallet %s: %w", walletID, err)
	}
	return wallet, nil
}

// SaveInstrument validates and stores an instrument, dropping any cached
// snapshot of its wallet.
func (e *Engine) SaveInstrument(ctx context.Context, inst model.Instrument) error {
	if err := rewards.ValidateInstrument(inst); err != nil {
		return err
	}
	if err := e.repo.SaveInstrument(ctx, inst); err != nil {
		return err
	}
	e.recommender.Invalidate(inst.WalletID)
	return nil
}

// AddRewardRule validates and appends a rule to an instrument.
func (e *Engine) AddRewardRule(ctx context.Context, walletID, instrumentID string, rule model.RewardRule) (model.RewardRule, error) {
	if err := rewards.ValidateRule(rule); err != nil {
		return model.RewardRule{}, err
	}
	saved, err := e.repo.AddRewardRule(ctx, instrumentID, rule)
	if err != nil {
		return model.RewardRule{}, err
	}
	e.recommender.Invalidate(walletID)
	return saved, nil
}

// RecommendBest returns the best owned instrument for a category.
func (e *Engine) RecommendBest(ctx context.Context, walletID, category string) recommend.Recommendation {
	return e.recommender.Best(ctx, walletID, category)
}

// OpportunityQuery selects the transactions and grouping for GetTopOpportunities.
type OpportunityQuery struct {
	Window  *model.DateRange // nil uses the configured window
	GroupBy opportunity.GroupBy
	TopK    int // 0 uses the configured default
}

// GetTopOpportunities ranks missed value for a wallet. Deltas are recomputed
// from the current wallet snapshot; nothing is written.
func (e *Engine) GetTopOpportunities(ctx context.Context, walletID string, query OpportunityQuery) (opportunity.Summary, error) {
	wallet, err := e.Wallet(ctx, walletID)
	if err != nil {
		return opportunity.Summary{}, err
	}

	window := model.LastDays(e.now(), e.config.WindowDays)
	if query.Window != nil {
		window = *query.Window
	}
	topK := query.TopK
	if topK <= 0 {
		topK = e.config.TopK
	}

	txns, err := e.repo.ListTransactions(ctx, walletID, window)
	if err != nil {
		return opportunity.Summary{}, fmt.Errorf("failed to load transactions: %w", err)
	}

	deltas := make([]opportunity.Delta, 0, len(txns))
	for _, txn := range txns {
		deltas = append(deltas, opportunity.NewDelta(txn, e.estimator.Estimate(wallet, txn)))
	}

	summary := e.aggregator.Aggregate(deltas, opportunity.Options{
		Window:  &window,
		GroupBy: query.GroupBy,
		TopK:    topK,
	})
	e.logger.Debug("Aggregated opportunities",
		"wallet_id", walletID,
		"considered", summary.Considered,
		"excluded", summary.Excluded,
		"groups", len(summary.Opportunities))
	return summary, nil
}

// GetRecurring detects subscriptions in a wallet's history. A non-positive
// lookback uses the detector default.
func (e *Engine) GetRecurring(ctx context.Context, walletID string, lookbackMonths int) ([]model.Subscription, error) {
	detector := e.detector
	if lookbackMonths > 0 && lookbackMonths != detector.LookbackMonths {
		detector = recurring.NewDetector(lookbackMonths, detector.MergeDistance, e.logger)
	}

	now := e.now()
	window := model.DateRange{Start: now.AddDate(0, -detector.LookbackMonths, 0)}
	txns, err := e.repo.ListTransactions(ctx, walletID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	return detector.Detect(txns, now), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
