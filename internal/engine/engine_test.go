package engine

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/categorize"
	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/opportunity"
	"github.com/Veraticus/the-points-must-flow/internal/recommend"
	"github.com/Veraticus/the-points-must-flow/internal/service"
	"github.com/Veraticus/the-points-must-flow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func cardWallet(walletID string) model.Wallet {
	return testutil.NewWalletBuilder(walletID).
		WithCard(walletID+"-card-a", "1", "0.01", testutil.Rule("Dining", "4")).
		WithCard(walletID+"-card-b", "1", "0.01", testutil.Rule("Travel", "3")).
		Build()
}

// seedScenario stores a two-card wallet with a missed dining charge, an
// optimal dining charge, an unlinked charge and a refund.
func seedScenario(t *testing.T, db *testutil.TestDB, walletID string) {
	t.Helper()
	db.SeedWallet(cardWallet(walletID))
	day := testNow.AddDate(0, 0, -10)
	db.SeedTransactions(
		testutil.Spend(walletID+"-t1", walletID, "Bistro", "Dining", 10000, day, walletID+"-card-b"),
		testutil.Spend(walletID+"-t2", walletID, "Cafe", "Dining", 5000, day.AddDate(0, 0, 1), walletID+"-card-a"),
		testutil.Spend(walletID+"-t3", walletID, "Corner Shop", "Groceries", 2500, day.AddDate(0, 0, 2), ""),
		testutil.Spend(walletID+"-t4", walletID, "Bistro", "Dining", -2000, day.AddDate(0, 0, 3), walletID+"-card-b"),
	)
}

func newTestEngine(t *testing.T, repo service.Repository, deps Dependencies, config Config) *Engine {
	t.Helper()
	deps.Repository = repo
	e, err := NewWithConfig(deps, config)
	require.NoError(t, err)
	e.now = func() time.Time { return testNow }
	t.Cleanup(e.Close)
	return e
}

func TestNew_RequiresRepository(t *testing.T) {
	_, err := New(Dependencies{})
	require.Error(t, err)
}

func TestEngine_RecomputeForWallet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedScenario(t, db, "w1")
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())

	var calls []int
	report, err := e.RecomputeForWallet(context.Background(), "w1", func(done, _ int) {
		calls = append(calls, done)
	})
	require.NoError(t, err)

	assert.Equal(t, BatchReport{
		WalletID:    "w1",
		Total:       4,
		Estimated:   2,
		Unestimated: 2,
		Skipped:     2,
	}, report)
	assert.Equal(t, []int{1, 2, 3, 4}, calls)

	missed := db.MustGetTransaction("w1-t1")
	require.NotNil(t, missed.Estimation.EarnedValueCents)
	assert.Equal(t, int64(100), *missed.Estimation.EarnedValueCents)
	require.NotNil(t, missed.Estimation.BestInstrumentID)
	assert.Equal(t, "w1-card-a", *missed.Estimation.BestInstrumentID)
	assert.Equal(t, int64(300), missed.Estimation.MissedValueCents)

	optimal := db.MustGetTransaction("w1-t2")
	require.NotNil(t, optimal.Estimation.EarnedValueCents)
	assert.Equal(t, int64(200), *optimal.Estimation.EarnedValueCents)
	assert.Nil(t, optimal.Estimation.BestInstrumentID)
	assert.Zero(t, optimal.Estimation.MissedValueCents)

	unlinked := db.MustGetTransaction("w1-t3")
	assert.False(t, unlinked.Estimation.IsEstimated())
	assert.Nil(t, unlinked.Estimation.EarnedPoints)
}

func TestEngine_RecomputeIsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedScenario(t, db, "w1")
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())
	ctx := context.Background()

	_, err := e.RecomputeForWallet(ctx, "w1", nil)
	require.NoError(t, err)
	first, err := db.Storage.ListTransactions(ctx, "w1", model.DateRange{})
	require.NoError(t, err)

	report, err := e.RecomputeForWallet(ctx, "w1", nil)
	require.NoError(t, err)
	second, err := db.Storage.ListTransactions(ctx, "w1", model.DateRange{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Skipped)
	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, first[i].Estimation.Equal(second[i].Estimation), first[i].ID)
	}
}

func TestEngine_WalletChangeOverwritesEstimation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedScenario(t, db, "w1")
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())
	ctx := context.Background()

	_, err := e.RecomputeForWallet(ctx, "w1", nil)
	require.NoError(t, err)

	_, err = e.AddRewardRule(ctx, "w1", "w1-card-b", testutil.Rule("Dining", "5"))
	require.NoError(t, err)
	_, err = e.RecomputeForWallet(ctx, "w1", nil)
	require.NoError(t, err)

	txn := db.MustGetTransaction("w1-t1")
	assert.Equal(t, int64(500), *txn.Estimation.EarnedValueCents)
	assert.Nil(t, txn.Estimation.BestInstrumentID)
	assert.Zero(t, txn.Estimation.MissedValueCents)
}

func TestEngine_EmptyWallet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedTransactions(testutil.Spend("t1", "empty", "Bistro", "Dining", 10000, testNow, "ghost-card"))
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())

	report, err := e.RecomputeForWallet(context.Background(), "empty", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unestimated)
	assert.Zero(t, report.Estimated)

	txn := db.MustGetTransaction("t1")
	assert.Nil(t, txn.Estimation.EarnedValueCents)
	assert.Nil(t, txn.Estimation.BestInstrumentID)
	assert.Zero(t, txn.Estimation.MissedValueCents)
}

func TestEngine_Estimate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedScenario(t, db, "w1")
	seedScenario(t, db, "w2")
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())

	reports, err := e.Estimate(context.Background(), []string{"w2-t1", "w1-t1", "w1-t3", "missing"})
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, "w1", reports[0].WalletID)
	assert.Equal(t, 2, reports[0].Total)
	assert.Equal(t, 1, reports[0].Estimated)
	assert.Equal(t, "w2", reports[1].WalletID)
	assert.Equal(t, 1, reports[1].Total)

	assert.Equal(t, int64(300), db.MustGetTransaction("w2-t1").Estimation.MissedValueCents)
	assert.Nil(t, db.MustGetTransaction("w2-t2").Estimation.EarnedValueCents)
}

// brokenWalletRepo fails to load one wallet.
type brokenWalletRepo struct {
	service.Repository
	broken string
}

func (r *brokenWalletRepo) ListInstruments(ctx context.Context, walletID string) ([]model.Instrument, error) {
	if walletID == r.broken {
		return nil, common.ErrDatabaseCorrupted
	}
	return r.Repository.ListInstruments(ctx, walletID)
}

func TestEngine_RecomputeWallets(t *testing.T) {
	db := testutil.SetupTestDB(t)
	for _, id := range []string{"w1", "w2", "w3"} {
		seedScenario(t, db, id)
	}
	repo := &brokenWalletRepo{Repository: db.Storage, broken: "w2"}
	e := newTestEngine(t, repo, Dependencies{}, Config{Workers: 2})

	var last, lastTotal int
	reports, err := e.RecomputeWallets(context.Background(), nil, func(done, total int) {
		last, lastTotal = done, total
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDatabaseCorrupted)
	require.Len(t, reports, 3)
	assert.Equal(t, "w1", reports[0].WalletID)
	assert.NoError(t, reports[0].Err)
	assert.Equal(t, 2, reports[0].Estimated)
	assert.ErrorIs(t, reports[1].Err, common.ErrDatabaseCorrupted)
	assert.NoError(t, reports[2].Err)
	assert.Equal(t, 12, lastTotal)
	assert.Equal(t, 12, last, "a failed wallet still counts as finished")

	assert.Equal(t, int64(300), db.MustGetTransaction("w3-t1").Estimation.MissedValueCents)
	assert.Nil(t, db.MustGetTransaction("w2-t1").Estimation.EarnedValueCents)
}

func TestEngine_RecomputeWallets_ProgressNeverDecreases(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedScenario(t, db, "w1")
	seedScenario(t, db, "w2")
	e := newTestEngine(t, db.Storage, Dependencies{}, Config{Workers: 1})

	var percents []int
	var totals []int
	_, err := e.RecomputeWallets(context.Background(), []string{"w1", "w2"}, func(done, total int) {
		totals = append(totals, total)
		if total > 0 {
			percents = append(percents, done*100/total)
		}
	})
	require.NoError(t, err)

	require.NotEmpty(t, percents)
	assert.Equal(t, 0, percents[0])
	assert.Equal(t, 100, percents[len(percents)-1])
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1], "progress went from %d to %d", percents[i-1], percents[i])
	}
	for _, total := range totals {
		assert.Equal(t, 8, total)
	}
}

func TestEngine_RecomputeCanceled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedScenario(t, db, "w1")
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	report, err := e.RecomputeForWallet(ctx, "w1", func(done, _ int) {
		if done == 1 {
			cancel()
		}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Estimated)
}

type failingClient struct {
	calls int
}

func (f *failingClient) Categorize(_ context.Context, _ []categorize.Request) (categorize.Response, error) {
	f.calls++
	return categorize.Response{}, &common.ExternalServiceError{
		Service: "categorizer",
		Err:     common.ErrCategorizerUnavailable,
	}
}

func TestEngine_CategorizeUncategorized_FailingCategorizer(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedWallet(cardWallet("w1"))
	db.SeedTransactions(
		testutil.Spend("t1", "w1", "Starbucks", "", 650, testNow, "w1-card-a"),
		testutil.Spend("t2", "w1", "Whole Foods Market", "", 8200, testNow.Add(time.Hour), "w1-card-a"),
		testutil.Spend("t3", "w1", "Mystery Vendor", "", 1200, testNow.Add(2*time.Hour), "w1-card-b"),
	)

	client := &failingClient{}
	gateway := categorize.NewGateway(categorize.Config{Client: client})
	e := newTestEngine(t, db.Storage, Dependencies{Categorizer: gateway}, Config{BatchSize: 2})

	report, err := e.CategorizeUncategorized(context.Background(), "w1")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Categorized)
	assert.Zero(t, report.Failed)
	assert.Equal(t, model.ModeFailsafe, report.Mode)
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, 2, report.BySource[model.SourceFailsafe])
	assert.Equal(t, 1, report.BySource[model.SourceFailsafe+"_default"])
	assert.Equal(t, model.ModeFailsafe, e.CategorizerStatus().Mode)

	remaining, err := db.Storage.ListUncategorized(context.Background(), "w1", 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	coffee := db.MustGetTransaction("t1")
	assert.Equal(t, "Dining", coffee.CategoryName())
	assert.Equal(t, model.SourceFailsafe, coffee.CategorySource)
	assert.InDelta(t, categorize.FailsafeConfidence, coffee.CategoryConfidence, 1e-9)
	assert.Contains(t, coffee.CategoryReason, "categorizer unavailable")

	unknown := db.MustGetTransaction("t3")
	assert.Equal(t, categorize.DefaultCategoryName, unknown.CategoryName())
}

func TestEngine_CategorizeAndEstimate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedWallet(cardWallet("w1"))
	db.SeedTransactions(testutil.Spend("t1", "w1", "Olive Garden Restaurant", "", 10000, testNow, "w1-card-b"))
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())

	out, err := e.CategorizeAndEstimate(context.Background(), "w1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Categorized.Categorized)
	assert.Equal(t, model.ModeDegradedFallback, out.Categorized.Mode)
	assert.Equal(t, 1, out.Estimated.Estimated)

	txn := db.MustGetTransaction("t1")
	assert.Equal(t, "Dining", txn.CategoryName())
	assert.Equal(t, int64(300), txn.Estimation.MissedValueCents)
}

func TestEngine_GetTopOpportunities(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedScenario(t, db, "w1")
	db.SeedTransactions(
		testutil.Spend("w1-t5", "w1", "Airline", "Travel", 20000, testNow.AddDate(0, 0, -5), "w1-card-a"),
		testutil.Spend("w1-old", "w1", "Bistro", "Dining", 90000, testNow.AddDate(-1, 0, 0), "w1-card-b"),
	)
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())

	summary, err := e.GetTopOpportunities(context.Background(), "w1", OpportunityQuery{GroupBy: opportunity.GroupByCategory})
	require.NoError(t, err)

	require.Len(t, summary.Opportunities, 2)
	assert.Equal(t, "Travel", summary.Opportunities[0].Key)
	assert.Equal(t, int64(400), summary.Opportunities[0].TotalMissedCents)
	assert.Equal(t, "w1-card-b", summary.Opportunities[0].RecommendedInstrumentID)
	assert.Equal(t, "Dining", summary.Opportunities[1].Key)
	assert.Equal(t, int64(300), summary.Opportunities[1].TotalMissedCents)
	assert.Equal(t, []string{"Bistro"}, summary.Opportunities[1].SampleMerchants)
	assert.Equal(t, int64(700), summary.TotalMissedCents)

	t.Run("read only", func(t *testing.T) {
		assert.Nil(t, db.MustGetTransaction("w1-t1").Estimation.EarnedValueCents)
	})

	t.Run("explicit window and top k", func(t *testing.T) {
		window := model.DateRange{Start: testNow.AddDate(-2, 0, 0), End: testNow}
		summary, err := e.GetTopOpportunities(context.Background(), "w1", OpportunityQuery{
			Window: &window,
			TopK:   1,
		})
		require.NoError(t, err)
		require.Len(t, summary.Opportunities, 1)
		assert.Equal(t, "Dining", summary.Opportunities[0].Key)
		assert.Equal(t, int64(300+2700), summary.Opportunities[0].TotalMissedCents)
	})
}

func TestEngine_GetRecurring(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedWallet(cardWallet("w1"))
	db.SeedTransactions(
		testutil.Spend("g1", "w1", "Pilates Loft", "Wellness", 4999, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), "w1-card-a"),
		testutil.Spend("g2", "w1", "Pilates Loft", "Wellness", 4999, time.Date(2024, 4, 4, 0, 0, 0, 0, time.UTC), "w1-card-a"),
		testutil.Spend("g3", "w1", "Pilates Loft", "Wellness", 4999, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), "w1-card-a"),
		testutil.Spend("o1", "w1", "Bistro", "Dining", 3000, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), "w1-card-a"),
	)
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())

	subs, err := e.GetRecurring(context.Background(), "w1", 0)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, model.FrequencyMonthly, subs[0].Frequency)
	assert.Equal(t, "Wellness", subs[0].Category)
	assert.Equal(t, 3, subs[0].Count)

	subs, err = e.GetRecurring(context.Background(), "w1", 2)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestEngine_RecommendBest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedWallet(cardWallet("w1"))
	e := newTestEngine(t, db.Storage, Dependencies{}, DefaultConfig())
	ctx := context.Background()

	rec := e.RecommendBest(ctx, "w1", "Dining")
	assert.Equal(t, recommend.StatusOK, rec.Status)
	require.NotNil(t, rec.Owned)
	assert.Equal(t, "w1-card-a", rec.Owned.InstrumentID)

	t.Run("instrument writes invalidate the cache", func(t *testing.T) {
		inst := testutil.NewWalletBuilder("w1").
			WithCard("w1-card-c", "1", "0.02", testutil.Rule("Dining", "3")).
			Build().Instruments[0]
		require.NoError(t, e.SaveInstrument(ctx, inst))

		rec := e.RecommendBest(ctx, "w1", "Dining")
		require.NotNil(t, rec.Owned)
		assert.Equal(t, "w1-card-c", rec.Owned.InstrumentID)
	})

	t.Run("invalid instrument rejected", func(t *testing.T) {
		inst := testutil.NewWalletBuilder("w1").WithCard("bad", "-1", "0.01").Build().Instruments[0]
		err := e.SaveInstrument(ctx, inst)
		assert.True(t, common.IsValidation(err))
	})
}

func TestEngine_InvalidWalletRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedScenario(t, db, "w1")
	repo := &duplicateInstrumentRepo{Repository: db.Storage}
	e := newTestEngine(t, repo, Dependencies{}, DefaultConfig())

	report, err := e.RecomputeForWallet(context.Background(), "w1", nil)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
	assert.Zero(t, report.Estimated)
	assert.Nil(t, db.MustGetTransaction("w1-t1").Estimation.EarnedValueCents)
}

// duplicateInstrumentRepo returns every instrument twice.
type duplicateInstrumentRepo struct {
	service.Repository
}

func (r *duplicateInstrumentRepo) ListInstruments(ctx context.Context, walletID string) ([]model.Instrument, error) {
	instruments, err := r.Repository.ListInstruments(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return append(instruments, instruments...), nil
}

