// Package opportunity aggregates per-transaction missed value into ranked
// summaries by category, merchant or month.
package opportunity

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/rewards"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GroupBy selects the aggregation key.
type GroupBy string

// Grouping keys.
const (
	GroupByCategory GroupBy = "category"
	GroupByMerchant GroupBy = "merchant"
	GroupByMonth    GroupBy = "month"
)

// UncategorizedKey groups transactions without a category.
const UncategorizedKey = "Uncategorized"

// DefaultSampleSize is the number of sample merchants kept per group.
const DefaultSampleSize = 3

// ParseGroupBy converts user input to a GroupBy.
func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(strings.ToLower(strings.TrimSpace(s))) {
	case GroupByCategory, "":
		return GroupByCategory, nil
	case GroupByMerchant:
		return GroupByMerchant, nil
	case GroupByMonth:
		return GroupByMonth, nil
	default:
		return "", common.NewValidationError("group by", s, "must be category, merchant or month")
	}
}

// Delta is the comparison of one transaction against the best instrument.
type Delta struct {
	Date             time.Time
	EarnedValueCents *int64 // nil for unestimated transactions
	BestMultiplier   decimal.Decimal
	TransactionID    string
	Merchant         string
	Category         string
	UsedInstrumentID string
	BestInstrumentID string
	BestValueCents   int64
}

// NewDelta builds a Delta from an estimation result.
func NewDelta(txn model.Transaction, res rewards.Result) Delta {
	d := Delta{
		TransactionID:    txn.ID,
		Merchant:         txn.MerchantName,
		Category:         txn.CategoryName(),
		Date:             txn.Date,
		UsedInstrumentID: txn.InstrumentUsed(),
		EarnedValueCents: res.Estimation.EarnedValueCents,
	}
	if res.Best != nil {
		d.BestInstrumentID = res.Best.Instrument.ID
		d.BestValueCents = res.Best.Valuation.ValueCents
		d.BestMultiplier = res.Best.Match.Multiplier
	}
	return d
}

// Options controls a single aggregation.
type Options struct {
	Window  *model.DateRange // nil means all deltas
	GroupBy GroupBy
	TopK    int // 0 returns every group
}

// MonthlyTotal is the missed value for one calendar month.
type MonthlyTotal struct {
	Month       string
	MissedCents int64
	Count       int
}

// Summary is the result of an aggregation.
type Summary struct {
	Opportunities    []model.Opportunity
	Trend            []MonthlyTotal
	TotalMissedCents int64
	Considered       int
	Excluded         int
	Violations       int
}

// Aggregator ranks missed opportunities.
type Aggregator struct {
	logger      *slog.Logger
	Materiality int64
	SampleSize  int
}

// NewAggregator creates an aggregator. Non-positive sample sizes use the default.
func NewAggregator(materialityCents int64, sampleSize int, logger *slog.Logger) *Aggregator {
	if materialityCents < 0 {
		materialityCents = rewards.DefaultMaterialityCents
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		Materiality: materialityCents,
		SampleSize:  sampleSize,
		logger:      logger,
	}
}

type group struct {
	counts      map[string]int
	categories  map[string]int
	multipliers map[string]decimal.Decimal
	seen        map[string]struct{}
	key         string
	samples     []string
	missed      int64
	count       int
}

// Aggregate groups material deltas and ranks them by cumulative missed value.
func (a *Aggregator) Aggregate(deltas []Delta, opts Options) Summary {
	var summary Summary
	if len(deltas) == 0 {
		return summary
	}

	groups := make(map[string]*group)
	trend := make(map[string]*MonthlyTotal)

	for _, d := range deltas {
		if opts.Window != nil && !opts.Window.Contains(d.Date) {
			summary.Excluded++
			continue
		}
		missed, ok := a.missed(d, &summary)
		if !ok {
			summary.Excluded++
			continue
		}
		summary.Considered++
		summary.TotalMissedCents += missed

		key := groupKey(d, opts.GroupBy)
		g, exists := groups[key]
		if !exists {
			g = &group{
				key:         key,
				counts:      make(map[string]int),
				categories:  make(map[string]int),
				multipliers: make(map[string]decimal.Decimal),
				seen:        make(map[string]struct{}),
			}
			groups[key] = g
		}
		g.missed += missed
		g.count++
		g.counts[d.BestInstrumentID]++
		g.multipliers[d.BestInstrumentID] = g.multipliers[d.BestInstrumentID].Add(d.BestMultiplier)
		g.categories[categoryKey(d.Category)]++

		merchant := strings.TrimSpace(d.Merchant)
		if _, dup := g.seen[merchant]; merchant != "" && !dup && len(g.samples) < a.SampleSize {
			g.seen[merchant] = struct{}{}
			g.samples = append(g.samples, merchant)
		}

		month := d.Date.Format("2006-01")
		m, exists := trend[month]
		if !exists {
			m = &MonthlyTotal{Month: month}
			trend[month] = m
		}
		m.MissedCents += missed
		m.Count++
	}

	summary.Opportunities = make([]model.Opportunity, 0, len(groups))
	for _, g := range groups {
		summary.Opportunities = append(summary.Opportunities, model.Opportunity{
			Key:                     g.key,
			Category:                g.category(),
			RecommendedInstrumentID: g.recommended(),
			SampleMerchants:         g.samples,
			TotalMissedCents:        g.missed,
			TransactionCount:        g.count,
		})
	}
	sort.Slice(summary.Opportunities, func(i, j int) bool {
		oi, oj := summary.Opportunities[i], summary.Opportunities[j]
		if oi.TotalMissedCents != oj.TotalMissedCents {
			return oi.TotalMissedCents > oj.TotalMissedCents
		}
		return oi.Key < oj.Key
	})
	if opts.TopK > 0 && len(summary.Opportunities) > opts.TopK {
		summary.Opportunities = summary.Opportunities[:opts.TopK]
	}

	summary.Trend = make([]MonthlyTotal, 0, len(trend))
	for _, m := range trend {
		summary.Trend = append(summary.Trend, *m)
	}
	sort.Slice(summary.Trend, func(i, j int) bool {
		return summary.Trend[i].Month < summary.Trend[j].Month
	})

	return summary
}

// missed returns the material missed value for a delta, or false when the
// delta must be excluded.
func (a *Aggregator) missed(d Delta, summary *Summary) (int64, bool) {
	if d.EarnedValueCents == nil || d.BestInstrumentID == "" {
		return 0, false
	}
	if d.BestInstrumentID == d.UsedInstrumentID {
		return 0, false
	}

	missed := d.BestValueCents - *d.EarnedValueCents
	if missed < 0 {
		summary.Violations++
		a.logger.Error("Clamped negative opportunity delta",
			"transaction_id", d.TransactionID,
			"error", &common.InvariantViolation{
				Err:    common.ErrNegativeDelta,
				Detail: fmt.Sprintf("best %d earned %d", d.BestValueCents, *d.EarnedValueCents),
			})
		return 0, false
	}
	if missed <= a.Materiality {
		return 0, false
	}
	return missed, true
}

// recommended is the most frequent best instrument. Ties prefer the highest
// average multiplier, then the lowest ID.
func (g *group) recommended() string {
	var bestID string
	var bestCount int
	var bestAvg decimal.Decimal

	for id, count := range g.counts {
		avg := g.multipliers[id].Div(decimal.NewFromInt(int64(count)))
		switch {
		case bestID == "",
			count > bestCount,
			count == bestCount && avg.GreaterThan(bestAvg),
			count == bestCount && avg.Equal(bestAvg) && id < bestID:
			bestID, bestCount, bestAvg = id, count, avg
		}
	}
	return bestID
}

// category is the most frequent category in the group, ties broken by name.
func (g *group) category() string {
	var best string
	var bestCount int
	for name, count := range g.categories {
		if count > bestCount || (count == bestCount && name < best) {
			best, bestCount = name, count
		}
	}
	return best
}

func categoryKey(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return UncategorizedKey
	}
	return cases.Title(language.English).String(category)
}

func groupKey(d Delta, by GroupBy) string {
	switch by {
	case GroupByMerchant:
		merchant := strings.TrimSpace(d.Merchant)
		if merchant == "" {
			return "Unknown Merchant"
		}
		return merchant
	case GroupByMonth:
		return d.Date.Format("2006-01")
	default:
		return categoryKey(d.Category)
	}
}
