// Package recurring detects subscription-like charges in transaction history.
package recurring

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// Detection defaults.
const (
	DefaultLookbackMonths = 12
	MinOccurrences        = 3
	IntervalToleranceDays = 5.0
	DetectionConfidence   = 0.9
	DefaultCategory       = "Subscriptions"
)

// AmountTolerance is the allowed relative deviation of a charge from the average.
var AmountTolerance = decimal.RequireFromString("0.15")

// KnownSubscriptions are merchants allowed to vary in price between charges.
var KnownSubscriptions = []string{
	"netflix", "spotify", "hulu", "disney+", "hbomax", "apple",
	"google storage", "aws", "adobe", "gym", "fitness", "internet",
	"comcast", "verizon", "t-mobile", "at&t",
}

type band struct {
	frequency model.Frequency
	minDays   float64
	maxDays   float64
}

var bands = []band{
	{frequency: model.FrequencyWeekly, minDays: 6, maxDays: 8},
	{frequency: model.FrequencyBiWeekly, minDays: 13, maxDays: 15},
	{frequency: model.FrequencyMonthly, minDays: 25, maxDays: 35},
	{frequency: model.FrequencyYearly, minDays: 350, maxDays: 380},
}

// Detector finds recurring charges.
type Detector struct {
	logger             *slog.Logger
	KnownSubscriptions []string
	LookbackMonths     int
	MergeDistance      int // 0 disables fuzzy merchant merging
}

// NewDetector creates a detector with the default known-subscription list.
func NewDetector(lookbackMonths, mergeDistance int, logger *slog.Logger) *Detector {
	if lookbackMonths <= 0 {
		lookbackMonths = DefaultLookbackMonths
	}
	if mergeDistance < 0 {
		mergeDistance = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		KnownSubscriptions: KnownSubscriptions,
		LookbackMonths:     lookbackMonths,
		MergeDistance:      mergeDistance,
		logger:             logger,
	}
}

// Detect returns the recurring charges found in txns, ordered by next due date.
func (d *Detector) Detect(txns []model.Transaction, now time.Time) []model.Subscription {
	since := now.AddDate(0, -d.LookbackMonths, 0)

	groups := make(map[string][]model.Transaction)
	for _, txn := range txns {
		if !txn.IsSpend() || txn.Date.Before(since) {
			continue
		}
		key := merchantKey(txn.MerchantName)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], txn)
	}
	if d.MergeDistance > 0 {
		groups = d.merge(groups)
	}

	subs := make([]model.Subscription, 0)
	for key, charges := range groups {
		sub, ok := d.detectGroup(key, charges)
		if !ok {
			continue
		}
		subs = append(subs, sub)
	}

	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].NextDue.Equal(subs[j].NextDue) {
			return subs[i].NextDue.Before(subs[j].NextDue)
		}
		return subs[i].Merchant < subs[j].Merchant
	})

	d.logger.Debug("Recurring detection finished",
		"groups", len(groups),
		"subscriptions", len(subs))
	return subs
}

func (d *Detector) detectGroup(key string, charges []model.Transaction) (model.Subscription, bool) {
	if len(charges) < MinOccurrences {
		return model.Subscription{}, false
	}

	sort.SliceStable(charges, func(i, j int) bool {
		return charges[i].Date.Before(charges[j].Date)
	})

	var total int64
	for _, c := range charges {
		total += c.AmountCents
	}
	avgAmount := decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(len(charges))))

	if !d.isKnown(key) {
		for _, c := range charges {
			deviation := decimal.NewFromInt(c.AmountCents).Sub(avgAmount).Abs().Div(avgAmount)
			if deviation.GreaterThan(AmountTolerance) {
				return model.Subscription{}, false
			}
		}
	}

	intervals := make([]float64, 0, len(charges)-1)
	var sum float64
	for i := 1; i < len(charges); i++ {
		days := math.Ceil(charges[i].Date.Sub(charges[i-1].Date).Hours() / 24)
		intervals = append(intervals, days)
		sum += days
	}
	avgInterval := sum / float64(len(intervals))
	for _, days := range intervals {
		if math.Abs(days-avgInterval) > IntervalToleranceDays {
			return model.Subscription{}, false
		}
	}

	frequency, ok := classify(avgInterval)
	if !ok {
		return model.Subscription{}, false
	}

	last := charges[len(charges)-1]
	category := strings.TrimSpace(last.CategoryName())
	if category == "" {
		category = DefaultCategory
	}

	return model.Subscription{
		Merchant:           strings.TrimSpace(last.MerchantName),
		Category:           category,
		Frequency:          frequency,
		AverageAmountCents: avgAmount.Round(0).IntPart(),
		LastPaid:           last.Date,
		NextDue:            last.Date.AddDate(0, 0, int(math.Round(avgInterval))),
		Count:              len(charges),
		Confidence:         DetectionConfidence,
	}, true
}

func (d *Detector) isKnown(key string) bool {
	for _, name := range d.KnownSubscriptions {
		if strings.Contains(key, name) {
			return true
		}
	}
	return false
}

// merge folds merchant keys within MergeDistance edits into the key with
// the most charges. Keys shorter than the distance are never merged.
func (d *Detector) merge(groups map[string][]model.Transaction) map[string][]model.Transaction {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(groups[keys[i]]) != len(groups[keys[j]]) {
			return len(groups[keys[i]]) > len(groups[keys[j]])
		}
		return keys[i] < keys[j]
	})

	merged := make(map[string][]model.Transaction, len(groups))
	roots := make([]string, 0, len(keys))
	for _, key := range keys {
		target := key
		if len(key) > d.MergeDistance {
			for _, root := range roots {
				if levenshtein.ComputeDistance(key, root) <= d.MergeDistance {
					target = root
					break
				}
			}
		}
		if target == key {
			roots = append(roots, key)
		}
		merged[target] = append(merged[target], groups[key]...)
	}
	return merged
}

func classify(avgInterval float64) (model.Frequency, bool) {
	for _, b := range bands {
		if avgInterval >= b.minDays && avgInterval <= b.maxDays {
			return b.frequency, true
		}
	}
	return "", false
}

func merchantKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
