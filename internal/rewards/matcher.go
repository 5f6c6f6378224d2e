package rewards

import (
	"strings"

	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/shopspring/decimal"
)

// MatchKind describes how a multiplier was selected.
type MatchKind string

// Match kinds.
const (
	MatchBase      MatchKind = "base"
	MatchExact     MatchKind = "exact"
	MatchSubstring MatchKind = "substring"
)

// Match is the multiplier resolved for one instrument and category.
type Match struct {
	Rule       *model.RewardRule // nil when the base multiplier applies
	Kind       MatchKind
	Multiplier decimal.Decimal
}

// RuleID returns the matched rule ID, or an empty string for the base rate.
func (m Match) RuleID() string {
	if m.Rule == nil {
		return ""
	}
	return m.Rule.ID
}

// MatchRule resolves the multiplier an instrument grants a category.
//
// Exact case-insensitive matches are tried first. Failing that, a rule
// matches when the transaction category contains the rule category. Within
// a pass the highest multiplier wins; equal multipliers keep the first
// declared rule. With no match the base multiplier applies.
func MatchRule(inst model.Instrument, category *string) Match {
	base := Match{Multiplier: inst.BaseMultiplier, Kind: MatchBase}
	if category == nil {
		return base
	}

	txnCategory := normalizeCategory(*category)
	if txnCategory == "" {
		return base
	}

	if rule := bestRule(inst.Rules, func(ruleCategory string) bool {
		return ruleCategory == txnCategory
	}); rule != nil {
		return Match{Multiplier: rule.Multiplier, Rule: rule, Kind: MatchExact}
	}

	if rule := bestRule(inst.Rules, func(ruleCategory string) bool {
		return strings.Contains(txnCategory, ruleCategory)
	}); rule != nil {
		return Match{Multiplier: rule.Multiplier, Rule: rule, Kind: MatchSubstring}
	}

	return base
}

func bestRule(rules []model.RewardRule, matches func(string) bool) *model.RewardRule {
	var best *model.RewardRule
	for i := range rules {
		ruleCategory := normalizeCategory(rules[i].Category)
		if ruleCategory == "" || !matches(ruleCategory) {
			continue
		}
		if best == nil || rules[i].Multiplier.GreaterThan(best.Multiplier) {
			rule := rules[i]
			best = &rule
		}
	}
	return best
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
