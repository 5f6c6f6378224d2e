package rewards

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
)

// ValidateInstrument rejects malformed instrument data. Nothing is coerced.
func ValidateInstrument(inst model.Instrument) error {
	if strings.TrimSpace(inst.ID) == "" {
		return common.NewValidationError("instrument id", "", "must not be empty")
	}
	if inst.BaseMultiplier.IsNegative() {
		return common.NewValidationError("base multiplier", inst.BaseMultiplier.String(),
			fmt.Sprintf("instrument %s: must not be negative", inst.ID))
	}
	if inst.PointValue.IsNegative() {
		return common.NewValidationError("point value", inst.PointValue.String(),
			fmt.Sprintf("instrument %s: must not be negative", inst.ID))
	}
	for _, rule := range inst.Rules {
		if err := ValidateRule(rule); err != nil {
			return fmt.Errorf("instrument %s: %w", inst.ID, err)
		}
	}
	return nil
}

// ValidateRule rejects a rule with no category or a negative multiplier.
func ValidateRule(rule model.RewardRule) error {
	if strings.TrimSpace(rule.Category) == "" {
		return common.NewValidationError("rule category", "", "must not be empty")
	}
	if rule.Multiplier.IsNegative() {
		return common.NewValidationError("rule multiplier", rule.Multiplier.String(), "must not be negative")
	}
	return nil
}

// ValidateWallet validates every instrument and rejects duplicate IDs.
func ValidateWallet(wallet model.Wallet) error {
	seen := make(map[string]struct{}, len(wallet.Instruments))
	for _, inst := range wallet.Instruments {
		if err := ValidateInstrument(inst); err != nil {
			return err
		}
		if _, dup := seen[inst.ID]; dup {
			return common.NewValidationError("instrument id", inst.ID, "duplicated in wallet")
		}
		seen[inst.ID] = struct{}{}
	}
	return nil
}
