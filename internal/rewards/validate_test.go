package rewards

import (
	"testing"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInstrument(t *testing.T) {
	tests := []struct {
		name    string
		inst    model.Instrument
		wantErr bool
	}{
		{name: "valid", inst: instrument("c1", "1", "0.01", rule("r1", "Dining", "3"))},
		{name: "zero multipliers are allowed", inst: instrument("c1", "0", "0")},
		{name: "empty id", inst: instrument(" ", "1", "0.01"), wantErr: true},
		{name: "negative base", inst: instrument("c1", "-1", "0.01"), wantErr: true},
		{name: "negative point value", inst: instrument("c1", "1", "-0.01"), wantErr: true},
		{name: "rule without category", inst: instrument("c1", "1", "0.01", rule("r1", "", "2")), wantErr: true},
		{name: "negative rule multiplier", inst: instrument("c1", "1", "0.01", rule("r1", "Dining", "-2")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstrument(tt.inst)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, common.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestValidateWallet(t *testing.T) {
	require.NoError(t, ValidateWallet(cardWallet()))
	require.NoError(t, ValidateWallet(model.Wallet{ID: "empty"}))

	dup := model.Wallet{
		ID: "w1",
		Instruments: []model.Instrument{
			instrument("card-a", "1", "0.01"),
			instrument("card-a", "2", "0.01"),
		},
	}
	err := ValidateWallet(dup)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
	assert.Contains(t, err.Error(), "card-a")
}
