package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		category string
		mult     string
		wantErr  bool
	}{
		{name: "simple", spec: "Dining=4", category: "Dining", mult: "4"},
		{name: "fractional", spec: "Online Shopping = 1.5", category: "Online Shopping", mult: "1.5"},
		{name: "missing separator", spec: "Dining", wantErr: true},
		{name: "missing category", spec: "=3", wantErr: true},
		{name: "bad multiplier", spec: "Dining=lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := parseRule(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				var userErr *common.UserError
				assert.ErrorAs(t, err, &userErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.category, rule.Category)
			assert.True(t, rule.Multiplier.Equal(decimal.RequireFromString(tt.mult)))
		})
	}
}

func TestFormatRules(t *testing.T) {
	got := formatRules([]model.RewardRule{
		{Category: "Dining", Multiplier: decimal.NewFromInt(4)},
		{Category: "Travel", Multiplier: decimal.RequireFromString("2.5")},
	})
	assert.Equal(t, "Dining 4x, Travel 2.5x", got)
}

func TestExpandFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"jan.qfx", "feb.qfx", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	files, err := expandFiles([]string{filepath.Join(dir, "*.qfx")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "jan.qfx"), filepath.Join(dir, "feb.qfx")}, files)

	_, err = expandFiles([]string{filepath.Join(dir, "*.ofx")})
	assert.Error(t, err)
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[model.CategorySource]int{
		model.SourceFailsafe: 1,
		model.SourceExternal: 2,
	})
	assert.Equal(t, []string{"external", "failsafe"}, got)
}

func TestSourceShare(t *testing.T) {
	assert.Equal(t, "50%", sourceShare(1, 2))
	assert.Equal(t, "100%", sourceShare(3, 3))
	assert.Equal(t, "0%", sourceShare(0, 0))
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("no such table: transactions")

	assert.Equal(t, "Invalid configuration", errorMessage(common.NewUserError("Invalid configuration", cause)))
	assert.Equal(t, "Invalid configuration",
		errorMessage(fmt.Errorf("startup: %w", common.NewUserError("Invalid configuration", cause))))
	assert.Equal(t, "no such table: transactions", errorMessage(cause))
}
