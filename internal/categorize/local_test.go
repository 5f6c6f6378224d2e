package categorize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalMatcher_Match(t *testing.T) {
	m := MustDefaultMatcher()

	tests := []struct {
		merchant     string
		description  string
		wantCategory string
		wantKeyword  string
	}{
		{merchant: "STARBUCKS #1234", wantCategory: "Dining", wantKeyword: "starbucks"},
		{merchant: "Whole Foods Market", wantCategory: "Groceries", wantKeyword: "whole foods"},
		{merchant: "UBER *TRIP", wantCategory: "Travel", wantKeyword: "uber"},
		{merchant: "Chevron 0042", wantCategory: "Gas", wantKeyword: "chevron"},
		{merchant: "AMAZON MKTPLACE", wantCategory: "Online Shopping", wantKeyword: "amazon"},
		{merchant: "NETFLIX.COM", wantCategory: "Subscriptions", wantKeyword: "netflix"},
		{merchant: "City Electric", wantCategory: "Utilities", wantKeyword: "electric"},
		{merchant: "CVS/PHARMACY", wantCategory: "Healthcare", wantKeyword: "cvs"},
		{merchant: "Unknown Vendor", description: "sushi night", wantCategory: "Dining", wantKeyword: "sushi"},
		{merchant: "Zzyzx Holdings", wantCategory: DefaultCategoryName},
		{merchant: "", wantCategory: DefaultCategoryName},
		{merchant: "Pizza Market", wantCategory: "Dining", wantKeyword: "pizza"},
	}

	for _, tt := range tests {
		t.Run(tt.merchant+tt.description, func(t *testing.T) {
			got := m.Match(tt.merchant, tt.description)
			assert.Equal(t, tt.wantCategory, got.Category)
			assert.Equal(t, tt.wantKeyword, got.Keyword)
			if tt.wantKeyword == "" {
				assert.False(t, got.Matched())
				assert.InDelta(t, DefaultConfidence, got.Confidence, 1e-9)
			} else {
				assert.InDelta(t, KeywordConfidence, got.Confidence, 1e-9)
			}
		})
	}
}

func TestLocalMatcher_PriorityOrder(t *testing.T) {
	m, err := NewLocalMatcher([]KeywordRule{
		{Category: "Low", Keywords: []string{"shop"}, Priority: 1},
		{Category: "High", Keywords: []string{"coffee"}, Priority: 10},
		{Category: "Skipped", Priority: 100},
	})
	require.NoError(t, err)

	assert.Equal(t, "High", m.Match("Coffee Shop", "").Category)
	assert.Equal(t, "Low", m.Match("Gift Shop", "").Category)
	assert.Equal(t, DefaultCategoryName, m.Match("Skipped", "").Category)
}

func TestLocalMatcher_QuotesKeywords(t *testing.T) {
	m, err := NewLocalMatcher([]KeywordRule{
		{Category: "Streaming", Keywords: []string{"disney+"}, Priority: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, "Streaming", m.Match("DISNEY+ MONTHLY", "").Category)
	assert.Equal(t, DefaultCategoryName, m.Match("Disneyy", "").Category)
}

func TestLocalMatcher_SubstringKeywords(t *testing.T) {
	m, err := NewLocalMatcher([]KeywordRule{
		{Category: "Dining", Keywords: []string{"bar"}, Priority: 2},
		{Category: "Gas", Keywords: []string{"gas"}, Priority: 1},
	})
	require.NoError(t, err)

	tests := []struct {
		merchant string
		want     string
		keyword  string
	}{
		{merchant: "Corner Bar", want: "Dining", keyword: "bar"},
		{merchant: "Barnes & Noble", want: "Dining", keyword: "bar"},
		{merchant: "Las Vegas Resort", want: "Gas", keyword: "gas"},
		{merchant: "Bookshop", want: DefaultCategoryName},
	}
	for _, tt := range tests {
		t.Run(tt.merchant, func(t *testing.T) {
			got := m.Match(tt.merchant, "")
			assert.Equal(t, tt.want, got.Category)
			assert.Equal(t, tt.keyword, got.Keyword)
		})
	}
}
