package recommend

import "strings"

// Suggestion is a card the user does not hold that would earn more.
type Suggestion struct {
	Card   string
	Reward string
	Reason string
}

type suggestionEntry struct {
	keyword    string
	suggestion Suggestion
}

var suggestionTable = []suggestionEntry{
	{keyword: "grocer", suggestion: Suggestion{Card: "Amex Gold", Reward: "4x Points", Reason: "4x on Supermarkets up to $25k/yr"}},
	{keyword: "travel", suggestion: Suggestion{Card: "Amex Platinum", Reward: "5x Points", Reason: "5x on Flights booked directly"}},
	{keyword: "gas", suggestion: Suggestion{Card: "Citi Custom Cash", Reward: "5x Points", Reason: "5x on top category (Gas)"}},
	{keyword: "online", suggestion: Suggestion{Card: "Amazon Prime", Reward: "5% Back", Reason: "5% at Amazon.com"}},
}

var defaultSuggestion = Suggestion{Card: "Chase Freedom Flex", Reward: "3x Points", Reason: "3x on Dining & Drugstores"}

// suggestFor returns the static suggestion for a category.
func suggestFor(category string) Suggestion {
	c := strings.ToLower(strings.TrimSpace(category))
	for _, e := range suggestionTable {
		if strings.Contains(c, e.keyword) {
			return e.suggestion
		}
	}
	return defaultSuggestion
}
