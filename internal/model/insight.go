package model

import "time"

// Opportunity is an aggregated summary of missed value for one group.
// It is derived per request and never stored.
type Opportunity struct {
	Key                     string
	Category                string // most frequent category in the group
	RecommendedInstrumentID string
	SampleMerchants         []string
	TotalMissedCents        int64
	TransactionCount        int
}

// Frequency classifies the period of a recurring charge.
type Frequency string

// Frequency bands.
const (
	FrequencyWeekly   Frequency = "Weekly"
	FrequencyBiWeekly Frequency = "Bi-Weekly"
	FrequencyMonthly  Frequency = "Monthly"
	FrequencyYearly   Frequency = "Yearly"
)

// Subscription is a recurring charge detected from transaction history.
// It is re-derived on every request.
type Subscription struct {
	LastPaid           time.Time
	NextDue            time.Time
	Merchant           string
	Category           string
	Frequency          Frequency
	AverageAmountCents int64
	Count              int
	Confidence         float64
}
