package categorize

// DefaultKeywordRules returns the built-in merchant keyword table.
func DefaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{
			Category: "Dining",
			Priority: 80,
			Keywords: []string{
				"restaurant", "cafe", "coffee", "starbucks", "mcdonalds", "burger",
				"pizza", "diner", "sushi", "bistro", "eats", "grill", "bar", "pub", "bakery",
			},
		},
		{
			Category: "Groceries",
			Priority: 70,
			Keywords: []string{
				"grocery", "market", "supermarket", "trader joe", "whole foods", "kroger",
				"safeway", "walmart", "costco", "wegmans", "aldi", "lidl",
			},
		},
		{
			Category: "Travel",
			Priority: 60,
			Keywords: []string{
				"airline", "hotel", "uber", "lyft", "taxi", "flight", "delta", "united",
				"american airlines", "airbnb", "expedia", "booking.com", "train", "amtrak",
			},
		},
		{
			Category: "Gas",
			Priority: 50,
			Keywords: []string{
				"gas", "fuel", "shell", "exxon", "bp", "chevron", "texaco", "wawa",
				"speedway", "7-eleven", "citgo",
			},
		},
		{
			Category: "Online Shopping",
			Priority: 40,
			Keywords: []string{
				"amazon", "shopify", "paypal", "ebay", "etsy", "chewy", "apple.com", "google store",
			},
		},
		{
			Category: "Subscriptions",
			Priority: 30,
			Keywords: []string{
				"netflix", "hulu", "spotify", "youtube", "apple music", "prime video", "disney+", "hbo",
			},
		},
		{
			Category: "Utilities",
			Priority: 20,
			Keywords: []string{
				"electric", "water", "gas company", "internet", "comcast", "verizon", "att", "t-mobile",
			},
		},
		{
			Category: "Healthcare",
			Priority: 10,
			Keywords: []string{
				"pharmacy", "cvs", "walgreens", "doctor", "hospital", "dental", "medical", "clinic",
			},
		},
	}
}
