package engine

import (
	"context"

	"github.com/Veraticus/the-points-must-flow/internal/categorize"
	"github.com/Veraticus/the-points-must-flow/internal/model"
	"github.com/Veraticus/the-points-must-flow/internal/recommend"
)

// Categorizer defines the contract for transaction categorization.
// Implementations never fail; they degrade to a local answer instead.
type Categorizer interface {
	CategorizeBatch(ctx context.Context, reqs []categorize.Request) []categorize.Result
	Status() model.CategorizerStatus
}

// Recommender answers the best-card question for a single category.
type Recommender interface {
	Best(ctx context.Context, walletID, category string) recommend.Recommendation
	Invalidate(walletID string)
}

// ProgressFunc receives the number of transactions processed so far.
type ProgressFunc func(done, total int)
