package projection

import (
	"context"

	"go.uber.org/zap"

	"playroom/internal/docstore"
	"playroom/internal/game"
	"playroom/internal/review"
)

// NewCatalog projects every game, newest first.
func NewCatalog(ctx context.Context, store docstore.Store, log *zap.Logger) (*Projection[[]game.Game], error) {
	return New(ctx, store, "catalog", game.CatalogQuery(), game.FromDocuments, log)
}

// NewReviews projects the reviews of one game, newest first. The store is
// queried unordered and sorted here.
func NewReviews(ctx context.Context, store docstore.Store, gameID string, log *zap.Logger) (*Projection[[]review.Review], error) {
	decode := func(docs []docstore.Document) []review.Review {
		return review.SortByRecency(review.FromDocuments(docs))
	}
	return New(ctx, store, "reviews:"+gameID, review.GameQuery(gameID), decode, log)
}
