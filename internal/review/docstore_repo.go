package review

import (
	"context"
	"errors"
	"fmt"

	"playroom/internal/docstore"
)

// Collection holds one document per review.
const Collection = "reviews"

// GameQuery selects the reviews of one game. It carries no order; callers
// sort with SortByRecency.
func GameQuery(gameID string) docstore.Query {
	return docstore.Query{
		Collection: Collection,
		Filter:     &docstore.Filter{Field: "gameId", Value: gameID},
	}
}

type DocstoreRepo struct {
	store docstore.Store
}

func NewDocstoreRepo(store docstore.Store) *DocstoreRepo {
	return &DocstoreRepo{store: store}
}

func (r *DocstoreRepo) ListByGame(ctx context.Context, gameID string) ([]Review, error) {
	docs, err := r.store.Query(ctx, GameQuery(gameID))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return FromDocuments(docs), nil
}

func (r *DocstoreRepo) Get(ctx context.Context, id string) (Review, error) {
	doc, err := r.store.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Review{}, ErrNotFound
		}
		return Review{}, fmt.Errorf("get review: %w", err)
	}
	return FromDocument(doc), nil
}

func (r *DocstoreRepo) Create(ctx context.Context, rv *Review) error {
	fields := docstore.Fields{
		"gameId":    rv.GameID,
		"userId":    rv.UserID,
		"userName":  rv.UserName,
		"comment":   rv.Comment,
		"rating":    int64(rv.Rating),
		"createdAt": rv.CreatedAt,
	}
	if rv.UserPhoto != "" {
		fields["userPhoto"] = rv.UserPhoto
	}
	id, err := r.store.Create(ctx, Collection, fields)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	rv.ID = id
	return nil
}

func (r *DocstoreRepo) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

func FromDocument(d docstore.Document) Review {
	return Review{
		ID:        d.ID,
		GameID:    d.String("gameId"),
		UserID:    d.String("userId"),
		UserName:  d.String("userName"),
		UserPhoto: d.String("userPhoto"),
		Comment:   d.String("comment"),
		Rating:    int(d.Int64("rating")),
		CreatedAt: d.Int64("createdAt"),
	}
}

func FromDocuments(docs []docstore.Document) []Review {
	out := make([]Review, len(docs))
	for i, d := range docs {
		out[i] = FromDocument(d)
	}
	return out
}
