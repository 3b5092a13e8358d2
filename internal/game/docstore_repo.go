package game

import (
	"context"
	"errors"
	"fmt"

	"playroom/internal/docstore"
)

// Collection holds one document per game.
const Collection = "games"

// CatalogQuery selects all games, newest first.
func CatalogQuery() docstore.Query {
	return docstore.Query{
		Collection: Collection,
		Order:      &docstore.Order{Field: "createdAt", Desc: true},
	}
}

type DocstoreRepo struct {
	store docstore.Store
}

func NewDocstoreRepo(store docstore.Store) *DocstoreRepo {
	return &DocstoreRepo{store: store}
}

func (r *DocstoreRepo) List(ctx context.Context) ([]Game, error) {
	docs, err := r.store.Query(ctx, CatalogQuery())
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return FromDocuments(docs), nil
}

func (r *DocstoreRepo) Get(ctx context.Context, id string) (Game, error) {
	doc, err := r.store.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Game{}, ErrNotFound
		}
		return Game{}, fmt.Errorf("get game: %w", err)
	}
	return FromDocument(doc), nil
}

func (r *DocstoreRepo) Create(ctx context.Context, g *Game) error {
	fields := inputFields(Input{
		Title:         g.Title,
		Category:      g.Category,
		Description:   g.Description,
		ScreenshotURL: g.ScreenshotURL,
		VideoURL:      g.VideoURL,
		PlayURL:       g.PlayURL,
	})
	fields["createdAt"] = g.CreatedAt
	fields["authorEmail"] = g.Author

	id, err := r.store.Create(ctx, Collection, fields)
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	g.ID = id
	return nil
}

func (r *DocstoreRepo) Update(ctx context.Context, id string, in Input) error {
	err := r.store.Update(ctx, Collection, id, inputFields(in))
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	return nil
}

func (r *DocstoreRepo) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

// inputFields never carries createdAt or authorEmail, so updates leave them
// untouched.
func inputFields(in Input) docstore.Fields {
	return docstore.Fields{
		"title":         in.Title,
		"category":      string(in.Category),
		"description":   in.Description,
		"screenshotUrl": in.ScreenshotURL,
		"youtubeUrl":    in.VideoURL,
		"appUrl":        in.PlayURL,
	}
}

// FromDocument maps a stored document onto a Game.
func FromDocument(d docstore.Document) Game {
	return Game{
		ID:            d.ID,
		Title:         d.String("title"),
		Category:      Category(d.String("category")),
		Description:   d.String("description"),
		ScreenshotURL: d.String("screenshotUrl"),
		VideoURL:      d.String("youtubeUrl"),
		PlayURL:       d.String("appUrl"),
		CreatedAt:     d.Int64("createdAt"),
		Author:        d.String("authorEmail"),
	}
}

func FromDocuments(docs []docstore.Document) []Game {
	out := make([]Game, len(docs))
	for i, d := range docs {
		out[i] = FromDocument(d)
	}
	return out
}
