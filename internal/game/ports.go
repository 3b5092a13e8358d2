package game

import (
	"context"
)

// Repository defines the contract for catalog storage.
type Repository interface {
	// List returns every game, newest first.
	List(ctx context.Context) ([]Game, error)
	Get(ctx context.Context, id string) (Game, error)
	Create(ctx context.Context, g *Game) error
	Update(ctx context.Context, id string, in Input) error
	Delete(ctx context.Context, id string) error
}
