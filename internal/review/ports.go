package review

import (
	"context"
)

// Repository defines the contract for review storage.
type Repository interface {
	// ListByGame returns the reviews of one game in storage order.
	ListByGame(ctx context.Context, gameID string) ([]Review, error)
	Get(ctx context.Context, id string) (Review, error)
	Create(ctx context.Context, r *Review) error
	Delete(ctx context.Context, id string) error
}
