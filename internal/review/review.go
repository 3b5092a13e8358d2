package review

import (
	"errors"
	"sort"
)

var (
	ErrNotFound        = errors.New("review not found")
	ErrUnauthenticated = errors.New("sign in to leave a review")
	ErrForbidden       = errors.New("only the author or an admin may delete a review")
	ErrEmptyComment    = errors.New("comment must not be empty")
)

const (
	// FallbackName is shown for authors without a display name.
	FallbackName = "Anonymous Player"
	// DefaultRating applies when a submission omits the rating.
	DefaultRating = 5
)

// Review is one player's comment and rating on a game.
type Review struct {
	ID        string `json:"id"`
	GameID    string `json:"game_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserPhoto string `json:"user_photo,omitempty"`
	Comment   string `json:"comment"`
	Rating    int    `json:"rating"`
	CreatedAt int64  `json:"created_at"`
}

// Input is a review submission. Rating is deliberately not range checked.
type Input struct {
	Comment string `json:"comment" validate:"notblank,max=2000"`
	Rating  *int   `json:"rating"`
}

// SortByRecency returns a copy of reviews ordered newest first. Reviews
// with equal timestamps keep their relative input order.
func SortByRecency(reviews []Review) []Review {
	out := make([]Review, len(reviews))
	copy(out, reviews)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}
