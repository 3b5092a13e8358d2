package review

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"playroom/internal/docstore"
	"playroom/internal/identity"
)

type Service struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log.Named("review"), now: time.Now}
}

// ListForGame returns the reviews of a game, newest first.
func (s *Service) ListForGame(ctx context.Context, gameID string) ([]Review, error) {
	reviews, err := s.repo.ListByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return SortByRecency(reviews), nil
}

// Create stores a review by actor. Anonymous callers are rejected before
// anything is written.
func (s *Service) Create(ctx context.Context, actor *identity.Identity, gameID string, in Input) (Review, error) {
	if actor == nil {
		return Review{}, ErrUnauthenticated
	}
	comment := strings.TrimSpace(in.Comment)
	if comment == "" {
		return Review{}, ErrEmptyComment
	}
	rating := DefaultRating
	if in.Rating != nil {
		rating = *in.Rating
	}
	name := actor.DisplayName
	if name == "" {
		name = FallbackName
	}

	rv := Review{
		GameID:    gameID,
		UserID:    actor.ID,
		UserName:  name,
		UserPhoto: actor.AvatarURL,
		Comment:   comment,
		Rating:    rating,
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.repo.Create(ctx, &rv); err != nil {
		s.logFailure("create", gameID, err)
		return Review{}, err
	}
	return rv, nil
}

// Delete removes a review. Only its author or an admin may do so.
func (s *Service) Delete(ctx context.Context, actor *identity.Identity, id string) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	rv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanDelete(actor, rv) {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logFailure("delete", rv.GameID, err)
		}
		return err
	}
	return nil
}

// CanDelete reports whether actor may remove rv.
func CanDelete(actor *identity.Identity, rv Review) bool {
	if actor == nil {
		return false
	}
	return actor.ID == rv.UserID || actor.IsAdmin()
}

func (s *Service) logFailure(op, gameID string, err error) {
	if docstore.IsPermissionDenied(err) {
		s.log.Warn("review write denied", zap.String("op", op), zap.String("game_id", gameID), zap.Error(err))
		return
	}
	s.log.Error("review write failed", zap.String("op", op), zap.String("game_id", gameID), zap.Error(err))
}
