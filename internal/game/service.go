package game

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"playroom/internal/docstore"
	"playroom/internal/identity"
)

// Service runs catalog reads and the admin-only mutations.
type Service struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log.Named("game"), now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]Game, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (Game, error) {
	return s.repo.Get(ctx, id)
}

// Create stamps creation time and author, stores the game and returns it
// with the refreshed catalog.
func (s *Service) Create(ctx context.Context, actor *identity.Identity, in Input) (Game, []Game, error) {
	if !actor.IsAdmin() {
		return Game{}, nil, ErrForbidden
	}
	g := Game{
		Title:         in.Title,
		Category:      in.Category,
		Description:   in.Description,
		ScreenshotURL: in.ScreenshotURL,
		VideoURL:      in.VideoURL,
		PlayURL:       in.PlayURL,
		CreatedAt:     s.now().UnixMilli(),
		Author:        actor.AuthorLabel(),
	}
	if err := s.repo.Create(ctx, &g); err != nil {
		s.logFailure("create", "", err)
		return Game{}, nil, err
	}
	s.log.Info("game created", zap.String("game_id", g.ID), zap.String("author", g.Author))

	games, err := s.repo.List(ctx)
	if err != nil {
		s.logFailure("refresh", g.ID, err)
		return g, nil, err
	}
	return g, games, nil
}

// Update replaces the editable fields of a game.
func (s *Service) Update(ctx context.Context, actor *identity.Identity, id string, in Input) (Game, error) {
	if !actor.IsAdmin() {
		return Game{}, ErrForbidden
	}
	if err := s.repo.Update(ctx, id, in); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logFailure("update", id, err)
		}
		return Game{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a game and returns the refreshed catalog. Reviews of the
// game are kept.
func (s *Service) Delete(ctx context.Context, actor *identity.Identity, id string) ([]Game, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logFailure("delete", id, err)
		}
		return nil, err
	}
	s.log.Info("game deleted", zap.String("game_id", id), zap.String("by", actor.AuthorLabel()))
	return s.repo.List(ctx)
}

func (s *Service) logFailure(op, id string, err error) {
	if docstore.IsPermissionDenied(err) {
		s.log.Warn("catalog write denied", zap.String("op", op), zap.String("game_id", id), zap.Error(err))
		return
	}
	s.log.Error("catalog write failed", zap.String("op", op), zap.String("game_id", id), zap.Error(err))
}
