package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"playroom/internal/game"
	"playroom/internal/httpx"
	"playroom/internal/identity"
)

// File is the layout of a seed YAML document.
type File struct {
	Admin *Account  `yaml:"admin"`
	Games []GameDef `yaml:"games"`
}

type Account struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"display_name"`
}

type GameDef struct {
	Title         string `yaml:"title"`
	Category      string `yaml:"category"`
	Description   string `yaml:"description"`
	ScreenshotURL string `yaml:"screenshot_url"`
	VideoURL      string `yaml:"video_url"`
	PlayURL       string `yaml:"play_url"`
}

func (d GameDef) input() game.Input {
	return game.Input{
		Title:         strings.TrimSpace(d.Title),
		Category:      game.Category(d.Category),
		Description:   d.Description,
		ScreenshotURL: strings.TrimSpace(d.ScreenshotURL),
		VideoURL:      strings.TrimSpace(d.VideoURL),
		PlayURL:       strings.TrimSpace(d.PlayURL),
	}
}

// parse decodes and validates a seed document.
func parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("decode seed file: %w", err)
	}
	for i, g := range f.Games {
		if details := httpx.ValidateStruct(g.input()); len(details) > 0 {
			return File{}, fmt.Errorf("game %d (%q): %s %s", i, g.Title, details[0].Field, details[0].Message)
		}
	}
	if f.Admin != nil && (f.Admin.Email == "" || f.Admin.Password == "") {
		return File{}, errors.New("admin needs email and password")
	}
	return f, nil
}

type seeder struct {
	identities *identity.Service
	games      game.Repository
	now        func() time.Time
	log        *zap.Logger
}

type result struct {
	AdminCreated bool
	GamesAdded   int
	GamesSkipped int
}

// run is idempotent: existing accounts and titles are left alone.
func (s *seeder) run(ctx context.Context, f File) (result, error) {
	var res result

	if f.Admin != nil {
		created, err := s.ensureAdmin(ctx, *f.Admin)
		if err != nil {
			return res, err
		}
		res.AdminCreated = created
	}

	existing, err := s.games.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list games: %w", err)
	}
	titles := make(map[string]bool, len(existing))
	for _, g := range existing {
		titles[strings.ToLower(g.Title)] = true
	}

	author := ""
	if f.Admin != nil {
		author = strings.ToLower(strings.TrimSpace(f.Admin.Email))
	}
	base := s.now().UnixMilli()
	for i, def := range f.Games {
		in := def.input()
		if titles[strings.ToLower(in.Title)] {
			res.GamesSkipped++
			continue
		}
		// The first entry of the file ends up first in the catalog.
		g := &game.Game{
			Title:         in.Title,
			Category:      in.Category,
			Description:   in.Description,
			ScreenshotURL: in.ScreenshotURL,
			VideoURL:      in.VideoURL,
			PlayURL:       in.PlayURL,
			CreatedAt:     base - int64(i),
			Author:        author,
		}
		if err := s.games.Create(ctx, g); err != nil {
			return res, fmt.Errorf("create game %q: %w", in.Title, err)
		}
		titles[strings.ToLower(in.Title)] = true
		res.GamesAdded++
		s.log.Info("game seeded", zap.String("id", g.ID), zap.String("title", g.Title))
	}
	return res, nil
}

func (s *seeder) ensureAdmin(ctx context.Context, a Account) (bool, error) {
	id, err := s.identities.Register(ctx, identity.RegisterInput{
		Email:       a.Email,
		Password:    a.Password,
		DisplayName: a.DisplayName,
	})
	if errors.Is(err, identity.ErrEmailTaken) {
		s.log.Info("admin account exists, skipping", zap.String("email", a.Email))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("register admin: %w", err)
	}
	if err := s.identities.GrantRole(ctx, id.ID, identity.RoleAdmin); err != nil {
		return false, fmt.Errorf("grant admin role: %w", err)
	}
	s.log.Info("admin account created", zap.String("id", id.ID), zap.String("email", id.Email))
	return true, nil
}
