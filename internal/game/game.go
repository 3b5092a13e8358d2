package game

import (
	"errors"
	"strings"

	"playroom/internal/youtube"
)

var (
	ErrNotFound  = errors.New("game not found")
	ErrForbidden = errors.New("admin role required")
)

// Category groups games on the landing page.
type Category string

const (
	CategoryAll        Category = "All"
	CategoryAction     Category = "Action"
	CategoryPuzzle     Category = "Puzzle"
	CategoryEducation  Category = "Education"
	CategoryArcade     Category = "Arcade"
	CategorySimulation Category = "Simulation"
)

// Categories lists every concrete category in display order.
var Categories = []Category{
	CategoryAction,
	CategoryPuzzle,
	CategoryEducation,
	CategoryArcade,
	CategorySimulation,
}

// ParseCategory maps a query value onto a category. Empty and unknown
// values select everything.
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CategoryAll
}

// PlaceholderImage is shown for games with neither screenshot nor video.
const PlaceholderImage = "https://picsum.photos/400/250"

// Game is a catalog entry.
type Game struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Category      Category `json:"category"`
	Description   string   `json:"description"`
	ScreenshotURL string   `json:"screenshot_url,omitempty"`
	VideoURL      string   `json:"video_url,omitempty"`
	PlayURL       string   `json:"play_url"`
	CreatedAt     int64    `json:"created_at"`
	Author        string   `json:"author"`
}

// CoverImage picks the card image: the screenshot, else the video
// thumbnail, else the placeholder.
func (g Game) CoverImage() string {
	if g.ScreenshotURL != "" {
		return g.ScreenshotURL
	}
	if thumb, ok := youtube.ThumbnailURL(g.VideoURL); ok {
		return thumb
	}
	return PlaceholderImage
}

// Input holds the fields an admin may set.
type Input struct {
	Title         string   `json:"title" validate:"notblank,max=120"`
	Category      Category `json:"category" validate:"required,oneof=Action Puzzle Education Arcade Simulation"`
	Description   string   `json:"description" validate:"notblank,max=5000"`
	ScreenshotURL string   `json:"screenshot_url" validate:"omitempty,url"`
	VideoURL      string   `json:"video_url" validate:"omitempty,url"`
	PlayURL       string   `json:"play_url" validate:"required,url"`
}

// Filter keeps the games in category whose title contains term, ignoring
// case. Input order is preserved; CategoryAll and an empty term match
// everything.
func Filter(games []Game, category Category, term string) []Game {
	needle := strings.ToLower(term)
	out := make([]Game, 0, len(games))
	for _, g := range games {
		if category != CategoryAll && g.Category != category {
			continue
		}
		if !strings.Contains(strings.ToLower(g.Title), needle) {
			continue
		}
		out = append(out, g)
	}
	return out
}
