package game

import (
	"strings"

	"playroom/internal/platform/markup"
	"playroom/internal/youtube"
)

// Card is the list representation of a game.
type Card struct {
	Game
	CoverImage string `json:"cover_image"`
	HasVideo   bool   `json:"has_video"`
}

func NewCards(games []Game) []Card {
	out := make([]Card, len(games))
	for i, g := range games {
		_, hasVideo := youtube.ID(g.VideoURL)
		out[i] = Card{Game: g, CoverImage: g.CoverImage(), HasVideo: hasVideo}
	}
	return out
}

// Detail is the single game page.
type Detail struct {
	Game
	DescriptionHTML string `json:"description_html"`
	EmbedURL        string `json:"embed_url,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	ShareURL        string `json:"share_url"`
}

// NewDetail renders the description and derives the media and share links.
func NewDetail(g Game, publicBaseURL string) (Detail, error) {
	html, err := markup.RenderMarkdown(g.Description)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{
		Game:            g,
		DescriptionHTML: html,
		ShareURL:        ShareURL(publicBaseURL, g.ID),
	}
	d.EmbedURL, _ = youtube.EmbedURL(g.VideoURL)
	d.ThumbnailURL, _ = youtube.ThumbnailURL(g.VideoURL)
	return d, nil
}

// ShareURL is the client route of a game page.
func ShareURL(publicBaseURL, id string) string {
	return strings.TrimRight(publicBaseURL, "/") + "/#/game/" + id
}
