package review

import (
	"playroom/internal/identity"
	"playroom/internal/platform/markup"
)

// View is a review as shown to one viewer.
type View struct {
	Review
	CanDelete bool `json:"can_delete"`
	// CommentHTML is the stored comment escaped for direct embedding.
	CommentHTML string `json:"comment_html"`
}

// Views decorates reviews with the viewer's delete permission.
func Views(viewer *identity.Identity, reviews []Review) []View {
	out := make([]View, len(reviews))
	for i, rv := range reviews {
		out[i] = NewView(viewer, rv)
	}
	return out
}

func NewView(viewer *identity.Identity, rv Review) View {
	return View{Review: rv, CanDelete: CanDelete(viewer, rv), CommentHTML: markup.EscapeText(rv.Comment)}
}
