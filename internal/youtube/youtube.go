// Package youtube derives video ids, thumbnails and embed URLs from the
// many shapes of YouTube link users paste in.
package youtube

import "regexp"

const idLength = 11

var linkPattern = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

// ID extracts the 11 character video id from url. ok is false when url is
// empty or not a recognizable YouTube link.
func ID(url string) (id string, ok bool) {
	if url == "" {
		return "", false
	}
	m := linkPattern.FindStringSubmatch(url)
	if m == nil || len(m[2]) != idLength {
		return "", false
	}
	return m[2], true
}

// ThumbnailURL returns the medium quality thumbnail for url.
func ThumbnailURL(url string) (string, bool) {
	id, ok := ID(url)
	if !ok {
		return "", false
	}
	return "https://img.youtube.com/vi/" + id + "/mqdefault.jpg", true
}

// EmbedURL returns the player URL for url.
func EmbedURL(url string) (string, bool) {
	id, ok := ID(url)
	if !ok {
		return "", false
	}
	return "https://www.youtube.com/embed/" + id, true
}
