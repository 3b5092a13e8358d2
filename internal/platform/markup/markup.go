// Package markup renders user supplied text for display.
package markup

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var ugcPolicy = bluemonday.UGCPolicy()

// RenderMarkdown converts markdown to HTML safe for embedding in a page.
// Raw HTML in the source is dropped by the sanitiser.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return ugcPolicy.Sanitize(buf.String()), nil
}

// EscapeText renders plain text as HTML: every character shows up
// literally and line breaks are kept.
func EscapeText(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}
