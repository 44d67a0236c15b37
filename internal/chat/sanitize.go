package chat

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// Sanitize strips any markup from raw so downstream renderers never interpret
// user input as HTML. The policy entity-escapes the text it keeps, so the
// escaping is reversed afterwards: stored text is plain, and quotes or
// ampersands round-trip exactly. Pure transform with no failure mode; the
// result may be empty.
func Sanitize(raw string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(raw)))
}
