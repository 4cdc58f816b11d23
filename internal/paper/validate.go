package paper

import (
	"regexp"
	"strings"
)

var captionMarker = regexp.MustCompile(`</?(?:f|s[0-9]+)>`)

// ValidCaption reports whether an assembled caption carries any text once
// its position markers are removed.
func ValidCaption(caption string) bool {
	text := strings.TrimSpace(captionMarker.ReplaceAllString(caption, ""))
	return text != ""
}
