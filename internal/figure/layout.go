package figure

import (
	"regexp"
	"strings"
)

// Arrangement is how several images of one record are stacked.
type Arrangement int

const (
	Horizontal Arrangement = iota
	Vertical
)

func (a Arrangement) String() string {
	if a == Vertical {
		return "vertical"
	}
	return "horizontal"
}

var (
	leftRightWord = regexp.MustCompile(`\b(?:left|right)\b`)
	topBottomWord = regexp.MustCompile(`\b(?:top|bottom)\b`)
)

// ChooseLayout picks an arrangement from positional words in the caption.
// Only top/bottom without left/right gives Vertical.
func ChooseLayout(caption string) Arrangement {
	c := strings.ToLower(caption)
	if topBottomWord.MatchString(c) && !leftRightWord.MatchString(c) {
		return Vertical
	}
	return Horizontal
}
