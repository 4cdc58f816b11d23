// Package figure finds figure environments in LaTeX sources, walks their
// structure and pairs image references with caption text.
package figure

import (
	"iter"
	"regexp"
	"strings"
)

// Block is the content span [Start, End) of one figure-like environment,
// excluding the \begin and \end tags.
type Block struct {
	Env   string // environment name as written, e.g. "figure*"
	Start int
	End   int
}

// Content returns the block's text within doc.
func (b Block) Content(doc string) string { return doc[b.Start:b.End] }

// Locator finds figure-like environments by paired-delimiter search.
type Locator struct {
	open *regexp.Regexp
}

// DefaultEnvs are the environments located when none are configured.
var DefaultEnvs = []string{"figure"}

// NewLocator builds a locator for the given environment names; each name
// also matches its starred variant.
func NewLocator(envs ...string) *Locator {
	if len(envs) == 0 {
		envs = DefaultEnvs
	}
	quoted := make([]string, 0, len(envs))
	for _, e := range envs {
		e = strings.TrimSuffix(strings.TrimSpace(e), "*")
		if e == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(e))
	}
	if len(quoted) == 0 {
		return NewLocator()
	}
	return &Locator{
		open: regexp.MustCompile(`\\begin\{((?:` + strings.Join(quoted, "|") + `)\*?)\}`),
	}
}

var defaultLocator = NewLocator()

// Locate finds figure and figure* blocks in doc.
func Locate(doc string) iter.Seq[Block] { return defaultLocator.Locate(doc) }

// Locate returns the blocks of doc in order of their opening tag. For each
// opening tag the first following closing tag of the same exact name ends
// the block; an opening tag with no closing tag is skipped.
func (l *Locator) Locate(doc string) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		for _, m := range l.open.FindAllStringSubmatchIndex(doc, -1) {
			env := doc[m[2]:m[3]]
			closing := `\end{` + env + `}`
			rel := strings.Index(doc[m[1]:], closing)
			if rel < 0 {
				continue
			}
			if !yield(Block{Env: env, Start: m[1], End: m[1] + rel}) {
				return
			}
		}
	}
}
