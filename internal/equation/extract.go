// Package equation finds math spans in LaTeX sources and renders them.
package equation

import (
	"regexp"
	"sort"
	"strings"
)

var envSpan = regexp.MustCompile(`(?s)\\begin\{(equation|math)\}(.*?)\\end\{(?:equation|math)\}`)

type span struct {
	start int
	text  string
}

// Extract returns inline $...$ spans (single line), display $$...$$ spans
// and equation/math environment bodies in document order. Escaped dollars
// are ignored; empty spans are skipped.
func Extract(doc string) []string {
	var spans []span
	for _, m := range envSpan.FindAllStringSubmatchIndex(doc, -1) {
		body := strings.TrimSpace(doc[m[4]:m[5]])
		if body != "" {
			spans = append(spans, span{start: m[0], text: body})
		}
	}
	spans = append(spans, dollarSpans(doc)...)
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.text)
	}
	return out
}

func dollarSpans(doc string) []span {
	var spans []span
	i := 0
	for i < len(doc) {
		switch doc[i] {
		case '\\':
			i += 2
			continue
		case '$':
		default:
			i++
			continue
		}

		display := strings.HasPrefix(doc[i:], "$$")
		delim := "$"
		if display {
			delim = "$$"
		}
		bodyStart := i + len(delim)
		end := closingDollar(doc, bodyStart, delim)
		if end < 0 {
			i = bodyStart
			continue
		}
		body := doc[bodyStart:end]
		if !display && strings.Contains(body, "\n") {
			// inline math never spans lines; treat the opener as stray
			i = bodyStart
			continue
		}
		if t := strings.TrimSpace(body); t != "" {
			spans = append(spans, span{start: i, text: t})
		}
		i = end + len(delim)
	}
	return spans
}

func closingDollar(doc string, from int, delim string) int {
	for j := from; j < len(doc); j++ {
		switch doc[j] {
		case '\\':
			j++
		case '$':
			if strings.HasPrefix(doc[j:], delim) {
				return j
			}
			if delim == "$$" {
				return -1
			}
		}
	}
	return -1
}
