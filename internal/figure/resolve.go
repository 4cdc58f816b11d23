package figure

import (
	"path"
	"regexp"
	"strings"
)

// graphicsExtOrder mirrors pdfTeX's default \DeclareGraphicsExtensions
// search order and breaks ties when several files share a stem.
var graphicsExtOrder = []string{
	".pdf", ".png", ".jpg", ".mps", ".jpeg", ".jbig2", ".jb2",
	".PDF", ".PNG", ".JPG", ".JPEG", ".JBIG2", ".JB2", ".eps",
}

func extRank(ext string) int {
	for i, e := range graphicsExtOrder {
		if e == ext {
			return i
		}
	}
	return len(graphicsExtOrder)
}

// Resolver matches image references against an archive listing. It is
// scoped to one paper.
type Resolver struct {
	exact  map[string]string   // cleaned name -> archive name
	byStem map[string][]string // cleaned name without extension -> archive names
}

// NewResolver indexes the archive member names.
func NewResolver(files []string) *Resolver {
	r := &Resolver{
		exact:  make(map[string]string, len(files)),
		byStem: make(map[string][]string, len(files)),
	}
	for _, f := range files {
		clean := cleanPath(f)
		if clean == "" {
			continue
		}
		if _, dup := r.exact[clean]; dup {
			continue
		}
		r.exact[clean] = f
		stem := strings.TrimSuffix(clean, path.Ext(clean))
		r.byStem[stem] = insertByRank(r.byStem[stem], f)
	}
	return r
}

// insertByRank keeps names ordered by extension preference, then archive order.
func insertByRank(names []string, f string) []string {
	rank := extRank(path.Ext(f))
	i := len(names)
	for j, n := range names {
		if extRank(path.Ext(n)) > rank {
			i = j
			break
		}
	}
	names = append(names, "")
	copy(names[i+1:], names[i:])
	names[i] = f
	return names
}

// Resolve finds the archive file a reference points to. The empty root is
// tried first, then roots in declaration order. Within a root the candidate
// must match a file exactly, match a file's name without its extension, or
// match after its own extension is stripped.
func (r *Resolver) Resolve(ref string, roots []string) (string, bool) {
	ref = strings.Trim(strings.TrimSpace(ref), `"`)
	if ref == "" {
		return "", false
	}
	tried := make(map[string]bool, len(roots)+1)
	for _, root := range append([]string{""}, roots...) {
		root = cleanPath(root)
		if tried[root] {
			continue
		}
		tried[root] = true
		if name, ok := r.lookup(cleanPath(path.Join(root, ref))); ok {
			return name, true
		}
	}
	return "", false
}

func (r *Resolver) lookup(candidate string) (string, bool) {
	if candidate == "" {
		return "", false
	}
	if name, ok := r.exact[candidate]; ok {
		return name, true
	}
	if names := r.byStem[candidate]; len(names) > 0 {
		return names[0], true
	}
	if ext := path.Ext(candidate); ext != "" {
		if names := r.byStem[strings.TrimSuffix(candidate, ext)]; len(names) > 0 {
			return names[0], true
		}
	}
	return "", false
}

func cleanPath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

var (
	graphicsPathCmd = regexp.MustCompile(`\\graphicspath\s*\{((?:[^{}]|\{[^{}]*\})*)\}`)
	graphicsPathDir = regexp.MustCompile(`\{([^{}]*)\}`)
)

// GraphicsPaths returns the directories declared with \graphicspath in
// declaration order, without duplicates.
func GraphicsPaths(docs ...string) []string {
	var roots []string
	seen := make(map[string]bool)
	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		roots = append(roots, dir)
	}
	for _, doc := range docs {
		for _, m := range graphicsPathCmd.FindAllStringSubmatch(doc, -1) {
			dirs := graphicsPathDir.FindAllStringSubmatch(m[1], -1)
			if len(dirs) == 0 {
				// \graphicspath{figs/} without inner braces
				add(m[1])
				continue
			}
			for _, d := range dirs {
				add(d[1])
			}
		}
	}
	return roots
}
