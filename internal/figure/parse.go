package figure

import (
	"regexp"
	"strings"

	"github.com/dgallion1/figcap/internal/latex"
)

// ItemKind tells whether an image came from a sub-figure or directly from
// the figure body.
type ItemKind int

const (
	MainImage ItemKind = iota
	SubFigure
)

func (k ItemKind) String() string {
	if k == SubFigure {
		return "subfigure"
	}
	return "main"
}

// Item is one image reference with its optional local caption.
type Item struct {
	Kind       ItemKind
	Ref        string
	Caption    string
	HasCaption bool
	// Group numbers sub-figures from 1 in document order; 0 for main images.
	Group int
}

// Parsed is the structural reading of one figure block.
type Parsed struct {
	Caption    string
	HasCaption bool
	Items      []Item
}

var (
	subfigureNames = []string{"subfigure", "subfloat", "subcaptionbox"}
	imageNames     = []string{"includegraphics", "epsfbox", "epsfig", "psfig"}
	captionNames   = []string{"caption"}
	subCaptions    = []string{"caption", "subcaption"}
	// Layout wrappers that do not stop a caption from being the figure's own.
	transparentEnvs = []string{"center", "flushleft", "flushright"}
)

var epsfigFile = regexp.MustCompile(`(?:^|,)\s*(?:file|figure)\s*=\s*([^,]+)`)

// Parse reads a figure block's content. A block whose markup cannot be
// parsed yields an error and no partial result.
func Parse(content string) (*Parsed, error) {
	tree, err := latex.Parse(content)
	if err != nil {
		return nil, err
	}
	out := &Parsed{}
	root := tree.Root()
	groups := 0

	tree.Walk(root, func(id latex.NodeID) bool {
		switch {
		case tree.Is(id, captionNames...):
			if !out.HasCaption && isGlobal(tree, id) {
				out.Caption = captionOf(tree, id)
				out.HasCaption = true
			}
		case tree.Is(id, subfigureNames...):
			if nearestSub(tree, id) != latex.NoNode {
				// nested sub-figure: owned by its outer sub-figure
				break
			}
			groups++
			out.Items = append(out.Items, subfigureItems(tree, id, groups)...)
		case tree.Is(id, imageNames...):
			if nearestSub(tree, id) != latex.NoNode {
				break
			}
			if ref := imageRef(tree, id); ref != "" {
				out.Items = append(out.Items, Item{Kind: MainImage, Ref: ref})
			}
		}
		return true
	})
	return out, nil
}

// isGlobal reports whether a caption sits directly in the figure body, or
// only inside layout wrappers.
func isGlobal(tree *latex.Tree, id latex.NodeID) bool {
	for _, a := range tree.Ancestors(id) {
		if !tree.Is(a, transparentEnvs...) {
			return false
		}
	}
	return true
}

// nearestSub returns the closest sub-figure ancestor of id, or NoNode.
func nearestSub(tree *latex.Tree, id latex.NodeID) latex.NodeID {
	for _, a := range tree.Ancestors(id) {
		if tree.Is(a, subfigureNames...) {
			return a
		}
	}
	return latex.NoNode
}

func subfigureItems(tree *latex.Tree, sub latex.NodeID, group int) []Item {
	caption, has := subfigureCaption(tree, sub)
	var refs []string
	for _, d := range tree.Descendants(sub) {
		if !tree.Is(d, imageNames...) {
			continue
		}
		// images of a nested sub-figure stay with it
		if owner := nearestSub(tree, d); owner != sub {
			continue
		}
		if ref := imageRef(tree, d); ref != "" {
			refs = append(refs, ref)
		}
	}
	items := make([]Item, 0, len(refs))
	for _, ref := range refs {
		items = append(items, Item{Kind: SubFigure, Ref: ref, Caption: caption, HasCaption: has, Group: group})
	}
	return items
}

// subfigureCaption reads the local caption: a \caption or \subcaption
// inside a subfigure environment, the bracketed argument of \subfloat, or
// the first argument of \subcaptionbox.
func subfigureCaption(tree *latex.Tree, sub latex.NodeID) (string, bool) {
	n := tree.Node(sub)
	name := n.Name
	if name == "subfigure" && n.Kind == latex.KindCommand {
		// \subfigure[caption]{...} from the old subfigure package
		name = "subfloat"
	}
	switch name {
	case "subfloat":
		if i := tree.ArgIndex(sub, true, 0); i >= 0 {
			if c := latex.CaptionText(tree.ArgText(sub, i)); c != "" {
				return c, true
			}
		}
		return "", false
	case "subcaptionbox":
		if i := tree.ArgIndex(sub, false, 0); i >= 0 {
			if c := latex.CaptionText(tree.ArgText(sub, i)); c != "" {
				return c, true
			}
		}
		return "", false
	}
	for _, d := range tree.Descendants(sub) {
		if tree.Is(d, subCaptions...) && nearestSub(tree, d) == sub {
			if c := captionOf(tree, d); c != "" {
				return c, true
			}
		}
	}
	return "", false
}

// captionOf serializes the required argument of a caption command. Groups
// that merely follow it on the same line are ignored.
func captionOf(tree *latex.Tree, id latex.NodeID) string {
	i := tree.ArgIndex(id, false, 0)
	if i < 0 {
		return ""
	}
	return latex.CaptionText(tree.ArgText(id, i))
}

// imageRef extracts the referenced file name of an image command.
func imageRef(tree *latex.Tree, id latex.NodeID) string {
	n := tree.Node(id)
	switch n.Name {
	case "epsfig", "psfig":
		i := tree.ArgIndex(id, false, 0)
		if i < 0 {
			return ""
		}
		m := epsfigFile.FindStringSubmatch(tree.ArgText(id, i))
		if m == nil {
			return ""
		}
		return strings.TrimSpace(m[1])
	default:
		i := tree.ArgIndex(id, false, 0)
		if i < 0 {
			return ""
		}
		return strings.TrimSpace(tree.ArgText(id, i))
	}
}
