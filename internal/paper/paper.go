// Package paper extracts (image, caption) and (image, equation) records from
// a single paper archive.
package paper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"log/slog"
	"path"
	"strings"

	"github.com/dgallion1/figcap/internal/archive"
	"github.com/dgallion1/figcap/internal/equation"
	"github.com/dgallion1/figcap/internal/figure"
	"github.com/dgallion1/figcap/internal/imaging"
	"github.com/dgallion1/figcap/internal/raster"
)

// Kind selects what a paper is mined for.
type Kind string

const (
	Figures Kind = "figure_captions"
	Math    Kind = "math"
)

// ParseKinds validates kind names; an empty list means Figures.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return []Kind{Figures}, nil
	}
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, n := range names {
		k := Kind(strings.TrimSpace(n))
		switch k {
		case Figures, Math:
		default:
			return nil, fmt.Errorf("unknown extraction kind: %q", n)
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// Datum is one finished record.
type Datum struct {
	Image     []byte
	Caption   string
	ImagePath string
	URL       string
}

// Stats counts what happened to a paper; every silent drop has a counter.
type Stats struct {
	TexFiles       int `json:"tex_files"`
	DecodeErrors   int `json:"decode_errors"`
	FigureBlocks   int `json:"figure_blocks"`
	OversizeBlocks int `json:"oversize_blocks"`
	ParseErrors    int `json:"parse_errors"`
	Records        int `json:"records"`
	EmptyCaptions  int `json:"empty_captions"`
	UnresolvedRefs int `json:"unresolved_refs"`
	AssetErrors    int `json:"asset_errors"`
	Composites     int `json:"composites"`
	Equations      int `json:"equations"`
	RenderErrors   int `json:"render_errors"`
	Emitted        int `json:"emitted"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.TexFiles += o.TexFiles
	s.DecodeErrors += o.DecodeErrors
	s.FigureBlocks += o.FigureBlocks
	s.OversizeBlocks += o.OversizeBlocks
	s.ParseErrors += o.ParseErrors
	s.Records += o.Records
	s.EmptyCaptions += o.EmptyCaptions
	s.UnresolvedRefs += o.UnresolvedRefs
	s.AssetErrors += o.AssetErrors
	s.Composites += o.Composites
	s.Equations += o.Equations
	s.RenderErrors += o.RenderErrors
	s.Emitted += o.Emitted
}

// Options tune a Processor.
type Options struct {
	// MaxFigureBlockBytes skips larger figure bodies; 0 disables the limit.
	MaxFigureBlockBytes int
	MaxMemberBytes      int64
	FigureEnvs          []string
	Assembly            figure.Mode
}

// Processor opens paper archives. It holds no per-paper state and is safe
// for concurrent use.
type Processor struct {
	opts    Options
	locator *figure.Locator
	raster  raster.Rasterizer
	render  equation.Renderer
	log     *slog.Logger
}

// NewProcessor builds a processor. r and render may be nil; PDF assets and
// equations are then dropped.
func NewProcessor(opts Options, r raster.Rasterizer, render equation.Renderer, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		opts:    opts,
		locator: figure.NewLocator(opts.FigureEnvs...),
		raster:  r,
		render:  render,
		log:     log,
	}
}

// Document is one decoded, comment-stripped .tex source.
type Document struct {
	Name string
	Text string
}

// Paper is one opened archive. It is owned by a single goroutine.
type Paper struct {
	p     *Processor
	url   string
	arc   *archive.Archive
	docs  []Document
	stats Stats
	log   *slog.Logger
}

// Open lists the archive and decodes its .tex members. Only a container
// that cannot be read at all is an error.
func (p *Processor) Open(data []byte, url string) (*Paper, error) {
	arc, err := archive.OpenWith(data, archive.Options{MaxMemberBytes: p.opts.MaxMemberBytes})
	if err != nil {
		return nil, fmt.Errorf("open paper %s: %w", url, err)
	}
	pp := &Paper{p: p, url: url, arc: arc, log: p.log.With("paper", url)}
	for _, m := range arc.Members() {
		if !strings.EqualFold(path.Ext(m.Name), ".tex") {
			continue
		}
		pp.stats.TexFiles++
		raw, err := m.Read()
		if err == nil {
			var text string
			text, err = DecodeSource(raw)
			if err == nil {
				pp.docs = append(pp.docs, Document{Name: m.Name, Text: StripComments(text)})
				continue
			}
		}
		pp.stats.DecodeErrors++
		pp.log.Debug("skipping undecodable source", "member", m.Name, "error", err)
	}
	return pp, nil
}

// Documents returns the decoded sources.
func (pp *Paper) Documents() []Document { return pp.docs }

// Stats returns the counters gathered so far.
func (pp *Paper) Stats() Stats { return pp.stats }

// Records lazily yields the paper's records: equations first when Math is
// requested, then figures. Iteration stops early when ctx is cancelled.
func (pp *Paper) Records(ctx context.Context, kinds ...Kind) iter.Seq[Datum] {
	return func(yield func(Datum) bool) {
		defer func() {
			pp.log.Info("paper processed",
				"tex_files", pp.stats.TexFiles,
				"figure_blocks", pp.stats.FigureBlocks,
				"records", pp.stats.Records,
				"emitted", pp.stats.Emitted,
				"parse_errors", pp.stats.ParseErrors,
				"unresolved_refs", pp.stats.UnresolvedRefs,
			)
		}()
		for _, k := range kinds {
			var ok bool
			switch k {
			case Math:
				ok = pp.equations(ctx, yield)
			case Figures:
				ok = pp.figures(ctx, yield)
			default:
				ok = true
			}
			if !ok {
				return
			}
		}
	}
}

// FigureRecords locates, parses and assembles every figure block of every
// document, in document order.
func (pp *Paper) FigureRecords() []figure.Record {
	var recs []figure.Record
	for _, doc := range pp.docs {
		for b := range pp.p.locator.Locate(doc.Text) {
			pp.stats.FigureBlocks++
			content := b.Content(doc.Text)
			if max := pp.p.opts.MaxFigureBlockBytes; max > 0 && len(content) > max {
				pp.stats.OversizeBlocks++
				continue
			}
			parsed, err := figure.Parse(content)
			if err != nil {
				pp.stats.ParseErrors++
				pp.log.Debug("discarding figure block", "doc", doc.Name, "offset", b.Start, "error", err)
				continue
			}
			recs = append(recs, figure.AssembleWith(parsed, pp.p.opts.Assembly)...)
		}
	}
	pp.stats.Records += len(recs)
	return recs
}

func (pp *Paper) figures(ctx context.Context, yield func(Datum) bool) bool {
	recs := pp.FigureRecords()
	if len(recs) == 0 {
		return true
	}
	texts := make([]string, len(pp.docs))
	for i, d := range pp.docs {
		texts[i] = d.Text
	}
	roots := figure.GraphicsPaths(texts...)
	res := figure.NewResolver(pp.arc.Names())

	for _, rec := range recs {
		if ctx.Err() != nil {
			return false
		}
		if !ValidCaption(rec.Caption) {
			pp.stats.EmptyCaptions++
			continue
		}
		d, ok := pp.materialize(ctx, rec, res, roots)
		if !ok {
			continue
		}
		pp.stats.Emitted++
		if !yield(d) {
			return false
		}
	}
	return true
}

type asset struct {
	name string
	data []byte
}

var errNoExtension = errors.New("resolved asset has no extension")

// materialize resolves and fetches a record's images. Unresolvable or
// unreadable images are dropped; the record is dropped if none remain.
func (pp *Paper) materialize(ctx context.Context, rec figure.Record, res *figure.Resolver, roots []string) (Datum, bool) {
	var assets []asset
	for _, ref := range rec.Refs {
		name, ok := res.Resolve(ref, roots)
		if !ok {
			pp.stats.UnresolvedRefs++
			pp.log.Debug("unresolved image reference", "ref", ref)
			continue
		}
		a, err := pp.fetch(ctx, name)
		if err != nil {
			pp.stats.AssetErrors++
			pp.log.Debug("dropping asset", "member", name, "error", err)
			continue
		}
		assets = append(assets, a)
	}

	switch len(assets) {
	case 0:
		return Datum{}, false
	case 1:
		return Datum{Image: assets[0].data, Caption: rec.Caption, ImagePath: assets[0].name, URL: pp.url}, true
	}

	imgs := make([]image.Image, 0, len(assets))
	decoded := make([]asset, 0, len(assets))
	for _, a := range assets {
		img, _, err := imaging.Decode(a.data)
		if err != nil {
			pp.stats.AssetErrors++
			continue
		}
		imgs = append(imgs, img)
		decoded = append(decoded, a)
	}
	switch len(decoded) {
	case 0:
		return Datum{}, false
	case 1:
		return Datum{Image: decoded[0].data, Caption: rec.Caption, ImagePath: decoded[0].name, URL: pp.url}, true
	}
	names := make([]string, len(decoded))
	for i, a := range decoded {
		names[i] = a.name
	}
	canvas, err := imaging.Composite(imgs, figure.ChooseLayout(rec.Caption))
	if err != nil {
		pp.stats.AssetErrors++
		return Datum{}, false
	}
	data, err := imaging.EncodePNG(canvas)
	if err != nil {
		pp.stats.AssetErrors++
		return Datum{}, false
	}
	pp.stats.Composites++
	return Datum{Image: data, Caption: rec.Caption, ImagePath: imaging.CompositeName(names), URL: pp.url}, true
}

// fetch reads a resolved member, rasterizing PDFs, and checks that the
// bytes decode as an image.
func (pp *Paper) fetch(ctx context.Context, name string) (asset, error) {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return asset{}, errNoExtension
	}
	m, ok := pp.arc.Lookup(name)
	if !ok {
		return asset{}, fmt.Errorf("member %s not found", name)
	}
	data, err := m.Read()
	if err != nil {
		return asset{}, err
	}
	if ext == ".pdf" {
		if pp.p.raster == nil {
			return asset{}, errors.New("no rasterizer configured")
		}
		data, err = pp.p.raster.Rasterize(ctx, data)
		if err != nil {
			return asset{}, err
		}
		name = imaging.PNGName(name)
	}
	if _, err := imaging.Check(data); err != nil {
		return asset{}, err
	}
	return asset{name: name, data: data}, nil
}

func (pp *Paper) equations(ctx context.Context, yield func(Datum) bool) bool {
	n := 0
	for _, doc := range pp.docs {
		for _, eq := range equation.Extract(doc.Text) {
			if ctx.Err() != nil {
				return false
			}
			pp.stats.Equations++
			if pp.p.render == nil {
				pp.stats.RenderErrors++
				continue
			}
			img, err := pp.p.render.Render(ctx, eq)
			if err != nil {
				pp.stats.RenderErrors++
				pp.log.Debug("equation render failed", "error", err)
				continue
			}
			n++
			pp.stats.Emitted++
			if !yield(Datum{Image: img, Caption: eq, ImagePath: fmt.Sprintf("eq-%d.png", n), URL: pp.url}) {
				return false
			}
		}
	}
	return true
}
