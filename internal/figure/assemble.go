package figure

import (
	"strconv"
	"strings"
)

// Record pairs image references with one composed caption.
type Record struct {
	Refs    []string
	Caption string
}

// Caption markers. A sub-figure's local caption is wrapped in <sN>...</sN>
// where N is the item's 1-based position (its group number under
// PerCaption); an uncaptioned sub-figure gets an empty <sN></sN>. The figure
// caption is wrapped in <f>...</f>.
const (
	figureOpen  = "<f>"
	figureClose = "</f>"
)

func subOpen(i int) string  { return "<s" + strconv.Itoa(i) + ">" }
func subClose(i int) string { return "</s" + strconv.Itoa(i) + ">" }

// Assemble emits one record per item, each carrying a single image
// reference. A figure caption without any image is dropped.
func Assemble(p *Parsed) []Record {
	if p == nil {
		return nil
	}
	records := make([]Record, 0, len(p.Items))
	for i, item := range p.Items {
		records = append(records, Record{
			Refs:    []string{item.Ref},
			Caption: composeCaption(i+1, item, p),
		})
	}
	return records
}

func composeCaption(pos int, item Item, p *Parsed) string {
	var sb strings.Builder
	if item.Kind == SubFigure {
		sb.WriteString(subOpen(pos))
		sb.WriteString(item.Caption)
		sb.WriteString(subClose(pos))
	}
	if p.HasCaption {
		sb.WriteString(figureOpen)
		sb.WriteString(p.Caption)
		sb.WriteString(figureClose)
	}
	return sb.String()
}

// Mode selects how items become records.
type Mode int

const (
	// PerImage emits one record per item.
	PerImage Mode = iota
	// PerCaption emits one record per caption unit: every image of a
	// sub-figure shares a record, and so do all main images. Records with
	// several images are later composited.
	PerCaption
)

// ParseMode maps "per_image" and "per_caption" to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per_image":
		return PerImage, true
	case "per_caption":
		return PerCaption, true
	}
	return PerImage, false
}

func (m Mode) String() string {
	if m == PerCaption {
		return "per_caption"
	}
	return "per_image"
}

// AssembleWith assembles p under the given mode.
func AssembleWith(p *Parsed, m Mode) []Record {
	if m == PerImage {
		return Assemble(p)
	}
	return assembleGrouped(p)
}

func assembleGrouped(p *Parsed) []Record {
	if p == nil {
		return nil
	}
	var (
		records []Record
		main    []string
		byGroup = make(map[int]int) // group -> index in records
	)
	for _, item := range p.Items {
		if item.Kind == MainImage {
			main = append(main, item.Ref)
			continue
		}
		if i, ok := byGroup[item.Group]; ok {
			records[i].Refs = append(records[i].Refs, item.Ref)
			continue
		}
		byGroup[item.Group] = len(records)
		records = append(records, Record{
			Refs:    []string{item.Ref},
			Caption: composeCaption(item.Group, item, p),
		})
	}
	if len(main) > 0 {
		records = append(records, Record{
			Refs:    main,
			Caption: composeCaption(0, Item{Kind: MainImage}, p),
		})
	}
	return records
}
