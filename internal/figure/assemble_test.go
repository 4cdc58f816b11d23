package figure

import (
	"slices"
	"testing"
)

func TestAssembleWith_PerCaptionGroups(t *testing.T) {
	content := `
\begin{subfigure}{0.3\textwidth}
  \includegraphics{a1}\includegraphics{a2}
  \caption{Pair}
\end{subfigure}
\begin{subfigure}{0.3\textwidth}
  \includegraphics{b}
\end{subfigure}
\includegraphics{m1}
\includegraphics{m2}
\caption{Overview}`
	p, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if recs := AssembleWith(p, PerImage); len(recs) != 5 {
		t.Fatalf("expected 5 per-image records, got %d", len(recs))
	}

	recs := AssembleWith(p, PerCaption)
	want := []Record{
		{Refs: []string{"a1", "a2"}, Caption: "<s1>Pair</s1><f>Overview</f>"},
		{Refs: []string{"b"}, Caption: "<s2></s2><f>Overview</f>"},
		{Refs: []string{"m1", "m2"}, Caption: "<f>Overview</f>"},
	}
	if len(recs) != len(want) {
		t.Fatalf("expected %d records, got %d: %+v", len(want), len(recs), recs)
	}
	for i := range want {
		if !slices.Equal(recs[i].Refs, want[i].Refs) || recs[i].Caption != want[i].Caption {
			t.Errorf("record %d: expected %+v, got %+v", i, want[i], recs[i])
		}
	}
}

func TestAssemble_PositionMarkersFollowItems(t *testing.T) {
	p := &Parsed{
		Items: []Item{
			{Kind: MainImage, Ref: "x"},
			{Kind: SubFigure, Ref: "y", Caption: "Why", HasCaption: true, Group: 1},
			{Kind: SubFigure, Ref: "z", Group: 2},
		},
	}
	recs := Assemble(p)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Caption != "" {
		t.Errorf("expected empty caption without figure caption, got %q", recs[0].Caption)
	}
	if recs[1].Caption != "<s2>Why</s2>" {
		t.Errorf("expected position marker 2, got %q", recs[1].Caption)
	}
	if recs[2].Caption != "<s3></s3>" {
		t.Errorf("expected empty marker for uncaptioned sub-figure, got %q", recs[2].Caption)
	}
}
