package figure

import (
	"slices"
	"testing"
)

func TestResolve_RootPrecedence(t *testing.T) {
	r := NewResolver([]string{"figs/a.png"})

	if got, ok := r.Resolve("a", []string{"", "figs/"}); !ok || got != "figs/a.png" {
		t.Errorf("expected figs/a.png, got %q (ok=%v)", got, ok)
	}
	if got, ok := r.Resolve("a.png", []string{""}); ok {
		t.Errorf("expected no match, got %q", got)
	}
	if got, ok := r.Resolve("a.png", nil); ok {
		t.Errorf("expected no match without roots, got %q", got)
	}
}

func TestResolve_Cases(t *testing.T) {
	files := []string{
		"./main.tex",
		"plot.eps",
		"plot.pdf",
		"plot.png",
		"figures/sub/diagram.jpg",
		"figs/b.png",
		"b.png",
		"noext",
	}
	r := NewResolver(files)
	tests := []struct {
		name  string
		ref   string
		roots []string
		want  string
		ok    bool
	}{
		{"exact", "plot.eps", nil, "plot.eps", true},
		{"stem prefers pdf", "plot", nil, "plot.pdf", true},
		{"wrong extension falls back to stem", "plot.gif", nil, "plot.pdf", true},
		{"subdirectory ref", "figures/sub/diagram", nil, "figures/sub/diagram.jpg", true},
		{"via root", "sub/diagram.jpg", []string{"figures/"}, "figures/sub/diagram.jpg", true},
		{"empty root first", "b", []string{"figs/"}, "b.png", true},
		{"dot slash ref", "./b.png", nil, "b.png", true},
		{"quoted ref", `"b.png"`, nil, "b.png", true},
		{"backslash ref", `figures\sub\diagram.jpg`, nil, "figures/sub/diagram.jpg", true},
		{"no extension member", "noext", nil, "noext", true},
		{"missing", "nothere", []string{"figs/"}, "", false},
		{"empty ref", "  ", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.ref, tt.roots)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Resolve(%q, %q) = %q, %v; expected %q, %v", tt.ref, tt.roots, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestResolve_ReturnsArchiveName(t *testing.T) {
	r := NewResolver([]string{"./figs/a.png"})
	if got, ok := r.Resolve("figs/a", nil); !ok || got != "./figs/a.png" {
		t.Errorf("expected ./figs/a.png, got %q (ok=%v)", got, ok)
	}
}

func TestResolve_UppercaseExtensionRanksAfterLowercase(t *testing.T) {
	r := NewResolver([]string{"x.PNG", "x.jpg"})
	if got, _ := r.Resolve("x", nil); got != "x.jpg" {
		t.Errorf("expected x.jpg, got %q", got)
	}
}

func TestGraphicsPaths(t *testing.T) {
	docs := []string{
		`\graphicspath{{figs/}{images/plots/}}`,
		`\graphicspath{ {figs/} {extra/} }`,
		`\graphicspath{bare/}`,
	}
	got := GraphicsPaths(docs...)
	want := []string{"figs/", "images/plots/", "extra/", "bare/"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
	if got := GraphicsPaths("no directive"); len(got) != 0 {
		t.Errorf("expected none, got %q", got)
	}
}
