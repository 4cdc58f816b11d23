package equation

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{"inline", `Energy $E=mc^2$ holds.`, []string{"E=mc^2"}},
		{"display", "Then $$\\int_0^1 f\\,dx$$ follows.", []string{`\int_0^1 f\,dx`}},
		{"environment", "\\begin{equation}\n a+b \n\\end{equation}", []string{"a+b"}},
		{"math env", `\begin{math}x\end{math}`, []string{"x"}},
		{"escaped dollar", `costs \$5 and $y$`, []string{"y"}},
		{"inline across lines ignored", "a $x\ny$ b", nil},
		{"empty span skipped", `$ $ and $z$`, []string{"z"}},
		{"document order", "$a$ \\begin{equation}b\\end{equation} $$c$$", []string{"a", "b", "c"}},
		{"unclosed", `price $5`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.doc)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

type fakeRaster struct {
	called int
	err    error
}

func (f *fakeRaster) Rasterize(ctx context.Context, pdf []byte) ([]byte, error) {
	f.called++
	return []byte("png"), f.err
}

func TestLatexRenderer_Defaults(t *testing.T) {
	r := NewLatexRenderer(&fakeRaster{}, 0)
	if r.Timeout != 20*time.Second || r.Binary != "pdflatex" {
		t.Errorf("unexpected defaults: %+v", r)
	}
}

func TestLatexRenderer_EmptyEquation(t *testing.T) {
	fr := &fakeRaster{}
	r := NewLatexRenderer(fr, time.Second)
	if _, err := r.Render(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty equation")
	}
	if fr.called != 0 {
		t.Error("rasterizer should not run")
	}
}

func TestLatexRenderer_MissingBinary(t *testing.T) {
	fr := &fakeRaster{}
	r := NewLatexRenderer(fr, time.Second)
	r.Binary = "figcap-no-such-pdflatex"
	_, err := r.Render(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("unexpected timeout: %v", err)
	}
	if fr.called != 0 {
		t.Error("rasterizer should not run")
	}
}
