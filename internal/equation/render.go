package equation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/figcap/internal/raster"
)

// Renderer turns an equation into PNG bytes.
type Renderer interface {
	Render(ctx context.Context, eq string) ([]byte, error)
}

const standaloneTemplate = `\documentclass[crop]{standalone}
\begin{document}
$%s$
\end{document}
`

// LatexRenderer compiles each equation as a standalone document with
// pdflatex and rasterizes the resulting single-page PDF.
type LatexRenderer struct {
	Binary  string
	Timeout time.Duration
	Raster  raster.Rasterizer
}

func NewLatexRenderer(r raster.Rasterizer, timeout time.Duration) *LatexRenderer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &LatexRenderer{Binary: "pdflatex", Timeout: timeout, Raster: r}
}

func (l *LatexRenderer) Render(ctx context.Context, eq string) ([]byte, error) {
	eq = strings.TrimSpace(eq)
	if eq == "" {
		return nil, fmt.Errorf("render: empty equation")
	}
	dir, err := os.MkdirTemp("", "figcap-eq-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, "eq.tex"), []byte(fmt.Sprintf(standaloneTemplate, eq)), 0o600); err != nil {
		return nil, fmt.Errorf("write tex: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, l.Binary, "-interaction=nonstopmode", "-halt-on-error", "eq.tex")
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if cctx.Err() != nil {
			return nil, fmt.Errorf("pdflatex: %w", cctx.Err())
		}
		return nil, fmt.Errorf("pdflatex: %w", err)
	}

	pdf, err := os.ReadFile(filepath.Join(dir, "eq.pdf"))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return l.Raster.Rasterize(ctx, pdf)
}
