// Package raster converts single-page PDF figures to PNG.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var ErrPageCount = errors.New("raster: pdf must have exactly one page")

// Rasterizer turns PDF bytes into PNG bytes.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([]byte, error)
}

// Poppler rasterizes with pdftoppm. Each call uses its own temp dir.
type Poppler struct {
	DPI     int
	Timeout time.Duration
	Binary  string
}

func NewPoppler(dpi int, timeout time.Duration) *Poppler {
	if dpi <= 0 {
		dpi = 150
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poppler{DPI: dpi, Timeout: timeout, Binary: "pdftoppm"}
}

// Available reports whether the pdftoppm binary can be found.
func (p *Poppler) Available() bool {
	_, err := exec.LookPath(p.Binary)
	return err == nil
}

func (p *Poppler) Rasterize(ctx context.Context, pdf []byte) ([]byte, error) {
	n, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrPageCount, n)
	}

	dir, err := os.MkdirTemp("", "figcap-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}
	prefix := filepath.Join(dir, "page")

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.Binary,
		"-f", "1", "-l", "1",
		"-png",
		"-r", strconv.Itoa(p.DPI),
		"-singlefile",
		in, prefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pdftoppm: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	out, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("read pdftoppm output: %w", err)
	}
	return out, nil
}

// PageCount counts pages with pdfcpu, falling back to ledongthuc/pdf for
// files pdfcpu refuses.
func PageCount(pdf []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err == nil {
		return n, nil
	}
	n, ferr := numPage(pdf)
	if ferr != nil {
		return 0, fmt.Errorf("read pdf: %w", errors.Join(err, ferr))
	}
	return n, nil
}

func numPage(pdf []byte) (n int, err error) {
	// ledongthuc/pdf panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	r, err := pdflib.NewReader(bytes.NewReader(pdf), int64(len(pdf)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}
