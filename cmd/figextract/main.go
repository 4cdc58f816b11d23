package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/figcap/internal/config"
	"github.com/dgallion1/figcap/internal/equation"
	"github.com/dgallion1/figcap/internal/figure"
	"github.com/dgallion1/figcap/internal/paper"
	"github.com/dgallion1/figcap/internal/raster"
	"github.com/dgallion1/figcap/internal/shard"
)

// globals are the flags shared by every subcommand.
type globals struct {
	kinds       []string
	assembly    string
	concurrency int
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globals
	root := &cobra.Command{
		Use:          "figextract",
		Short:        "Extract figure/caption pairs from arXiv LaTeX sources",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&g.kinds, "kinds", nil, "what to extract: figure_captions,math (default figure_captions)")
	root.PersistentFlags().StringVar(&g.assembly, "assembly", "", "record assembly: per_image|per_caption (default from ASSEMBLY_MODE)")
	root.PersistentFlags().IntVar(&g.concurrency, "concurrency", 0, "papers processed in parallel (default from PAPER_CONCURRENCY)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log every dropped figure and asset")

	root.AddCommand(shardCmd(&g), paperCmd(&g))
	return root
}

// setup turns env configuration plus flags into a driver.
func (g *globals) setup() (*shard.Driver, []paper.Kind, config.Config, *slog.Logger, error) {
	cfg := config.Load()
	if g.assembly != "" {
		m, ok := figure.ParseMode(g.assembly)
		if !ok {
			return nil, nil, cfg, nil, fmt.Errorf("unknown assembly mode %q", g.assembly)
		}
		cfg.AssemblyMode = m
	}
	if g.concurrency > 0 {
		cfg.PaperConcurrency = g.concurrency
	}
	kinds, err := paper.ParseKinds(g.kinds)
	if err != nil {
		return nil, nil, cfg, nil, err
	}

	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var (
		rz     raster.Rasterizer
		render equation.Renderer
	)
	if p := raster.NewPoppler(cfg.RasterDPI, cfg.RasterTimeout); p.Available() {
		rz = p
		render = equation.NewLatexRenderer(p, cfg.RenderTimeout)
	} else {
		log.Warn("pdftoppm not found; PDF figures and equations will be dropped")
	}
	proc := paper.NewProcessor(cfg.PaperOptions(), rz, render, log)
	driver := shard.NewDriver(proc, cfg.PaperConcurrency, cfg.MaxMemberBytes, nil, log)
	return driver, kinds, cfg, log, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
