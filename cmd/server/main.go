package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/figcap/internal/api"
	"github.com/dgallion1/figcap/internal/config"
	"github.com/dgallion1/figcap/internal/equation"
	"github.com/dgallion1/figcap/internal/ledger"
	"github.com/dgallion1/figcap/internal/paper"
	"github.com/dgallion1/figcap/internal/pipeline"
	"github.com/dgallion1/figcap/internal/raster"
	"github.com/dgallion1/figcap/internal/shard"
	"github.com/dgallion1/figcap/internal/source"
	"github.com/dgallion1/figcap/internal/stats"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		log.Error("open ledger", "error", err)
		os.Exit(1)
	}
	src := source.NewClient(cfg.FetchTimeout, cfg.MaxShardBytes)

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
	tracker := stats.NewTracker(time.Hour)
	proc := paper.NewProcessor(cfg.PaperOptions(), rz, render, log)
	driver := shard.NewDriver(proc, cfg.PaperConcurrency, cfg.MaxMemberBytes, tracker, log)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, driver, src, led, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, led, tracker, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		src.Close()
		led.Close()
	}()

	log.Info("starting figcap",
		"port", cfg.Port,
		"workers", cfg.WorkerCount,
		"paper_concurrency", cfg.PaperConcurrency,
		"assembly", cfg.AssemblyMode.String(),
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
