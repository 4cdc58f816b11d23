// Package shard drives paper extraction over archive-of-archive shards.
package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/figcap/internal/archive"
	"github.com/dgallion1/figcap/internal/paper"
	"github.com/dgallion1/figcap/internal/sink"
	"github.com/dgallion1/figcap/internal/stats"
)

// Stats summarizes one shard.
type Stats struct {
	Papers       int         `json:"papers"`
	PapersFailed int         `json:"papers_failed"`
	Records      int         `json:"records"`
	Detail       paper.Stats `json:"detail"`
}

// Driver processes the papers of a shard concurrently. Papers are
// independent; output order across papers is unspecified.
type Driver struct {
	proc        *paper.Processor
	concurrency int
	maxMember   int64
	tracker     *stats.Tracker
	log         *slog.Logger
}

// NewDriver builds a driver. tracker may be nil.
func NewDriver(proc *paper.Processor, concurrency int, maxMember int64, tracker *stats.Tracker, log *slog.Logger) *Driver {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{proc: proc, concurrency: concurrency, maxMember: maxMember, tracker: tracker, log: log}
}

var paperExts = map[string]bool{".gz": true, ".tgz": true, ".zip": true, ".tar": true}

// IsPaperMember reports whether a shard member looks like a paper archive.
func IsPaperMember(name string) bool {
	return paperExts[strings.ToLower(path.Ext(name))]
}

// Run streams the shard tar from r and writes every record to out. A
// failing paper is counted and skipped; only sink errors, a corrupt shard
// container or cancellation end the run early. Records already written
// stay written.
func (d *Driver) Run(ctx context.Context, r io.Reader, shardName string, kinds []paper.Kind, out sink.Sink) (Stats, error) {
	log := d.log.With("shard", shardName)
	start := time.Now()

	var (
		mu  sync.Mutex
		agg Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	walkErr := archive.Walk(r, d.maxMember, IsPaperMember, func(name string, data []byte) error {
		if gctx.Err() != nil {
			return archive.ErrStop
		}
		g.Go(func() error {
			ps, err := d.Paper(gctx, data, name, kinds, out)
			mu.Lock()
			defer mu.Unlock()
			agg.Papers++
			agg.Detail.Add(ps)
			agg.Records += ps.Emitted
			if err != nil {
				if errors.Is(err, errSink) || gctx.Err() != nil {
					return err
				}
				agg.PapersFailed++
			}
			return nil
		})
		return nil
	})

	err := g.Wait()
	if err == nil && walkErr != nil {
		log.Warn("shard container error", "error", walkErr)
		err = fmt.Errorf("shard %s: %w", shardName, walkErr)
	}
	if err == nil {
		err = ctx.Err()
	}
	log.Info("shard processed",
		"papers", agg.Papers,
		"papers_failed", agg.PapersFailed,
		"records", agg.Records,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return agg, err
}

var errSink = errors.New("sink write failed")

// Paper extracts one paper archive into out. Panics are recovered and
// reported as errors so a single malformed paper cannot take down a shard.
func (d *Driver) Paper(ctx context.Context, data []byte, url string, kinds []paper.Kind, out sink.Sink) (ps paper.Stats, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("paper panicked", "paper", url, "panic", r)
			err = fmt.Errorf("paper %s panicked: %v", url, r)
		}
		if d.tracker != nil {
			d.tracker.Observe(time.Since(start), ps.Emitted, err != nil)
		}
	}()

	p, err := d.proc.Open(data, url)
	if err != nil {
		d.log.Warn("skipping paper", "paper", url, "error", err)
		return paper.Stats{}, err
	}
	defer func() { ps = p.Stats() }()

	for datum := range p.Records(ctx, kinds...) {
		if werr := out.Write(datum); werr != nil {
			return p.Stats(), fmt.Errorf("%w: %w", errSink, werr)
		}
	}
	return p.Stats(), ctx.Err()
}
