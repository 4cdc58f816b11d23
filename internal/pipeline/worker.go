package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dgallion1/figcap/internal/ledger"
	"github.com/dgallion1/figcap/internal/paper"
	"github.com/dgallion1/figcap/internal/shard"
	"github.com/dgallion1/figcap/internal/sink"
)

// Fetcher loads a shard by location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Ledger remembers which shards have been processed.
type Ledger interface {
	Done(ctx context.Context, shard string) (bool, error)
	Record(ctx context.Context, r ledger.ShardResult) error
}

// Worker processes a single extraction job.
type Worker struct {
	driver    *shard.Driver
	fetcher   Fetcher
	ledger    Ledger
	outputDir string
	log       *slog.Logger

	backoff func(attempt int) time.Duration
}

func NewWorker(driver *shard.Driver, fetcher Fetcher, l Ledger, outputDir string, log *slog.Logger) *Worker {
	return &Worker{
		driver:    driver,
		fetcher:   fetcher,
		ledger:    l,
		outputDir: outputDir,
		log:       log,
		backoff:   Backoff,
	}
}

// Process extracts every shard of the job into <outputDir>/<jobID>.tar.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID)

	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		log.Error("create output dir failed", "error", err)
		job.AddError(fmt.Sprintf("output: %s", err))
		job.SetStatus(StatusFailed, "output")
		return
	}
	output := filepath.Join(w.outputDir, job.ID+".tar")
	out, err := sink.CreateTarSink(output)
	if err != nil {
		log.Error("create output failed", "error", err)
		job.AddError(fmt.Sprintf("output: %s", err))
		job.SetStatus(StatusFailed, "output")
		return
	}
	job.SetOutput(output)

	var processed, failed int
	for _, name := range job.Shards {
		if ctx.Err() != nil {
			break
		}
		if !job.Force && w.ledger != nil {
			done, err := w.ledger.Done(ctx, name)
			if err != nil {
				log.Warn("ledger lookup failed, processing shard", "shard", name, "error", err)
			} else if done {
				log.Info("shard already processed, skipping", "shard", name)
				job.IncrSkipped()
				continue
			}
		}

		processed++
		if err := w.processShard(ctx, job, name, output, out); err != nil {
			failed++
			job.AddError(fmt.Sprintf("shard %s: %s", name, err))
		}
	}

	if err := out.Close(); err != nil {
		log.Error("closing output failed", "error", err)
		job.AddError(fmt.Sprintf("output: %s", err))
		job.SetStatus(StatusFailed, "output")
		return
	}

	snap := job.Snapshot()
	log.Info("job complete",
		"shards", len(job.Shards),
		"skipped", snap.Progress.ShardsSkipped,
		"failed", failed,
		"records", snap.Progress.Records,
	)
	switch {
	case ctx.Err() != nil:
		job.AddError(ctx.Err().Error())
		job.SetStatus(StatusFailed, "cancelled")
	case processed > 0 && failed == processed:
		job.SetStatus(StatusFailed, "done")
	case failed > 0:
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

func (w *Worker) processShard(ctx context.Context, job *Job, name, output string, out sink.Sink) error {
	log := w.log.With("job_id", job.ID, "shard", name)

	job.SetStatus(StatusFetching, "fetching "+name)
	data, err := w.fetch(ctx, name)
	if err != nil {
		log.Error("fetch failed", "error", err)
		job.AddShard(0, 0, 0, true)
		w.record(ctx, ledger.ShardResult{Shard: name, JobID: job.ID, Output: output, Error: err.Error()})
		return err
	}

	job.SetStatus(StatusExtracting, "extracting "+name)
	st, runErr := w.driver.Run(ctx, bytes.NewReader(data), name, kinds(job), out)
	job.AddShard(st.Papers, st.PapersFailed, st.Records, runErr != nil)

	res := ledger.ShardResult{
		Shard:        name,
		JobID:        job.ID,
		Output:       output,
		ContentHash:  ContentHashHex(data),
		Papers:       st.Papers,
		PapersFailed: st.PapersFailed,
		Records:      st.Records,
		Detail:       st.Detail,
	}
	if runErr != nil {
		log.Error("shard failed", "error", runErr)
		res.Error = runErr.Error()
	}
	w.record(ctx, res)
	return runErr
}

// fetch retries throttled and transient source errors with backoff.
func (w *Worker) fetch(ctx context.Context, name string) ([]byte, error) {
	var (
		data    []byte
		lastErr error
	)
	for attempt := range MaxRetries {
		data, lastErr = w.fetcher.Fetch(ctx, name)
		if lastErr == nil || !IsRetryable(lastErr) {
			break
		}
		w.log.Warn("retryable fetch error", "shard", name, "attempt", attempt, "error", lastErr)
		if attempt == MaxRetries-1 {
			break
		}
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return data, lastErr
}

func (w *Worker) record(ctx context.Context, r ledger.ShardResult) {
	if w.ledger == nil {
		return
	}
	r.ProcessedAt = time.Now().UTC()
	// The ledger write must survive a cancelled job context.
	if err := w.ledger.Record(context.WithoutCancel(ctx), r); err != nil {
		w.log.Warn("ledger write failed", "shard", r.Shard, "error", err)
	}
}

func kinds(job *Job) []paper.Kind {
	if len(job.Kinds) == 0 {
		return []paper.Kind{paper.Figures}
	}
	return job.Kinds
}
