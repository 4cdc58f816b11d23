// Package stats keeps a rolling window of per-paper processing samples.
package stats

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at      time.Time
	ms      int64
	records int
	failed  bool
}

// Snapshot aggregates the samples currently inside the window.
type Snapshot struct {
	Papers       int     `json:"papers"`
	PapersFailed int     `json:"papers_failed"`
	Records      int     `json:"records"`
	MinMs        int64   `json:"min_ms"`
	MaxMs        int64   `json:"max_ms"`
	AvgMs        float64 `json:"avg_ms"`
	P50Ms        float64 `json:"p50_ms"`
	P95Ms        float64 `json:"p95_ms"`
	P99Ms        float64 `json:"p99_ms"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
	now     func() time.Time
}

// NewTracker keeps samples for window; non-positive means one hour.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = time.Hour
	}
	return &Tracker{
		samples: make([]sample, 0, 256),
		window:  window,
		now:     time.Now,
	}
}

// Observe records one processed paper.
func (t *Tracker) Observe(d time.Duration, records int, failed bool) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.pruneLocked(now)
	t.samples = append(t.samples, sample{at: now, ms: ms, records: records, failed: failed})
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	if len(t.samples) == 0 {
		return Snapshot{}
	}

	snap := Snapshot{Papers: len(t.samples)}
	values := make([]int64, 0, len(t.samples))
	var sum int64
	for _, s := range t.samples {
		values = append(values, s.ms)
		sum += s.ms
		snap.Records += s.records
		if s.failed {
			snap.PapersFailed++
		}
	}
	slices.Sort(values)

	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	t.samples = slices.DeleteFunc(t.samples, func(s sample) bool {
		return s.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}
	idx := float64(len(sorted)-1) * pct / 100
	lower := int(idx)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*(idx-float64(lower))
}
