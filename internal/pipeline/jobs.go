package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/figcap/internal/paper"
)

// JobStatus represents the state of an extraction job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusFetching   JobStatus = "fetching"
	StatusExtracting JobStatus = "extracting"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
)

// Job tracks the extraction of a list of shards into one output tar.
type Job struct {
	mu sync.Mutex

	ID     string       `json:"job_id"`
	Shards []string     `json:"shards"`
	Kinds  []paper.Kind `json:"kinds"`
	Output string       `json:"output"`
	Force  bool         `json:"force"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	errors []string
}

// Progress tracks processing progress.
type Progress struct {
	ShardsTotal   int      `json:"shards_total"`
	ShardsDone    int      `json:"shards_done"`
	ShardsSkipped int      `json:"shards_skipped"`
	ShardsFailed  int      `json:"shards_failed"`
	Papers        int      `json:"papers"`
	PapersFailed  int      `json:"papers_failed"`
	Records       int      `json:"records"`
	Errors        []string `json:"errors"`
}

// NewJob builds a queued job with a fresh ID.
func NewJob(shards []string, kinds []paper.Kind, force bool) *Job {
	now := time.Now()
	return &Job{
		ID:        newJobID(),
		Shards:    shards,
		Kinds:     kinds,
		Force:     force,
		Status:    StatusQueued,
		Phase:     "queued",
		Progress:  Progress{ShardsTotal: len(shards)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// SetOutput records where the job's tar is written.
func (j *Job) SetOutput(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Output = path
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// IncrSkipped counts a shard the ledger already had.
func (j *Job) IncrSkipped() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ShardsSkipped++
	j.UpdatedAt = time.Now()
}

// AddShard folds one processed shard into the progress counters.
func (j *Job) AddShard(papers, papersFailed, records int, failed bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ShardsDone++
	if failed {
		j.Progress.ShardsFailed++
	}
	j.Progress.Papers += papers
	j.Progress.PapersFailed += papersFailed
	j.Progress.Records += records
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string       `json:"job_id"`
	Shards    []string     `json:"shards"`
	Kinds     []paper.Kind `json:"kinds"`
	Output    string       `json:"output"`
	Status    JobStatus    `json:"status"`
	Phase     string       `json:"phase"`
	Progress  Progress     `json:"progress"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:        j.ID,
		Shards:    append([]string(nil), j.Shards...),
		Kinds:     append([]paper.Kind(nil), j.Kinds...),
		Output:    j.Output,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  p,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// newJobID returns a time-ordered UUIDv7 so job IDs sort by submission.
func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
