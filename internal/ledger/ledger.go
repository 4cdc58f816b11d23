// Package ledger records which shards have been processed, so reruns can
// skip finished work.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dgallion1/figcap/internal/paper"
)

// ShardResult is one processed shard.
type ShardResult struct {
	Shard        string      `json:"shard"`
	JobID        string      `json:"job_id"`
	Output       string      `json:"output"`
	ContentHash  string      `json:"content_hash"`
	Papers       int         `json:"papers"`
	PapersFailed int         `json:"papers_failed"`
	Records      int         `json:"records"`
	Detail       paper.Stats `json:"detail"`
	Error        string      `json:"error,omitempty"`
	ProcessedAt  time.Time   `json:"processed_at"`
}

// Complete reports whether the shard finished without a shard-level error.
func (r ShardResult) Complete() bool { return r.Error == "" }

// Ledger is a SQLite-backed store of shard results.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	l := &Ledger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS shards (
		shard TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		output TEXT,
		content_hash TEXT,
		papers INTEGER NOT NULL DEFAULT 0,
		papers_failed INTEGER NOT NULL DEFAULT 0,
		records INTEGER NOT NULL DEFAULT 0,
		detail TEXT,
		error TEXT,
		processed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shards_processed_at ON shards(processed_at);
	`)
	return err
}

// Done reports whether shard has a completed entry.
func (l *Ledger) Done(ctx context.Context, shard string) (bool, error) {
	var errText sql.NullString
	err := l.db.QueryRowContext(ctx, `SELECT error FROM shards WHERE shard = ?`, shard).Scan(&errText)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query shard %s: %w", shard, err)
	}
	return !errText.Valid || errText.String == "", nil
}

// Record inserts or replaces the entry for r.Shard.
func (l *Ledger) Record(ctx context.Context, r ShardResult) error {
	detail, err := json.Marshal(r.Detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = time.Now().UTC()
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO shards (shard, job_id, output, content_hash, papers, papers_failed, records, detail, error, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Shard, r.JobID, r.Output, r.ContentHash, r.Papers, r.PapersFailed, r.Records, string(detail), r.Error, r.ProcessedAt)
	if err != nil {
		return fmt.Errorf("record shard %s: %w", r.Shard, err)
	}
	return nil
}

// List returns the most recently processed shards first. limit <= 0 means 100.
func (l *Ledger) List(ctx context.Context, limit int) ([]ShardResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT shard, job_id, output, content_hash, papers, papers_failed, records, detail, error, processed_at
		FROM shards ORDER BY processed_at DESC, shard LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list shards: %w", err)
	}
	defer rows.Close()

	var out []ShardResult
	for rows.Next() {
		var (
			r                            ShardResult
			output, hash, detail, errTxt sql.NullString
		)
		if err := rows.Scan(&r.Shard, &r.JobID, &output, &hash, &r.Papers, &r.PapersFailed, &r.Records, &detail, &errTxt, &r.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan shard: %w", err)
		}
		r.Output, r.ContentHash, r.Error = output.String, hash.String, errTxt.String
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &r.Detail); err != nil {
				return nil, fmt.Errorf("decode detail for %s: %w", r.Shard, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Forget removes a shard so the next job processes it again. It reports
// whether an entry existed.
func (l *Ledger) Forget(ctx context.Context, shard string) (bool, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM shards WHERE shard = ?`, shard)
	if err != nil {
		return false, fmt.Errorf("forget shard %s: %w", shard, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Totals sums records and papers over all completed shards.
func (l *Ledger) Totals(ctx context.Context) (shards, papers, records int, err error) {
	err = l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(papers), 0), COALESCE(SUM(records), 0)
		FROM shards WHERE error IS NULL OR error = ''
	`).Scan(&shards, &papers, &records)
	if err != nil {
		err = fmt.Errorf("ledger totals: %w", err)
	}
	return shards, papers, records, err
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
