package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/figcap/internal/paper"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_RecordAndDone(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	done, err := l.Done(ctx, "s3://bucket/shard-1.tar")
	if err != nil || done {
		t.Fatalf("expected unknown shard not done, got %v (%v)", done, err)
	}

	err = l.Record(ctx, ShardResult{
		Shard:   "s3://bucket/shard-1.tar",
		JobID:   "job-1",
		Output:  "/out/job-1.tar",
		Papers:  10,
		Records: 42,
		Detail:  paper.Stats{FigureBlocks: 50, Emitted: 42},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if done, err := l.Done(ctx, "s3://bucket/shard-1.tar"); err != nil || !done {
		t.Errorf("expected shard done, got %v (%v)", done, err)
	}

	// a failed run does not count as done
	l.Record(ctx, ShardResult{Shard: "bad.tar", JobID: "job-1", Error: "corrupt"})
	if done, _ := l.Done(ctx, "bad.tar"); done {
		t.Error("expected failed shard not done")
	}
}

func TestLedger_ListOrderAndDetail(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, name := range []string{"a.tar", "b.tar", "c.tar"} {
		l.Record(ctx, ShardResult{
			Shard:       name,
			JobID:       "j",
			Records:     i,
			Detail:      paper.Stats{Emitted: i},
			ProcessedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	list, err := l.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Shard != "c.tar" || list[1].Shard != "b.tar" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Detail.Emitted != 2 || !list[0].Complete() {
		t.Errorf("unexpected detail %+v", list[0])
	}

	shards, _, records, err := l.Totals(ctx)
	if err != nil || shards != 3 || records != 3 {
		t.Errorf("unexpected totals shards=%d records=%d (%v)", shards, records, err)
	}
}

func TestLedger_Forget(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	l.Record(ctx, ShardResult{Shard: "x.tar", JobID: "j"})

	found, err := l.Forget(ctx, "x.tar")
	if err != nil || !found {
		t.Fatalf("expected forget to find shard, got %v (%v)", found, err)
	}
	if done, _ := l.Done(ctx, "x.tar"); done {
		t.Error("expected shard forgotten")
	}
	if found, _ := l.Forget(ctx, "x.tar"); found {
		t.Error("expected second forget to report missing")
	}
}
