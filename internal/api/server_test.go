package api

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/figcap/internal/config"
	"github.com/dgallion1/figcap/internal/ledger"
	"github.com/dgallion1/figcap/internal/paper"
	"github.com/dgallion1/figcap/internal/pipeline"
	"github.com/dgallion1/figcap/internal/shard"
	"github.com/dgallion1/figcap/internal/stats"
)

const testKey = "test-key"

type memLedger struct {
	results []ledger.ShardResult
}

func (m *memLedger) List(_ context.Context, limit int) ([]ledger.ShardResult, error) {
	if limit < len(m.results) {
		return m.results[:limit], nil
	}
	return m.results, nil
}

func (m *memLedger) Forget(_ context.Context, name string) (bool, error) {
	for i, r := range m.results {
		if r.Shard == name {
			m.results = append(m.results[:i], m.results[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) Totals(context.Context) (int, int, int, error) {
	var papers, records int
	for _, r := range m.results {
		papers += r.Papers
		records += r.Records
	}
	return len(m.results), papers, records, nil
}

func newTestServer(t *testing.T, l *memLedger) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		APIKey:         testKey,
		MaxQueueSize:   2,
		MaxUploadBytes: 1 << 20,
		JobTTL:         time.Hour,
		OutputDir:      t.TempDir(),
	}
	tracker := stats.NewTracker(time.Hour)
	proc := paper.NewProcessor(paper.Options{}, nil, nil, log)
	driver := shard.NewDriver(proc, 2, 0, tracker, log)
	orch := pipeline.NewOrchestrator(cfg, driver, nil, nil, log)
	return NewServer(orch, l, tracker, log, cfg)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func paperArchive(t *testing.T) []byte {
	t.Helper()
	var img bytes.Buffer
	png.Encode(&img, image.NewGray(image.Rect(0, 0, 2, 2)))
	tex := `\begin{figure}\includegraphics{a}\caption{A gray square}\end{figure}`
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	for name, body := range map[string][]byte{"main.tex": []byte(tex), "a.png": img.Bytes()} {
		tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg})
		tw.Write(body)
	}
	tw.Close()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(raw.Bytes())
	zw.Close()
	return buf.Bytes()
}

func TestHealth_NoAuth(t *testing.T) {
	s := newTestServer(t, &memLedger{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuth_Rejects(t *testing.T) {
	s := newTestServer(t, &memLedger{})
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"wrong key", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestExtract_SubmitAndStatus(t *testing.T) {
	s := newTestServer(t, &memLedger{})
	body := `{"shards":["s3://bucket/a.tar"," "],"kinds":["math","figure_captions"]}`
	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		JobID   string `json:"job_id"`
		Shards  int    `json:"shards"`
		PollURL string `json:"poll_url"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.JobID == "" || resp.Shards != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, resp.PollURL, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap pipeline.JobSnapshot
	json.NewDecoder(rec.Body).Decode(&snap)
	if snap.Status != pipeline.StatusQueued || len(snap.Kinds) != 2 || snap.Kinds[0] != paper.Math {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestExtract_BadRequests(t *testing.T) {
	s := newTestServer(t, &memLedger{})
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"no shards", `{"shards":[]}`},
		{"bad kind", `{"shards":["a.tar"],"kinds":["tables"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestExtract_QueueFull(t *testing.T) {
	s := newTestServer(t, &memLedger{})
	body := `{"shards":["a.tar"]}`
	for range 2 {
		if rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(body))); rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
	}
	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(body)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestExtractStatus_NotFound(t *testing.T) {
	s := newTestServer(t, &memLedger{})
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/extract/nope/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestExtractPaper(t *testing.T) {
	s := newTestServer(t, &memLedger{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "../../2101.00001.gz")
	fw.Write(paperArchive(t))
	mw.WriteField("images", "true")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/extract/paper", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		URL     string       `json:"url"`
		Stats   paper.Stats  `json:"stats"`
		Records []recordView `json:"records"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.URL != "2101.00001.gz" {
		t.Errorf("expected sanitized url, got %q", resp.URL)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(resp.Records))
	}
	r := resp.Records[0]
	if r.Caption != "<f>A gray square</f>" || r.ImagePath != "a.png" || len(r.Image) == 0 || r.Size != len(r.Image) {
		t.Errorf("unexpected record %+v", r)
	}
	if resp.Stats.Emitted != 1 {
		t.Errorf("expected 1 emitted, got %d", resp.Stats.Emitted)
	}
}

func TestExtractPaper_Unreadable(t *testing.T) {
	s := newTestServer(t, &memLedger{})
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "x.gz")
	fw.Write([]byte("definitely not an archive"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/extract/paper", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body)
	}
}

func TestShards_ListAndForget(t *testing.T) {
	l := &memLedger{results: []ledger.ShardResult{
		{Shard: "a.tar", Papers: 3, Records: 9},
		{Shard: "b.tar", Papers: 1, Records: 2},
	}}
	s := newTestServer(t, l)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/shards?limit=1", nil))
	var list struct {
		Shards []ledger.ShardResult `json:"shards"`
	}
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Shards) != 1 || list.Shards[0].Shard != "a.tar" {
		t.Errorf("unexpected list %+v", list)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/shards?shard=a.tar", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/shards?shard=a.tar", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/shards", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	l := &memLedger{results: []ledger.ShardResult{{Shard: "a.tar", Papers: 3, Records: 9}}}
	s := newTestServer(t, l)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		QueueDepth int            `json:"queue_depth"`
		Ledger     map[string]int `json:"ledger"`
		Papers     stats.Snapshot `json:"papers"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Ledger["shards"] != 1 || resp.Ledger["records"] != 9 || resp.QueueDepth != 0 {
		t.Errorf("unexpected stats %+v", resp)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"paper.gz", "paper.gz"},
		{"../../etc/passwd", "passwd"},
		{"", "unnamed"},
		{"a..b.gz", "a_b.gz"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
