package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/figcap/internal/paper"
	"github.com/dgallion1/figcap/internal/pipeline"
	"github.com/dgallion1/figcap/internal/sink"
)

type extractRequest struct {
	Shards []string `json:"shards"`
	Kinds  []string `json:"kinds"`
	Force  bool     `json:"force"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	shards := make([]string, 0, len(req.Shards))
	for _, sh := range req.Shards {
		if sh = strings.TrimSpace(sh); sh != "" {
			shards = append(shards, sh)
		}
	}
	if len(shards) == 0 {
		jsonError(w, "at least one shard is required", http.StatusBadRequest)
		return
	}
	kinds, err := paper.ParseKinds(req.Kinds)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(shards, kinds, req.Force)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   job.Snapshot().Status,
		"shards":   len(shards),
		"poll_url": fmt.Sprintf("/api/extract/%s/status", job.ID),
	})
}

func (s *Server) handleExtractStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

type recordView struct {
	Caption   string `json:"caption"`
	ImagePath string `json:"image_path"`
	URL       string `json:"url"`
	Size      int    `json:"size"`
	Image     []byte `json:"image,omitempty"`
}

// handleExtractPaper runs one uploaded paper archive synchronously and
// returns its records.
func (s *Server) handleExtractPaper(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	kinds, err := paper.ParseKinds(formList(r, "kinds"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	url := r.FormValue("url")
	if url == "" {
		url = sanitizeFilename(header.Filename)
	}
	withImages := r.FormValue("images") == "true"

	var out sink.Collector
	ps, err := s.orchestrator.Driver().Paper(r.Context(), data, url, kinds, &out)
	if err != nil {
		jsonError(w, "extraction failed: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	recs := out.Records()
	views := make([]recordView, 0, len(recs))
	for _, d := range recs {
		v := recordView{Caption: d.Caption, ImagePath: d.ImagePath, URL: d.URL, Size: len(d.Image)}
		if withImages {
			v.Image = d.Image
		}
		views = append(views, v)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"url":     url,
		"stats":   ps,
		"records": views,
	})
}

// formList reads a multi-valued form field, also splitting commas.
func formList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.MultipartForm.Value[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
