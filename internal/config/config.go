package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/figcap/internal/figure"
	"github.com/dgallion1/figcap/internal/paper"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Worker pool
	WorkerCount      int
	MaxQueueSize     int
	PaperConcurrency int

	// Size limits
	MaxUploadBytes      int64
	MaxShardBytes       int64
	MaxMemberBytes      int64
	MaxFigureBlockBytes int

	// Job state
	JobTTL time.Duration

	// Output
	OutputDir  string
	LedgerPath string

	// External tools
	FetchTimeout  time.Duration
	RasterDPI     int
	RasterTimeout time.Duration
	RenderTimeout time.Duration

	// Extraction
	FigureEnvs   []string
	AssemblyMode figure.Mode
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("FIGCAP_API_KEY"),

		WorkerCount:      envInt("WORKER_COUNT", 2),
		MaxQueueSize:     envInt("MAX_QUEUE_SIZE", 100),
		PaperConcurrency: envInt("PAPER_CONCURRENCY", 8),

		MaxUploadBytes:      envInt64("MAX_UPLOAD_BYTES", 104857600),  // 100MB
		MaxShardBytes:       envInt64("MAX_SHARD_BYTES", 8589934592),  // 8GB
		MaxMemberBytes:      envInt64("MAX_MEMBER_BYTES", 268435456),  // 256MB
		MaxFigureBlockBytes: envInt("MAX_FIGURE_BLOCK_BYTES", 2000),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		OutputDir:  envOr("OUTPUT_DIR", "./out"),
		LedgerPath: envOr("LEDGER_PATH", "./figcap.db"),

		FetchTimeout:  envDuration("FETCH_TIMEOUT", 10*time.Minute),
		RasterDPI:     envInt("RASTER_DPI", 150),
		RasterTimeout: envDuration("RASTER_TIMEOUT", 30*time.Second),
		RenderTimeout: envDuration("RENDER_TIMEOUT", 20*time.Second),

		FigureEnvs: envList("FIGURE_ENVS", figure.DefaultEnvs),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.PaperConcurrency <= 0 {
		cfg.PaperConcurrency = 8
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.MaxShardBytes <= 0 {
		cfg.MaxShardBytes = 8589934592
	}
	if cfg.MaxMemberBytes <= 0 {
		cfg.MaxMemberBytes = 268435456
	}
	// 0 disables the figure block limit
	if cfg.MaxFigureBlockBytes < 0 {
		cfg.MaxFigureBlockBytes = 2000
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Minute
	}
	if cfg.RasterDPI <= 0 {
		cfg.RasterDPI = 150
	}
	if cfg.RasterTimeout <= 0 {
		cfg.RasterTimeout = 30 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 20 * time.Second
	}
	cfg.AssemblyMode, _ = figure.ParseMode(os.Getenv("ASSEMBLY_MODE"))

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("FIGCAP_API_KEY is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("LEDGER_PATH is required")
	}
	if _, ok := figure.ParseMode(os.Getenv("ASSEMBLY_MODE")); !ok {
		return fmt.Errorf("ASSEMBLY_MODE must be per_image or per_caption")
	}
	return nil
}

// PaperOptions returns the per-paper extraction settings.
func (c Config) PaperOptions() paper.Options {
	return paper.Options{
		MaxFigureBlockBytes: c.MaxFigureBlockBytes,
		MaxMemberBytes:      c.MaxMemberBytes,
		FigureEnvs:          c.FigureEnvs,
		Assembly:            c.AssemblyMode,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
