package testsupport

import (
	"path/filepath"
	"testing"

	"storydub/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry delays are shortened so failure paths finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "jobs")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.StorySource.CacheDir = filepath.Join(base, "stories")
	cfgVal.Workflow.RetryBaseDelayMillis = 1
	cfgVal.Workflow.RetryMaxDelaySeconds = 1
	cfgVal.Workflow.AdapterTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithJobWorkers sets the job pool size and pending queue capacity.
func WithJobWorkers(workers, capacity int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.JobWorkers = workers
		b.cfg.Workflow.QueueCapacity = capacity
	}
}

// WithRetryAttempts overrides the per-call attempt limit.
func WithRetryAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.RetryAttempts = attempts
	}
}

// WithSimilarityThreshold overrides the dub similarity gate.
func WithSimilarityThreshold(threshold float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Validation.SimilarityThreshold = threshold
	}
}
