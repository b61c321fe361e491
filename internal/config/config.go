package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	CacheDir string `toml:"cache_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Workflow contains job scheduling, fan-out and retry policy.
type Workflow struct {
	JobWorkers            int `toml:"job_workers"`
	QueueCapacity         int `toml:"queue_capacity"`
	FanOutWorkers         int `toml:"fanout_workers"`
	RetryAttempts         int `toml:"retry_attempts"`
	RetryBaseDelayMillis  int `toml:"retry_base_delay_ms"`
	RetryMaxDelaySeconds  int `toml:"retry_max_delay_seconds"`
	AdapterTimeoutSeconds int `toml:"adapter_timeout_seconds"`
	RenderTimeoutSeconds  int `toml:"render_timeout_seconds"`
	SubscriberBuffer      int `toml:"subscriber_buffer"`
}

// Sarvam contains speech-to-text, translation and text-to-speech settings.
type Sarvam struct {
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	STTModel           string `toml:"stt_model"`
	TranslateModel     string `toml:"translate_model"`
	TTSModel           string `toml:"tts_model"`
	SampleRate         int    `toml:"sample_rate"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute"`
	ChunkSeconds       int    `toml:"chunk_seconds"`
	TranslateBatchSize int    `toml:"translate_batch_chars"`
	TTSBatchSize       int    `toml:"tts_batch_chars"`
}

// LLM contains the chat-completions endpoint used for scene breakdown.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Imagen contains image generation settings.
type Imagen struct {
	APIKey      string `toml:"api_key"`
	BaseURL     string `toml:"base_url"`
	Model       string `toml:"model"`
	AspectRatio string `toml:"aspect_ratio"`
}

// YouTube contains publishing settings.
type YouTube struct {
	Enabled       bool   `toml:"enabled"`
	AccessToken   string `toml:"access_token"`
	UploadURL     string `toml:"upload_url"`
	PrivacyStatus string `toml:"privacy_status"`
	CategoryID    string `toml:"category_id"`
}

// Tools names the external binaries invoked by media adapters.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
	YTDLP   string `toml:"ytdlp"`
}

// StorySource contains settings for scraping public-domain story collections.
type StorySource struct {
	CacheDir              string `toml:"cache_dir"`
	CacheTTLHours         int    `toml:"cache_ttl_hours"`
	UserAgent             string `toml:"user_agent"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxIndexPages         int    `toml:"max_index_pages"`
}

// Validation contains quality gate thresholds.
type Validation struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	StoryMinSeconds     float64 `toml:"story_min_seconds"`
	StoryMaxSeconds     float64 `toml:"story_max_seconds"`
	DubMinRatio         float64 `toml:"dub_min_ratio"`
	DubMaxRatio         float64 `toml:"dub_max_ratio"`
	Width               int     `toml:"width"`
	Height              int     `toml:"height"`
	MinOutputBytes      int64   `toml:"min_output_bytes"`
}

// Catalog points at an optional YAML file overriding the embedded catalog.
type Catalog struct {
	Path string `toml:"path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for storydub.
//
// Configuration sections by subsystem:
//   - Paths: job, cache, state and log directories plus the API bind address
//   - Workflow: job workers, fan-out cap, retry policy and adapter timeout
//   - Sarvam: speech and translation provider
//   - LLM: scene breakdown model
//   - Imagen: scene illustration model
//   - YouTube: optional publishing of finished shorts
//   - Tools: ffmpeg, ffprobe and yt-dlp binaries
//   - StorySource: scraping of public-domain story collections
//   - Validation: quality gate thresholds
//   - Catalog: languages, speakers, moods and themes override
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Sarvam        Sarvam        `toml:"sarvam"`
	LLM           LLM           `toml:"llm"`
	Imagen        Imagen        `toml:"imagen"`
	YouTube       YouTube       `toml:"youtube"`
	Tools         Tools         `toml:"tools"`
	StorySource   StorySource   `toml:"story_source"`
	Validation    Validation    `toml:"validation"`
	Catalog       Catalog       `toml:"catalog"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/storydub/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("storydub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.CacheDir, c.Paths.StateDir, c.Paths.LogDir, c.StorySource.CacheDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobsDBPath is the sqlite mirror of the job registry.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// CacheDBPath is the sqlite index of the artifact cache.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.Paths.CacheDir, "cache.db")
}

// LockPath guards against two daemons sharing one state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "storydub.lock")
}

// PIDPath records the running daemon process.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "storydub.pid")
}

// AdapterTimeout is the per-call deadline applied to every adapter invocation.
func (c *Config) AdapterTimeout() time.Duration {
	return time.Duration(c.Workflow.AdapterTimeoutSeconds) * time.Second
}

// RenderTimeout bounds each ffmpeg call of the render stage.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Workflow.RenderTimeoutSeconds) * time.Second
}

// RetryBaseDelay is the first backoff interval.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Workflow.RetryBaseDelayMillis) * time.Millisecond
}

// RetryMaxDelay caps every backoff interval, including Retry-After hints.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Workflow.RetryMaxDelaySeconds) * time.Second
}

// StoryCacheTTL is how long scraped story indexes stay fresh.
func (c *Config) StoryCacheTTL() time.Duration {
	return time.Duration(c.StorySource.CacheTTLHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
