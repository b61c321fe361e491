package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
//
// Provider API keys are not required here: client commands load the same file
// and never talk to providers. The daemon reports missing keys through
// preflight instead.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateWorkflow,
		c.validateSarvam,
		c.validateYouTube,
		c.validateStorySource,
		c.validateValidation,
		c.validateNotifications,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.job_workers":             c.Workflow.JobWorkers,
		"workflow.queue_capacity":          c.Workflow.QueueCapacity,
		"workflow.fanout_workers":          c.Workflow.FanOutWorkers,
		"workflow.retry_attempts":          c.Workflow.RetryAttempts,
		"workflow.retry_base_delay_ms":     c.Workflow.RetryBaseDelayMillis,
		"workflow.retry_max_delay_seconds": c.Workflow.RetryMaxDelaySeconds,
		"workflow.adapter_timeout_seconds": c.Workflow.AdapterTimeoutSeconds,
		"workflow.render_timeout_seconds":  c.Workflow.RenderTimeoutSeconds,
		"workflow.subscriber_buffer":       c.Workflow.SubscriberBuffer,
	})
}

func (c *Config) validateSarvam() error {
	if err := ensurePositiveMap(map[string]int{
		"sarvam.sample_rate":           c.Sarvam.SampleRate,
		"sarvam.rate_limit_per_minute": c.Sarvam.RateLimitPerMinute,
		"sarvam.chunk_seconds":         c.Sarvam.ChunkSeconds,
		"sarvam.translate_batch_chars": c.Sarvam.TranslateBatchSize,
		"sarvam.tts_batch_chars":       c.Sarvam.TTSBatchSize,
	}); err != nil {
		return err
	}
	if c.Sarvam.TTSBatchSize > 500 {
		return errors.New("sarvam.tts_batch_chars must not exceed 500")
	}
	return nil
}

func (c *Config) validateYouTube() error {
	if !c.YouTube.Enabled {
		return nil
	}
	switch c.YouTube.PrivacyStatus {
	case "private", "unlisted", "public":
	default:
		return fmt.Errorf("youtube.privacy_status must be private, unlisted or public (got %q)", c.YouTube.PrivacyStatus)
	}
	return nil
}

func (c *Config) validateStorySource() error {
	return ensurePositiveMap(map[string]int{
		"story_source.cache_ttl_hours":         c.StorySource.CacheTTLHours,
		"story_source.request_timeout_seconds": c.StorySource.RequestTimeoutSeconds,
		"story_source.max_index_pages":         c.StorySource.MaxIndexPages,
	})
}

func (c *Config) validateValidation() error {
	v := c.Validation
	if v.SimilarityThreshold < 0 || v.SimilarityThreshold > 1 {
		return errors.New("validation.similarity_threshold must be between 0 and 1")
	}
	if v.StoryMinSeconds <= 0 || v.StoryMaxSeconds <= v.StoryMinSeconds {
		return errors.New("validation.story_min_seconds must be positive and below story_max_seconds")
	}
	if v.DubMinRatio <= 0 || v.DubMaxRatio <= v.DubMinRatio {
		return errors.New("validation.dub_min_ratio must be positive and below dub_max_ratio")
	}
	if v.MinOutputBytes < 0 {
		return errors.New("validation.min_output_bytes must be non-negative")
	}
	return ensurePositiveMap(map[string]int{
		"validation.width":  v.Width,
		"validation.height": v.Height,
	})
}

func (c *Config) validateNotifications() error {
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		return nil
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be non-negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
