package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSarvam()
	c.normalizeLLM()
	c.normalizeImagen()
	c.normalizeYouTube()
	c.normalizeTools()
	if err := c.normalizeStorySource(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.cache_dir", &c.Paths.CacheDir, defaultCacheDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = envValue("STORYDUB_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeSarvam() {
	if strings.TrimSpace(c.Sarvam.APIKey) == "" {
		c.Sarvam.APIKey = envValue("SARVAM_API_KEY")
	}
	c.Sarvam.APIKey = strings.TrimSpace(c.Sarvam.APIKey)
	c.Sarvam.BaseURL = strings.TrimRight(defaultString(c.Sarvam.BaseURL, defaultSarvamBaseURL), "/")
	c.Sarvam.STTModel = defaultString(c.Sarvam.STTModel, defaultSarvamSTTModel)
	c.Sarvam.TranslateModel = defaultString(c.Sarvam.TranslateModel, defaultSarvamTranslateModel)
	c.Sarvam.TTSModel = defaultString(c.Sarvam.TTSModel, defaultSarvamTTSModel)
}

func (c *Config) normalizeLLM() {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		c.LLM.APIKey = envValue("OPENROUTER_API_KEY")
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = defaultString(c.LLM.BaseURL, defaultLLMBaseURL)
	c.LLM.Model = defaultString(c.LLM.Model, defaultLLMModel)
	c.LLM.Referer = defaultString(c.LLM.Referer, defaultLLMReferer)
	c.LLM.Title = defaultString(c.LLM.Title, defaultLLMTitle)
}

func (c *Config) normalizeImagen() {
	if strings.TrimSpace(c.Imagen.APIKey) == "" {
		c.Imagen.APIKey = envValue("GEMINI_API_KEY")
	}
	c.Imagen.APIKey = strings.TrimSpace(c.Imagen.APIKey)
	c.Imagen.BaseURL = strings.TrimRight(defaultString(c.Imagen.BaseURL, defaultImagenBaseURL), "/")
	c.Imagen.Model = defaultString(c.Imagen.Model, defaultImagenModel)
	c.Imagen.AspectRatio = defaultString(c.Imagen.AspectRatio, defaultImagenAspectRatio)
}

func (c *Config) normalizeYouTube() {
	if strings.TrimSpace(c.YouTube.AccessToken) == "" {
		c.YouTube.AccessToken = envValue("YOUTUBE_ACCESS_TOKEN")
	}
	c.YouTube.AccessToken = strings.TrimSpace(c.YouTube.AccessToken)
	c.YouTube.UploadURL = defaultString(c.YouTube.UploadURL, defaultYouTubeUploadURL)
	c.YouTube.PrivacyStatus = strings.ToLower(defaultString(c.YouTube.PrivacyStatus, defaultYouTubePrivacy))
	c.YouTube.CategoryID = defaultString(c.YouTube.CategoryID, defaultYouTubeCategoryID)
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = defaultString(c.Tools.FFmpeg, "ffmpeg")
	c.Tools.FFprobe = defaultString(c.Tools.FFprobe, "ffprobe")
	c.Tools.YTDLP = defaultString(c.Tools.YTDLP, "yt-dlp")
}

func (c *Config) normalizeStorySource() error {
	c.StorySource.UserAgent = defaultString(c.StorySource.UserAgent, defaultStoryUserAgent)
	dir := defaultString(c.StorySource.CacheDir, defaultStoryCacheDir)
	expanded, err := expandPath(dir)
	if err != nil {
		return fmt.Errorf("story_source.cache_dir: %w", err)
	}
	c.StorySource.CacheDir = expanded
	return nil
}

func (c *Config) normalizeCatalog() error {
	c.Catalog.Path = strings.TrimSpace(c.Catalog.Path)
	if c.Catalog.Path == "" {
		return nil
	}
	expanded, err := expandPath(c.Catalog.Path)
	if err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	c.Catalog.Path = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(defaultString(c.Logging.Format, defaultLogFormat))
	c.Logging.Level = strings.ToLower(defaultString(c.Logging.Level, defaultLogLevel))
}

func defaultString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func envValue(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
