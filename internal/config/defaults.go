package config

const (
	defaultWorkDir              = "~/.local/share/storydub/jobs"
	defaultCacheDir             = "~/.cache/storydub"
	defaultStateDir             = "~/.local/share/storydub"
	defaultLogDir               = "~/.local/share/storydub/logs"
	defaultStoryCacheDir        = "~/.cache/storydub/stories"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultSarvamBaseURL        = "https://api.sarvam.ai"
	defaultSarvamSTTModel       = "saarika:v2.5"
	defaultSarvamTranslateModel = "mayura:v1"
	defaultSarvamTTSModel       = "bulbul:v3"
	defaultSarvamSampleRate     = 22050
	defaultSarvamRateLimit      = 60
	defaultChunkSeconds         = 240
	defaultTranslateBatchChars  = 900
	defaultTTSBatchChars        = 490
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-2.5-flash"
	defaultLLMReferer           = "https://github.com/storydub/storydub"
	defaultLLMTitle             = "storydub scene breakdown"
	defaultLLMTimeoutSeconds    = 90
	defaultImagenBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultImagenModel          = "imagen-3.0-generate-002"
	defaultImagenAspectRatio    = "9:16"
	defaultYouTubeUploadURL     = "https://www.googleapis.com/upload/youtube/v3/videos"
	defaultYouTubePrivacy       = "private"
	defaultYouTubeCategoryID    = "22"
	defaultStoryUserAgent       = "StoryShorts-Pipeline/1.0 (educational use)"
	defaultStoryCacheTTLHours   = 7 * 24
	defaultSimilarityThreshold  = 0.30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			CacheDir: defaultCacheDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Workflow: Workflow{
			JobWorkers:            2,
			QueueCapacity:         64,
			FanOutWorkers:         4,
			RetryAttempts:         3,
			RetryBaseDelayMillis:  500,
			RetryMaxDelaySeconds:  30,
			AdapterTimeoutSeconds: 180,
			RenderTimeoutSeconds:  900,
			SubscriberBuffer:      64,
		},
		Sarvam: Sarvam{
			BaseURL:            defaultSarvamBaseURL,
			STTModel:           defaultSarvamSTTModel,
			TranslateModel:     defaultSarvamTranslateModel,
			TTSModel:           defaultSarvamTTSModel,
			SampleRate:         defaultSarvamSampleRate,
			RateLimitPerMinute: defaultSarvamRateLimit,
			ChunkSeconds:       defaultChunkSeconds,
			TranslateBatchSize: defaultTranslateBatchChars,
			TTSBatchSize:       defaultTTSBatchChars,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Imagen: Imagen{
			BaseURL:     defaultImagenBaseURL,
			Model:       defaultImagenModel,
			AspectRatio: defaultImagenAspectRatio,
		},
		YouTube: YouTube{
			UploadURL:     defaultYouTubeUploadURL,
			PrivacyStatus: defaultYouTubePrivacy,
			CategoryID:    defaultYouTubeCategoryID,
		},
		Tools: Tools{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			YTDLP:   "yt-dlp",
		},
		StorySource: StorySource{
			CacheDir:              defaultStoryCacheDir,
			CacheTTLHours:         defaultStoryCacheTTLHours,
			UserAgent:             defaultStoryUserAgent,
			RequestTimeoutSeconds: 15,
			MaxIndexPages:         30,
		},
		Validation: Validation{
			SimilarityThreshold: defaultSimilarityThreshold,
			StoryMinSeconds:     15,
			StoryMaxSeconds:     180,
			DubMinRatio:         0.5,
			DubMaxRatio:         2.0,
			Width:               1080,
			Height:              1920,
			MinOutputBytes:      1000,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
