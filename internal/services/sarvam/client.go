package sarvam

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"storydub/internal/adapters"
	"storydub/internal/config"
	"storydub/internal/fileutil"
	"storydub/internal/logging"
	"storydub/internal/services"
)

const (
	serviceName        = "sarvam"
	defaultHTTPTimeout = 120 * time.Second
	authHeader         = "api-subscription-key"
)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLimiter replaces the shared request limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client wraps the speech-to-text, translate and text-to-speech endpoints.
type Client struct {
	cfg        config.Sarvam
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient constructs a client. A non-positive rate limit disables limiting.
func NewClient(cfg config.Sarvam, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	limit := rate.Inf
	if cfg.RateLimitPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RateLimitPerMinute) / 60)
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, serviceName)
	return c
}

var (
	_ adapters.Transcriber       = (*Client)(nil)
	_ adapters.Translator        = (*Client)(nil)
	_ adapters.SpeechSynthesizer = (*Client)(nil)
)

// Transcribe uploads one WAV chunk and returns its transcript.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "", "open audio", audioPath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "build stt form", "", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "read audio", audioPath, err)
	}
	_ = form.WriteField("model", c.cfg.STTModel)
	_ = form.WriteField("language_code", language)
	if err := form.Close(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "build stt form", "", err)
	}

	var resp struct {
		Transcript string `json:"transcript"`
	}
	if err := c.post(ctx, "speech-to-text", form.FormDataContentType(), body.Bytes(), &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Transcript), nil
}

type translateRequest struct {
	Input               string `json:"input"`
	SourceLanguageCode  string `json:"source_language_code"`
	TargetLanguageCode  string `json:"target_language_code"`
	Model               string `json:"model"`
	EnablePreprocessing bool   `json:"enable_preprocessing"`
}

// Translate sends text in word-boundary batches and joins the results with
// single spaces. Empty input translates to empty output without a request.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	batches := WordBatches(text, c.cfg.TranslateBatchSize)
	translated := make([]string, 0, len(batches))
	for i, batch := range batches {
		payload, err := json.Marshal(translateRequest{
			Input:               batch,
			SourceLanguageCode:  source,
			TargetLanguageCode:  target,
			Model:               c.cfg.TranslateModel,
			EnablePreprocessing: true,
		})
		if err != nil {
			return "", services.Wrap(services.ErrExternalTool, "", "encode translate request", "", err)
		}
		var resp struct {
			TranslatedText string `json:"translated_text"`
		}
		if err := c.post(ctx, "translate", "application/json", payload, &resp); err != nil {
			return "", fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		translated = append(translated, strings.TrimSpace(resp.TranslatedText))
	}
	return strings.Join(translated, " "), nil
}

type speechRequest struct {
	Inputs             []string `json:"inputs"`
	TargetLanguageCode string   `json:"target_language_code"`
	Speaker            string   `json:"speaker"`
	Model              string   `json:"model"`
	Pace               float64  `json:"pace"`
	SpeechSampleRate   int      `json:"speech_sample_rate"`
}

// Synthesize renders req.Text in sentence batches and writes the joined WAV
// to outPath.
func (c *Client) Synthesize(ctx context.Context, req adapters.SpeechRequest, outPath string) error {
	batches := SentenceBatches(req.Text, c.cfg.TTSBatchSize)
	if len(batches) == 0 {
		return services.Wrap(services.ErrValidation, "", "synthesize", "no speakable text", nil)
	}
	pace := req.Pace
	if pace <= 0 {
		pace = 1.0
	}
	parts := make([][]byte, 0, len(batches))
	for i, batch := range batches {
		payload, err := json.Marshal(speechRequest{
			Inputs:             []string{batch},
			TargetLanguageCode: req.Language,
			Speaker:            req.Speaker,
			Model:              c.cfg.TTSModel,
			Pace:               pace,
			SpeechSampleRate:   c.cfg.SampleRate,
		})
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "", "encode tts request", "", err)
		}
		var resp struct {
			Audios []string `json:"audios"`
		}
		if err := c.post(ctx, "text-to-speech", "application/json", payload, &resp); err != nil {
			return fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		if len(resp.Audios) == 0 {
			return services.Wrap(services.ErrTransient, "", "text-to-speech", fmt.Sprintf("batch %d returned no audio", i+1), nil)
		}
		audio, err := base64.StdEncoding.DecodeString(resp.Audios[0])
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "", "decode tts audio", "", err)
		}
		parts = append(parts, audio)
	}

	joined, err := JoinWAV(parts)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "", "join tts audio", outPath, err)
	}
	if err := fileutil.WriteFileAtomic(outPath, joined); err != nil {
		return services.Wrap(services.ErrExternalTool, "", "write tts audio", outPath, err)
	}
	c.logger.Debug("speech synthesized",
		logging.Int("batches", len(batches)),
		logging.String("path", outPath),
	)
	return nil
}

func (c *Client) post(ctx context.Context, endpoint, contentType string, payload []byte, out any) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "", endpoint, "sarvam api key not configured", nil)
	}
	target, err := url.JoinPath(c.cfg.BaseURL, endpoint)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", endpoint, "build url", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "", endpoint, "new request", err)
	}
	req.Header.Set(authHeader, c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransient, "", endpoint, "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "", endpoint, "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return services.NewStatusError(serviceName+" "+endpoint, resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return services.Wrap(services.ErrExternalTool, "", endpoint, "decode response", err)
	}
	return nil
}
