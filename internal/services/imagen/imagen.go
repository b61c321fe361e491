// Package imagen renders scene stills through the Gemini Imagen predict API.
package imagen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storydub/internal/adapters"
	"storydub/internal/config"
	"storydub/internal/fileutil"
	"storydub/internal/logging"
	"storydub/internal/services"
)

const (
	serviceName        = "imagen"
	defaultHTTPTimeout = 120 * time.Second
)

// StylePrefix is prepended to every prompt.
const StylePrefix = "vibrant Indian folk art style, warm earthy tones, " +
	"children's book illustration, safe for all ages, " +
	"detailed and colorful, "

// FallbackPrompt replaces a scene prompt the service refuses.
const FallbackPrompt = "A beautiful Indian village scene at golden hour, " +
	"lush green trees, children playing, warm and inviting atmosphere, " +
	"vibrant colors, Indian folk art style"

// blockedWords lists terms that commonly trip the safety filter in folk
// stories, with their replacements. Order matters: "dead" must not be
// rewritten inside "death".
var blockedWords = []struct{ word, replacement string }{
	{"demon", "mystical creature"},
	{"battle", "challenge"},
	{"kill", "defeat"},
	{"war", "conflict"},
	{"blood", "struggle"},
	{"weapon", "tool"},
	{"fight", "confrontation"},
	{"death", "end"},
	{"dead", "fallen"},
	{"murder", "crime"},
	{"evil", "cunning"},
	{"devil", "trickster"},
	{"hell", "dark place"},
}

// errBlocked marks a response with no image, which the service returns when
// its safety filter rejects the prompt.
var errBlocked = errors.New("no image returned (safety filter likely triggered)")

// SanitizePrompt replaces blocked words in their lower-case and capitalized
// forms.
func SanitizePrompt(prompt string) string {
	result := prompt
	for _, b := range blockedWords {
		result = strings.ReplaceAll(result, b.word, b.replacement)
		result = strings.ReplaceAll(result, capitalize(b.word), capitalize(b.replacement))
	}
	return result
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

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

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client implements adapters.ImageSynthesizer.
type Client struct {
	cfg        config.Imagen
	httpClient *http.Client
	logger     *slog.Logger
}

var _ adapters.ImageSynthesizer = (*Client)(nil)

// NewClient constructs a client.
func NewClient(cfg config.Imagen, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, serviceName)
	return c
}

// SynthesizeImage renders the sanitized, styled directive to a JPEG at
// outPath. When the service rejects the prompt outright, one attempt is made
// with FallbackPrompt. Transient failures are returned for the caller to retry.
func (c *Client) SynthesizeImage(ctx context.Context, directive, outPath string) error {
	image, err := c.generate(ctx, StylePrefix+SanitizePrompt(directive))
	if err != nil {
		if services.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		logging.WarnWithContext(c.logger, "scene prompt rejected, using fallback", "image_prompt_fallback",
			logging.String("path", outPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "scene gets a generic illustration"),
		)
		image, err = c.generate(ctx, StylePrefix+FallbackPrompt)
		if err != nil {
			if errors.Is(err, errBlocked) {
				return services.Wrap(services.ErrExternalTool, "", "imagen", "fallback prompt", err)
			}
			return err
		}
	}
	if err := fileutil.WriteFileAtomic(outPath, image); err != nil {
		return services.Wrap(services.ErrExternalTool, "", "write image", outPath, err)
	}
	c.logger.Debug("scene image saved",
		logging.String("path", outPath),
		logging.Int("kb", len(image)/1024),
	)
	return nil
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount   int           `json:"sampleCount"`
	AspectRatio   string        `json:"aspectRatio"`
	OutputOptions outputOptions `json:"outputOptions"`
}

type outputOptions struct {
	MimeType string `json:"mimeType"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

func (c *Client) generate(ctx context.Context, prompt string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "imagen", "api key not configured", nil)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "models", c.cfg.Model+":predict")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "imagen", "build url", err)
	}
	payload, err := json.Marshal(predictRequest{
		Instances: []predictInstance{{Prompt: prompt}},
		Parameters: predictParameters{
			SampleCount:   1,
			AspectRatio:   c.cfg.AspectRatio,
			OutputOptions: outputOptions{MimeType: "image/jpeg"},
		},
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "", "imagen", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "imagen", "new request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "", "imagen", "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "imagen", "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.NewStatusError(serviceName, resp, body)
	}
	var decoded predictResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "imagen", "decode response", err)
	}
	if len(decoded.Predictions) == 0 || decoded.Predictions[0].BytesBase64Encoded == "" {
		return nil, errBlocked
	}
	image, err := base64.StdEncoding.DecodeString(decoded.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return image, nil
}
