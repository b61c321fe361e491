package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storydub/internal/services"
)

const (
	serviceName        = "llm"
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 90 * time.Second
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client talks to an OpenRouter-compatible chat completion endpoint. It makes
// one request per call and leaves retries to the stage executor.
type Client struct {
	cfg        Config
	httpClient *http.Client
	languages  map[string]string
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

// WithLanguageNames maps language codes to the names used in prompts.
func WithLanguageNames(names map[string]string) Option {
	return func(c *Client) {
		c.languages = names
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

type emptyContentError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)", e.FinishReason, e.Refusal, e.Snippet)
}

// CompleteJSON sends one JSON-mode chat completion and returns the content of
// the first choice that carries any. Empty replies are transient.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return "", services.Wrap(services.ErrValidation, "", "llm complete", "system and user prompts required", nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "", "llm complete", "api key required", nil)
	}

	reply, body, err := c.post(ctx, completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.7,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	})
	if err != nil {
		return "", err
	}

	detail := &emptyContentError{Snippet: summarizePayloadSnippet(string(body))}
	for _, choice := range reply.Choices {
		if detail.FinishReason == "" {
			detail.FinishReason = strings.TrimSpace(choice.FinishReason)
		}
		if detail.Refusal == "" {
			detail.Refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", services.Wrap(services.ErrTransient, "", "llm complete", "", detail)
}

type completionRequest struct {
	Model          string            `json:"model"`
	Messages       []message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Refusal string `json:"refusal,omitempty"`
}

type completionReply struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, payload completionRequest) (completionReply, []byte, error) {
	var reply completionReply
	encoded, err := json.Marshal(payload)
	if err != nil {
		return reply, nil, services.Wrap(services.ErrExternalTool, "", "llm request", "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return reply, nil, services.Wrap(services.ErrConfiguration, "", "llm request", "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return reply, nil, ctx.Err()
		}
		return reply, nil, services.Wrap(services.ErrTransient, "", "llm request", fmt.Sprintf("http error (timeout=%s)", c.httpClient.Timeout), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply, nil, services.Wrap(services.ErrTransient, "", "llm request", "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return reply, body, services.NewStatusError(serviceName, resp, body)
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return reply, body, services.Wrap(services.ErrTransient, "", "llm request", "decode response", err)
	}
	if reply.Error != nil {
		return reply, body, services.Wrap(services.ErrExternalTool, "", "llm request", "api error: "+strings.TrimSpace(reply.Error.Message), nil)
	}
	return reply, body, nil
}
