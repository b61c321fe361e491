// Package youtube uploads finished shorts through the YouTube Data API
// resumable upload protocol.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"storydub/internal/adapters"
	"storydub/internal/config"
	"storydub/internal/logging"
	"storydub/internal/services"
)

const (
	serviceName        = "youtube"
	defaultHTTPTimeout = 30 * time.Minute
	maxTitleRunes      = 100
	maxTags            = 15
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

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client implements adapters.Publisher.
type Client struct {
	cfg        config.YouTube
	httpClient *http.Client
	logger     *slog.Logger
}

var _ adapters.Publisher = (*Client)(nil)

// NewClient constructs a publisher.
func NewClient(cfg config.YouTube, opts ...Option) *Client {
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
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

type videoResource struct {
	Snippet snippet     `json:"snippet"`
	Status  videoStatus `json:"status"`
}

type snippet struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags,omitempty"`
	CategoryID      string   `json:"categoryId"`
	DefaultLanguage string   `json:"defaultLanguage,omitempty"`
}

type videoStatus struct {
	PrivacyStatus           string `json:"privacyStatus"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

// Publish uploads path with meta and returns the new video id. Videos are
// uploaded with the configured privacy status, private by default, so the
// creator reviews them before they go public.
func (c *Client) Publish(ctx context.Context, path string, meta adapters.Metadata) (string, error) {
	if !c.cfg.Enabled {
		return "", services.Wrap(services.ErrConfiguration, "", "publish", "youtube publishing is disabled", nil)
	}
	if c.cfg.AccessToken == "" {
		return "", services.Wrap(services.ErrConfiguration, "", "publish", "youtube access token not configured", nil)
	}
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "", "publish", path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "", "publish", path, err)
	}

	session, err := c.startSession(ctx, buildResource(meta, c.cfg), info.Size())
	if err != nil {
		return "", err
	}
	id, err := c.upload(ctx, session, file, info.Size())
	if err != nil {
		return "", err
	}
	c.logger.Info("short uploaded",
		logging.String("video_id", id),
		logging.String("url", "https://www.youtube.com/shorts/"+id),
		logging.String(logging.FieldEventType, "video_published"),
	)
	return id, nil
}

// buildResource builds the video resource for meta, trimming the title and tags
// to the API's limits.
func buildResource(meta adapters.Metadata, cfg config.YouTube) videoResource {
	title := strings.TrimSpace(meta.Title)
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes])
	}
	tags := meta.Tags
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	language := meta.Language
	if i := strings.IndexByte(language, '-'); i > 0 {
		language = language[:i]
	}
	return videoResource{
		Snippet: snippet{
			Title:           title,
			Description:     strings.TrimSpace(meta.Description),
			Tags:            tags,
			CategoryID:      cfg.CategoryID,
			DefaultLanguage: language,
		},
		Status: videoStatus{PrivacyStatus: cfg.PrivacyStatus},
	}
}

func (c *Client) startSession(ctx context.Context, resource videoResource, size int64) (string, error) {
	endpoint, err := url.Parse(c.cfg.UploadURL)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "", "publish", "upload url", err)
	}
	query := endpoint.Query()
	query.Set("uploadType", "resumable")
	query.Set("part", "snippet,status")
	endpoint.RawQuery = query.Encode()

	payload, err := json.Marshal(resource)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "publish", "encode metadata", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "", "publish", "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", "video/mp4")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))

	resp, body, err := c.do(req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", services.NewStatusError(serviceName, resp, body)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", services.Wrap(services.ErrExternalTool, "", "publish", "upload session has no location", nil)
	}
	return location, nil
}

func (c *Client) upload(ctx context.Context, session string, file io.Reader, size int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, file)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "", "publish", "new upload request", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "video/mp4")

	resp, body, err := c.do(req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", services.NewStatusError(serviceName, resp, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		return "", services.Wrap(services.ErrExternalTool, "", "publish", fmt.Sprintf("unexpected upload response: %.200s", body), err)
	}
	return created.ID, nil
}

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, nil, req.Context().Err()
		}
		return nil, nil, services.Wrap(services.ErrTransient, "", "publish", "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "", "publish", "read body", err)
	}
	return resp, body, nil
}
