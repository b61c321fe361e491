package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"storydub/internal/api"
	"storydub/internal/services"
)

// ErrUnavailable reports that no daemon answered at the configured address.
var ErrUnavailable = errors.New("storydub daemon is not reachable")

const (
	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 4 << 10
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status onto the shared error markers.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusServiceUnavailable:
		return services.ErrTransient
	default:
		return nil
	}
}

// Client calls the daemon API.
type Client struct {
	baseURL        *url.URL
	token          string
	http           *http.Client
	requestTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(cl *Client) {
		cl.token = strings.TrimSpace(token)
	}
}

// WithRequestTimeout bounds non-streaming calls.
func WithRequestTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.requestTimeout = d
		}
	}
}

// New returns a client for addr, which is either a host:port bind address
// or a full http URL.
func New(addr string, opts ...Option) (*Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "apiclient", "daemon address is empty", nil)
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "apiclient", "parse daemon address", err)
	}
	c := &Client{
		baseURL:        base,
		http:           &http.Client{},
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the daemon root URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SubmitDub queues a dubbing job.
func (c *Client) SubmitDub(ctx context.Context, req api.DubRequest) (api.SubmitResponse, error) {
	var out api.SubmitResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/jobs/dub", req, &out)
	return out, err
}

// SubmitStory queues a story job.
func (c *Client) SubmitStory(ctx context.Context, req api.StoryRequest) (api.SubmitResponse, error) {
	var out api.SubmitResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/jobs/story", req, &out)
	return out, err
}

// List returns every job, newest first.
func (c *Client) List(ctx context.Context) ([]api.Job, error) {
	var out api.JobList
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Get returns one job.
func (c *Client) Get(ctx context.Context, id string) (api.Job, error) {
	var out api.Job
	err := c.doJSON(ctx, http.MethodGet, jobPath(id, ""), nil, &out)
	return out, err
}

// Cancel requests cancellation of a live job.
func (c *Client) Cancel(ctx context.Context, id string) (api.Job, error) {
	var out api.Job
	err := c.doJSON(ctx, http.MethodPost, jobPath(id, "cancel"), nil, &out)
	return out, err
}

// Catalog returns the languages, speakers, themes and moods the daemon accepts.
func (c *Client) Catalog(ctx context.Context) (api.CatalogResponse, error) {
	var out api.CatalogResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/config", nil, &out)
	return out, err
}

// Status returns daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	var out api.Status
	err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Download copies the finished artifact of job id into w and returns the
// number of bytes written.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, jobPath(id, "download"), nil, "video/mp4")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", id, err)
	}
	return n, nil
}

func jobPath(id, action string) string {
	p := "/api/jobs/" + strings.TrimSpace(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	resp, err := c.send(ctx, method, path, payload, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send performs one request and converts transport failures and non-2xx
// responses into errors. The caller owns the returned body.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", id)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w at %s", ErrUnavailable, c.baseURL)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload api.ErrorResponse
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
