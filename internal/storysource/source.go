package storysource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"storydub/internal/adapters"
	"storydub/internal/catalog"
	"storydub/internal/config"
	"storydub/internal/fileutil"
	"storydub/internal/logging"
	"storydub/internal/services"
)

const (
	serviceName     = "storysource"
	maxPageBytes    = 8 << 20
	defaultPageRate = 2
)

// Option customizes a Source.
type Option func(*Source)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithClock overrides the time source used for cache freshness.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPicker overrides the random choice among matching stories.
func WithPicker(pick func(n int) int) Option {
	return func(s *Source) {
		if pick != nil {
			s.pick = pick
		}
	}
}

// WithPageRate limits story page requests per second for index themes.
func WithPageRate(limit rate.Limit) Option {
	return func(s *Source) {
		s.pages = rate.NewLimiter(limit, 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Source implements adapters.StorySource over the catalog's themes.
type Source struct {
	catalog       *catalog.Catalog
	cacheDir      string
	ttl           time.Duration
	userAgent     string
	maxIndexPages int

	httpClient *http.Client
	pages      *rate.Limiter
	parser     *pageParser
	now        func() time.Time
	pick       func(n int) int
	logger     *slog.Logger
}

// New builds a story source.
func New(cfg config.StorySource, cat *catalog.Catalog, opts ...Option) *Source {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &Source{
		catalog:       cat,
		cacheDir:      cfg.CacheDir,
		ttl:           time.Duration(cfg.CacheTTLHours) * time.Hour,
		userAgent:     strings.TrimSpace(cfg.UserAgent),
		maxIndexPages: cfg.MaxIndexPages,
		httpClient:    &http.Client{Timeout: timeout},
		pages:         rate.NewLimiter(defaultPageRate, 1),
		parser:        newPageParser(),
		now:           time.Now,
		pick:          rand.IntN,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, serviceName)
	return s
}

// Fetch picks a random story of theme whose title or body contains keyword,
// case-insensitively. An unknown theme, an empty collection or no match is
// reported as services.ErrNoResults.
func (s *Source) Fetch(ctx context.Context, theme, keyword string) (adapters.Story, error) {
	theme = strings.ToLower(strings.TrimSpace(theme))
	def, ok := s.catalog.Theme(theme)
	if !ok {
		return adapters.Story{}, services.Wrap(services.ErrNoResults, "", "", fmt.Sprintf("unknown theme %q", theme), nil)
	}
	entries, err := s.index(ctx, theme, def)
	if err != nil {
		return adapters.Story{}, err
	}
	if len(entries) == 0 {
		return adapters.Story{}, services.Wrap(services.ErrNoResults, "", "", fmt.Sprintf("no %s stories available", theme), nil)
	}

	if keyword = strings.TrimSpace(keyword); keyword != "" {
		entries = filterEntries(entries, keyword)
		if len(entries) == 0 {
			return adapters.Story{}, services.Wrap(services.ErrNoResults, "", "", fmt.Sprintf("no %s story matches %q", theme, keyword), nil)
		}
	}
	picked := entries[s.pick(len(entries))]
	return adapters.Story{Theme: theme, Title: picked.Title, Body: picked.Body, Source: def.URL}, nil
}

func filterEntries(entries []Entry, keyword string) []Entry {
	needle := strings.ToLower(keyword)
	var out []Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Title), needle) || strings.Contains(strings.ToLower(e.Body), needle) {
			out = append(out, e)
		}
	}
	return out
}

// index returns the theme's parsed stories, rebuilding the cached index when
// it is missing, unreadable or stale.
func (s *Source) index(ctx context.Context, theme string, def catalog.Theme) ([]Entry, error) {
	indexPath := filepath.Join(s.cacheDir, theme+"_index.json")
	if s.fresh(indexPath) {
		data, err := os.ReadFile(indexPath)
		if err == nil {
			var entries []Entry
			if err := json.Unmarshal(data, &entries); err == nil {
				return entries, nil
			}
		}
		s.logger.Debug("story index unreadable, rebuilding", logging.String("path", indexPath))
	}

	pattern, err := regexp.Compile(def.Pattern)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "story pattern", theme, err)
	}
	var entries []Entry
	switch def.Kind {
	case catalog.SourceHTMLIndex:
		entries, err = s.buildFromIndex(ctx, def.URL, pattern)
	default:
		entries, err = s.buildFromText(ctx, theme, def.URL, pattern)
	}
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		if err := s.writeCache(indexPath, data); err != nil {
			logging.WarnWithContext(s.logger, "story index not cached", "story_cache_write_failed",
				logging.String("path", indexPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check story_source.cache_dir permissions"),
				logging.String(logging.FieldImpact, "index is rebuilt on the next request"),
			)
		}
	}
	s.logger.Info("story index built",
		logging.String("theme", theme),
		logging.Int("stories", len(entries)),
		logging.String(logging.FieldEventType, "story_index_built"),
	)
	return entries, nil
}

func (s *Source) buildFromText(ctx context.Context, theme, sourceURL string, pattern *regexp.Regexp) ([]Entry, error) {
	rawPath := filepath.Join(s.cacheDir, theme+".txt")
	var raw string
	if s.fresh(rawPath) {
		if text, err := fileutil.ReadText(rawPath); err == nil {
			raw = text
		}
	}
	if raw == "" {
		body, err := s.get(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		raw = string(body)
		if err := s.writeCache(rawPath, body); err != nil {
			s.logger.Debug("raw story text not cached", logging.Error(err))
		}
	}
	return SplitText(strings.ReplaceAll(raw, "\r\n", "\n"), pattern), nil
}

func (s *Source) buildFromIndex(ctx context.Context, indexURL string, pattern *regexp.Regexp) ([]Entry, error) {
	page, err := s.get(ctx, indexURL)
	if err != nil {
		return nil, err
	}
	links, err := IndexLinks(page, pattern)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "", "parse story index", indexURL, err)
	}
	if s.maxIndexPages > 0 && len(links) > s.maxIndexPages {
		links = links[:s.maxIndexPages]
	}
	base, err := url.Parse(indexURL)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "story index url", indexURL, err)
	}

	var entries []Entry
	for _, link := range links {
		if err := s.pages.Wait(ctx); err != nil {
			return nil, err
		}
		ref, err := url.Parse(link)
		if err != nil {
			continue
		}
		body, err := s.get(ctx, base.ResolveReference(ref).String())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug("story page skipped", logging.String("link", link), logging.Error(err))
			continue
		}
		if entry, ok := s.parser.Parse(body, link); ok {
			entries = appendEntry(entries, entry.Title, entry.Body)
		}
	}
	return entries, nil
}

func (s *Source) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "story request", target, err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "story request", target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "story read", target, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.NewStatusError(serviceName, resp, body)
	}
	return body, nil
}

func (s *Source) fresh(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return s.ttl > 0 && s.now().Sub(info.ModTime()) < s.ttl
}

func (s *Source) writeCache(path string, data []byte) error {
	if s.cacheDir == "" {
		return errors.New("cache dir not configured")
	}
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data)
}
