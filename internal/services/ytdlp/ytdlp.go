// Package ytdlp acquires source videos for dub jobs, either by downloading
// a URL with yt-dlp or by copying a local file into the job directory.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"storydub/internal/adapters"
	"storydub/internal/fileutil"
	"storydub/internal/logging"
	"storydub/internal/services"
)

var commandContext = exec.CommandContext

const (
	outputName   = "source.mp4"
	formatFilter = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	defaultTitle = "video"
)

// transientMarkers are yt-dlp error fragments worth retrying.
var transientMarkers = []string{
	"HTTP Error 429",
	"HTTP Error 5",
	"timed out",
	"Temporary failure in name resolution",
	"Connection reset",
}

// inputMarkers are yt-dlp error fragments caused by the source itself.
var inputMarkers = []string{
	"Unsupported URL",
	"Video unavailable",
	"Private video",
	"is not a valid URL",
}

// Option configures the Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Fetcher implements adapters.Fetcher.
type Fetcher struct {
	binary string
	logger *slog.Logger
}

var _ adapters.Fetcher = (*Fetcher)(nil)

// New returns a fetcher invoking binary, defaulting to yt-dlp on PATH.
func New(binary string, opts ...Option) *Fetcher {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "yt-dlp"
	}
	f := &Fetcher{binary: binary, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.NewComponentLogger(f.logger, "ytdlp")
	return f
}

// IsURL reports whether source should be downloaded rather than copied.
func IsURL(source string) bool {
	lower := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Fetch places the source video at destDir/source.mp4 and returns its path
// and title. Local files are copied with integrity verification and take
// their title from the file name.
func (f *Fetcher) Fetch(ctx context.Context, source, destDir string) (string, string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", "", services.Wrap(services.ErrValidation, "", "fetch", "empty source", nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", "", services.Wrap(services.ErrConfiguration, "", "fetch", destDir, err)
	}
	target := filepath.Join(destDir, outputName)
	if !IsURL(source) {
		return f.copyLocal(source, target)
	}

	cmd := commandContext(ctx, f.binary, //nolint:gosec
		"--format", formatFilter,
		"--merge-output-format", "mp4",
		"--output", filepath.Join(destDir, "source.%(ext)s"),
		"--no-playlist",
		"--no-progress",
		"--no-simulate",
		"--print", "%(title)s",
		"--",
		source,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", "", f.classify(ctx, err, stderr.String())
	}
	if _, err := os.Stat(target); err != nil {
		return "", "", services.Wrap(services.ErrExternalTool, "", "fetch", "download finished without "+outputName, err)
	}
	title := firstLine(stdout.String())
	if title == "" {
		title = defaultTitle
	}
	f.logger.Info("source downloaded",
		logging.String("title", title),
		logging.String(logging.FieldEventType, "source_downloaded"),
	)
	return target, title, nil
}

func (f *Fetcher) copyLocal(source, target string) (string, string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, "", "fetch", source, err)
	}
	if info.IsDir() {
		return "", "", services.Wrap(services.ErrValidation, "", "fetch", source+" is a directory", nil)
	}
	if err := fileutil.CopyFileVerified(source, target); err != nil {
		return "", "", services.Wrap(services.ErrExternalTool, "", "fetch", "copy local source", err)
	}
	base := filepath.Base(source)
	return target, strings.TrimSuffix(base, filepath.Ext(base)), nil
}

func (f *Fetcher) classify(ctx context.Context, err error, stderr string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrConfiguration, "", "fetch", "yt-dlp unavailable", err)
	}
	detail := lastLine(stderr)
	for _, marker := range transientMarkers {
		if strings.Contains(stderr, marker) {
			return services.Wrap(services.ErrTransient, "", "fetch", detail, err)
		}
	}
	for _, marker := range inputMarkers {
		if strings.Contains(stderr, marker) {
			return services.Wrap(services.ErrValidation, "", "fetch", detail, err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "", "fetch", detail, err)
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(line)
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return text
}
