package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"storydub/internal/adapters"
	"storydub/internal/services"
)

var commandContext = exec.CommandContext

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := commandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countStreams("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countStreams("audio")
}

func (r Result) countStreams(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, falling back
// to the longest stream when the container omits it. Returns 0 when no
// duration is available and NaN when the reported value is malformed.
func (r Result) DurationSeconds() float64 {
	if strings.TrimSpace(r.Format.Duration) != "" {
		return parseFloat(r.Format.Duration)
	}
	longest := 0.0
	for _, stream := range r.Streams {
		if value := parseFloat(stream.Duration); value > longest {
			longest = value
		}
	}
	return longest
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// Dimensions returns the width and height of the first video stream.
func (r Result) Dimensions() (int, int) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream.Width, stream.Height
		}
	}
	return 0, 0
}

// MediaInfo converts the result into the engine's probe summary.
func (r Result) MediaInfo() adapters.MediaInfo {
	width, height := r.Dimensions()
	seconds := r.DurationSeconds()
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	return adapters.MediaInfo{
		Duration:     time.Duration(seconds * float64(time.Second)),
		Width:        width,
		Height:       height,
		VideoStreams: r.VideoStreamCount(),
		AudioStreams: r.AudioStreamCount(),
		SizeBytes:    r.SizeBytes(),
	}
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

// Prober implements adapters.Prober on top of Inspect.
type Prober struct {
	binary string
}

var _ adapters.Prober = (*Prober)(nil)

// NewProber returns a prober using binary, defaulting to ffprobe on PATH.
func NewProber(binary string) *Prober {
	return &Prober{binary: binary}
}

// Probe inspects path. A missing file is a validation failure; a file
// ffprobe cannot parse is reported as an external tool failure.
func (p *Prober) Probe(ctx context.Context, path string) (adapters.MediaInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return adapters.MediaInfo{}, services.Wrap(services.ErrValidation, "", "probe", path, err)
	}
	result, err := Inspect(ctx, p.binary, path)
	if err != nil {
		if ctx.Err() != nil {
			return adapters.MediaInfo{}, ctx.Err()
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, os.ErrNotExist) {
			return adapters.MediaInfo{}, services.Wrap(services.ErrConfiguration, "", "probe", "ffprobe unavailable", err)
		}
		return adapters.MediaInfo{}, services.Wrap(services.ErrExternalTool, "", "probe", path, err)
	}
	media := result.MediaInfo()
	if media.SizeBytes == 0 {
		media.SizeBytes = info.Size()
	}
	return media, nil
}
