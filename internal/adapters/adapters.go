// Package adapters declares the narrow contracts the pipeline engine uses to
// reach external providers and media tooling. Implementations live in
// internal/services and internal/media; tests substitute fakes from
// internal/testsupport.
package adapters

import (
	"context"
	"time"
)

// Fetcher acquires a source video from a URL or local path into destDir.
type Fetcher interface {
	Fetch(ctx context.Context, source, destDir string) (path, title string, err error)
}

// AudioProcessor extracts, splits and joins audio tracks.
type AudioProcessor interface {
	Extract(ctx context.Context, videoPath, outPath string) error
	// Slice copies length of audio starting at start into outPath.
	Slice(ctx context.Context, audioPath, outPath string, start, length time.Duration) error
	Concat(ctx context.Context, parts []string, outPath string) error
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// SpeechRequest describes one synthesis call.
type SpeechRequest struct {
	Text     string
	Language string
	Speaker  string
	Pace     float64
}

// SpeechSynthesizer renders text to a WAV file.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest, outPath string) error
}

// Scene is one narrated shot of a story short.
type Scene struct {
	Narration   string `json:"narration"`
	ImagePrompt string `json:"image_prompt"`
}

// Breakdown is the scene plan for a story.
type Breakdown struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Scenes      []Scene  `json:"scenes"`
}

// SceneBreaker splits story text into narrated scenes in the target language.
type SceneBreaker interface {
	Breakdown(ctx context.Context, text, language string) (Breakdown, error)
}

// ImageSynthesizer renders a single still for a scene.
type ImageSynthesizer interface {
	SynthesizeImage(ctx context.Context, directive, outPath string) error
}

// Clip is one scene of a render timeline.
type Clip struct {
	Index     int
	ImagePath string
	AudioPath string
	Duration  time.Duration
}

// Timeline describes a story render: one still plus narration per clip,
// joined with crossfades and an optional burned-in subtitle track.
type Timeline struct {
	Clips         []Clip
	Width         int
	Height        int
	Crossfade     time.Duration
	SubtitlesPath string
	WorkDir       string
	OutputPath    string
}

// DubRender replaces a video's audio track, stretching the video so its
// length matches the dubbed audio.
type DubRender struct {
	VideoPath  string
	AudioPath  string
	Stretch    float64
	OutputPath string
}

// Renderer encodes final videos.
type Renderer interface {
	Render(ctx context.Context, tl Timeline) error
	RenderDub(ctx context.Context, req DubRender) error
}

// MediaInfo is the subset of probe output the engine relies on.
type MediaInfo struct {
	Duration     time.Duration
	Width        int
	Height       int
	VideoStreams int
	AudioStreams int
	SizeBytes    int64
}

// Prober inspects media files.
type Prober interface {
	Probe(ctx context.Context, path string) (MediaInfo, error)
}

// Metadata accompanies a published video.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	Language    string
}

// Publisher uploads finished shorts and returns the remote id.
type Publisher interface {
	Publish(ctx context.Context, path string, meta Metadata) (string, error)
}

// Story is a source text picked for a story job.
type Story struct {
	Theme  string
	Title  string
	Body   string
	Source string
}

// StorySource picks a story for a theme, optionally filtered by keyword.
type StorySource interface {
	Fetch(ctx context.Context, theme, keyword string) (Story, error)
}

// Set bundles every adapter a pipeline may call.
type Set struct {
	Fetcher     Fetcher
	Audio       AudioProcessor
	Transcriber Transcriber
	Translator  Translator
	Speech      SpeechSynthesizer
	Scenes      SceneBreaker
	Images      ImageSynthesizer
	Renderer    Renderer
	Prober      Prober
	Publisher   Publisher
	Stories     StorySource
}
