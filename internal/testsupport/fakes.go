package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"storydub/internal/adapters"
)

// Fake operation names used for call counting and scripted failures.
const (
	OpFetch      = "fetch"
	OpExtract    = "extract"
	OpSlice      = "slice"
	OpConcat     = "concat"
	OpTranscribe = "transcribe"
	OpTranslate  = "translate"
	OpSynthesize = "synthesize"
	OpBreakdown  = "breakdown"
	OpImage      = "image"
	OpRender     = "render"
	OpRenderDub  = "render_dub"
	OpProbe      = "probe"
	OpPublish    = "publish"
	OpStory      = "story"
)

// fakeFileSize keeps fake outputs above the default minimum output size.
const fakeFileSize = 4096

type scripted struct {
	remaining int
	err       error
}

// Adapters implements every adapter contract in memory. Each call writes a
// small placeholder file where a real adapter would, counts itself and
// consults scripted failures.
type Adapters struct {
	mu       sync.Mutex
	counts   map[string]*atomic.Int32
	failures map[string]*scripted

	// Delay, when set, is slept by every call before doing work.
	Delay time.Duration

	SourceDuration    time.Duration
	DubbedDuration    time.Duration
	NarrationDuration time.Duration
	OutputDuration    time.Duration
	OutputWidth       int
	OutputHeight      int

	Story          adapters.Story
	SceneBreakdown adapters.Breakdown
	PublishID      string
	EmptySpeech    bool
	Translations   map[string]string
}

// NewAdapters returns fakes producing a passing two-chunk dub and a
// six-scene story by default.
func NewAdapters() *Adapters {
	scenes := make([]adapters.Scene, 6)
	for i := range scenes {
		scenes[i] = adapters.Scene{
			Narration:   fmt.Sprintf("दृश्य %d की कहानी", i+1),
			ImagePrompt: fmt.Sprintf("scene %d of a fox in a forest", i+1),
		}
	}
	return &Adapters{
		counts:            make(map[string]*atomic.Int32),
		failures:          make(map[string]*scripted),
		SourceDuration:    300 * time.Second,
		DubbedDuration:    310 * time.Second,
		NarrationDuration: 8 * time.Second,
		OutputDuration:    45 * time.Second,
		OutputWidth:       1080,
		OutputHeight:      1920,
		Story: adapters.Story{
			Theme:  "aesop",
			Title:  "The Fox and the Grapes",
			Body:   "A hungry fox saw some fine bunches of grapes hanging from a vine.",
			Source: "https://example.test/aesop.txt",
		},
		SceneBreakdown: adapters.Breakdown{
			Title:       "लोमड़ी और अंगूर",
			Description: "एक भूखी लोमड़ी की कहानी",
			Tags:        []string{"fable"},
			Scenes:      scenes,
		},
		PublishID: "yt-123",
	}
}

// Set exposes the fakes as an adapter set.
func (f *Adapters) Set() adapters.Set {
	return adapters.Set{
		Fetcher:     f,
		Audio:       f,
		Transcriber: f,
		Translator:  f,
		Speech:      f,
		Scenes:      f,
		Images:      f,
		Renderer:    f,
		Prober:      f,
		Publisher:   f,
		Stories:     storySource{f},
	}
}

// Calls returns how often op ran.
func (f *Adapters) Calls(op string) int {
	return int(f.counter(op).Load())
}

// FailNext makes the next n calls of op return err.
func (f *Adapters) FailNext(op string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = &scripted{remaining: n, err: err}
}

// FailAlways makes every call of op return err.
func (f *Adapters) FailAlways(op string, err error) {
	f.FailNext(op, -1, err)
}

func (f *Adapters) counter(op string) *atomic.Int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counts[op]
	if !ok {
		c = &atomic.Int32{}
		f.counts[op] = c
	}
	return c
}

func (f *Adapters) enter(ctx context.Context, op string) error {
	f.counter(op).Add(1)
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	script, ok := f.failures[op]
	if !ok || script.remaining == 0 {
		return nil
	}
	if script.remaining > 0 {
		script.remaining--
	}
	return script.err
}

func writePlaceholder(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data := []byte(content)
	if len(data) < fakeFileSize {
		data = append(data, make([]byte, fakeFileSize-len(data))...)
	}
	return os.WriteFile(path, data, 0o644)
}

// Fetch implements adapters.Fetcher.
func (f *Adapters) Fetch(ctx context.Context, source, destDir string) (string, string, error) {
	if err := f.enter(ctx, OpFetch); err != nil {
		return "", "", err
	}
	path := filepath.Join(destDir, "download.mp4")
	return path, "Sample video", writePlaceholder(path, "video:"+source)
}

// Extract implements adapters.AudioProcessor.
func (f *Adapters) Extract(ctx context.Context, videoPath, outPath string) error {
	if err := f.enter(ctx, OpExtract); err != nil {
		return err
	}
	return writePlaceholder(outPath, "audio:"+filepath.Base(videoPath))
}

// Slice implements adapters.AudioProcessor.
func (f *Adapters) Slice(ctx context.Context, audioPath, outPath string, start, length time.Duration) error {
	if err := f.enter(ctx, OpSlice); err != nil {
		return err
	}
	return writePlaceholder(outPath, fmt.Sprintf("slice:%s:%s", start, length))
}

// Concat implements adapters.AudioProcessor.
func (f *Adapters) Concat(ctx context.Context, parts []string, outPath string) error {
	if err := f.enter(ctx, OpConcat); err != nil {
		return err
	}
	return writePlaceholder(outPath, fmt.Sprintf("concat:%d", len(parts)))
}

// Transcribe implements adapters.Transcriber. Synthesized speech transcribes
// back to its marker text unless EmptySpeech is set.
func (f *Adapters) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	if err := f.enter(ctx, OpTranscribe); err != nil {
		return "", err
	}
	base := filepath.Base(audioPath)
	if strings.HasPrefix(base, "tts_") {
		if f.EmptySpeech {
			return "", nil
		}
		return "dubbed speech " + language, nil
	}
	return fmt.Sprintf("The farmer sold 2 cows at the market in %s", strings.TrimSuffix(base, filepath.Ext(base))), nil
}

// Translate implements adapters.Translator. Back-translations echo the
// source sentence so similarity passes unless Translations overrides it.
func (f *Adapters) Translate(ctx context.Context, text, source, target string) (string, error) {
	if err := f.enter(ctx, OpTranslate); err != nil {
		return "", err
	}
	f.mu.Lock()
	override, ok := f.Translations[target]
	f.mu.Unlock()
	if ok {
		return override, nil
	}
	if strings.HasPrefix(text, "dubbed speech") {
		return "The farmer sold two cows at the market", nil
	}
	return fmt.Sprintf("[%s] %s", target, text), nil
}

// Synthesize implements adapters.SpeechSynthesizer.
func (f *Adapters) Synthesize(ctx context.Context, req adapters.SpeechRequest, outPath string) error {
	if err := f.enter(ctx, OpSynthesize); err != nil {
		return err
	}
	return writePlaceholder(outPath, fmt.Sprintf("speech:%s:%s:%.2f:%s", req.Language, req.Speaker, req.Pace, req.Text))
}

// Breakdown implements adapters.SceneBreaker.
func (f *Adapters) Breakdown(ctx context.Context, text, language string) (adapters.Breakdown, error) {
	if err := f.enter(ctx, OpBreakdown); err != nil {
		return adapters.Breakdown{}, err
	}
	return f.SceneBreakdown, nil
}

// SynthesizeImage implements adapters.ImageSynthesizer.
func (f *Adapters) SynthesizeImage(ctx context.Context, directive, outPath string) error {
	if err := f.enter(ctx, OpImage); err != nil {
		return err
	}
	return writePlaceholder(outPath, "image:"+directive)
}

// Render implements adapters.Renderer.
func (f *Adapters) Render(ctx context.Context, tl adapters.Timeline) error {
	if err := f.enter(ctx, OpRender); err != nil {
		return err
	}
	return writePlaceholder(tl.OutputPath, fmt.Sprintf("story:%d", len(tl.Clips)))
}

// RenderDub implements adapters.Renderer.
func (f *Adapters) RenderDub(ctx context.Context, req adapters.DubRender) error {
	if err := f.enter(ctx, OpRenderDub); err != nil {
		return err
	}
	return writePlaceholder(req.OutputPath, fmt.Sprintf("dub:%.3f", req.Stretch))
}

// Probe implements adapters.Prober using the configured durations.
func (f *Adapters) Probe(ctx context.Context, path string) (adapters.MediaInfo, error) {
	if err := f.enter(ctx, OpProbe); err != nil {
		return adapters.MediaInfo{}, err
	}
	base := filepath.Base(path)
	info := adapters.MediaInfo{SizeBytes: fakeFileSize}
	switch {
	case strings.HasPrefix(base, "dubbed_audio"):
		info.Duration, info.AudioStreams = f.DubbedDuration, 1
	case strings.HasPrefix(base, "dubbed_"), base == "short.mp4", base == "stitched.mp4":
		info.Duration = f.OutputDuration
		info.VideoStreams, info.AudioStreams = 1, 1
		info.Width, info.Height = f.OutputWidth, f.OutputHeight
	case strings.HasPrefix(base, "scene_") && strings.HasSuffix(base, ".wav"):
		info.Duration, info.AudioStreams = f.NarrationDuration, 1
	case base == "source.mp4":
		info.Duration = f.SourceDuration
		info.VideoStreams, info.AudioStreams = 1, 1
		info.Width, info.Height = 1920, 1080
	default:
		info.Duration, info.AudioStreams = f.SourceDuration, 1
	}
	return info, nil
}

// Publish implements adapters.Publisher.
func (f *Adapters) Publish(ctx context.Context, path string, meta adapters.Metadata) (string, error) {
	if err := f.enter(ctx, OpPublish); err != nil {
		return "", err
	}
	return f.PublishID, nil
}

type storySource struct{ f *Adapters }

// Fetch implements adapters.StorySource.
func (s storySource) Fetch(ctx context.Context, theme, keyword string) (adapters.Story, error) {
	f := s.f
	if err := f.enter(ctx, OpStory); err != nil {
		return adapters.Story{}, err
	}
	story := f.Story
	story.Theme = theme
	return story, nil
}
