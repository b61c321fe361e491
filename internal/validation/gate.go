// Package validation implements the quality gate that runs after rendering.
// A structurally successful render still fails the job when any check fails.
package validation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"storydub/internal/adapters"
	"storydub/internal/config"
	"storydub/internal/services"
	"storydub/internal/textutil"
)

// Check names.
const (
	CheckOutput        = "output"
	CheckStreams       = "streams"
	CheckDuration      = "duration"
	CheckResolution    = "resolution"
	CheckSTTDubbed     = "stt_dubbed"
	CheckBackTranslate = "back_translate"
	CheckSimilarity    = "similarity"
)

// Check is one named verdict.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Report collects the checks of one gate run.
type Report struct {
	Checks  []Check `json:"checks"`
	Passed  bool    `json:"passed"`
	Verdict string  `json:"verdict"`
}

func (r *Report) add(name string, passed bool, format string, args ...any) bool {
	r.Checks = append(r.Checks, Check{Name: name, Passed: passed, Detail: fmt.Sprintf(format, args...)})
	return passed
}

func (r *Report) finish() Report {
	passed := 0
	r.Passed = true
	for _, c := range r.Checks {
		if c.Passed {
			passed++
		} else {
			r.Passed = false
		}
	}
	label := "PASS"
	if !r.Passed {
		label = "FAIL"
	}
	r.Verdict = fmt.Sprintf("%s: %d/%d checks passed", label, passed, len(r.Checks))
	return *r
}

// Failed lists the names of failed checks.
func (r Report) Failed() []string {
	var names []string
	for _, c := range r.Checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// Err returns a quality error naming the failed checks, or nil.
func (r Report) Err() error {
	if r.Passed {
		return nil
	}
	return services.Wrap(services.ErrQuality, "", "", strings.Join(r.Failed(), ", "), nil)
}

// Gate runs the configured checks.
type Gate struct {
	cfg         config.Validation
	prober      adapters.Prober
	transcriber adapters.Transcriber
	translator  adapters.Translator
}

// NewGate builds a gate. Transcriber and translator are only needed for dubs.
func NewGate(cfg config.Validation, prober adapters.Prober, transcriber adapters.Transcriber, translator adapters.Translator) *Gate {
	return &Gate{cfg: cfg, prober: prober, transcriber: transcriber, translator: translator}
}

// CheckStory validates a rendered short. The returned error reports
// infrastructure failures only; failed checks live in the report.
func (g *Gate) CheckStory(ctx context.Context, outputPath string) (Report, error) {
	var r Report
	if !g.checkOutput(&r, outputPath) {
		return r.finish(), nil
	}
	info, err := g.prober.Probe(ctx, outputPath)
	if err != nil {
		return Report{}, err
	}
	g.checkStreams(&r, info)

	seconds := info.Duration.Seconds()
	r.add(CheckDuration, seconds >= g.cfg.StoryMinSeconds && seconds <= g.cfg.StoryMaxSeconds,
		"%.1fs (allowed %.0f-%.0fs)", seconds, g.cfg.StoryMinSeconds, g.cfg.StoryMaxSeconds)
	r.add(CheckResolution, info.Width == g.cfg.Width && info.Height == g.cfg.Height,
		"%dx%d (expected %dx%d)", info.Width, info.Height, g.cfg.Width, g.cfg.Height)
	return r.finish(), nil
}

// DubInput carries everything the dub checks compare.
type DubInput struct {
	OutputPath       string
	OriginalAudio    string
	DubbedAudio      string
	SpeechChunks     []string
	SourceTranscript string
	SourceLang       string
	TargetLang       string
}

// CheckDub validates a dubbed video by re-transcribing the synthesized
// speech, translating it back and comparing with the source transcript.
func (g *Gate) CheckDub(ctx context.Context, in DubInput) (Report, error) {
	var r Report
	if !g.checkOutput(&r, in.OutputPath) {
		return r.finish(), nil
	}
	info, err := g.prober.Probe(ctx, in.OutputPath)
	if err != nil {
		return Report{}, err
	}
	g.checkStreams(&r, info)

	original, err := g.prober.Probe(ctx, in.OriginalAudio)
	if err != nil {
		return Report{}, err
	}
	dubbed, err := g.prober.Probe(ctx, in.DubbedAudio)
	if err != nil {
		return Report{}, err
	}
	ratio := 0.0
	if original.Duration > 0 {
		ratio = dubbed.Duration.Seconds() / original.Duration.Seconds()
	}
	r.add(CheckDuration, ratio >= g.cfg.DubMinRatio && ratio <= g.cfg.DubMaxRatio,
		"original %.1fs, dubbed %.1fs, ratio %.2fx (allowed %.1f-%.1f)",
		original.Duration.Seconds(), dubbed.Duration.Seconds(), ratio, g.cfg.DubMinRatio, g.cfg.DubMaxRatio)

	var transcripts []string
	for _, chunk := range in.SpeechChunks {
		text, err := g.transcriber.Transcribe(ctx, chunk, in.TargetLang)
		if err != nil {
			return Report{}, err
		}
		if text = strings.TrimSpace(text); text != "" {
			transcripts = append(transcripts, text)
		}
	}
	dubbedText := strings.Join(transcripts, " ")
	if !r.add(CheckSTTDubbed, dubbedText != "", "%s", preview(dubbedText, "no detectable speech")) {
		return r.finish(), nil
	}

	back, err := g.translator.Translate(ctx, dubbedText, in.TargetLang, in.SourceLang)
	if err != nil {
		return Report{}, err
	}
	back = strings.TrimSpace(back)
	if !r.add(CheckBackTranslate, back != "", "%s", preview(back, "empty back-translation")) {
		return r.finish(), nil
	}

	words := textutil.WordOverlap(in.SourceTranscript, back)
	sequence := textutil.SequenceRatio(strings.ToLower(in.SourceTranscript), strings.ToLower(back))
	mean := (words + sequence) / 2
	r.add(CheckSimilarity, mean >= g.cfg.SimilarityThreshold,
		"word overlap %.0f%%, sequence %.0f%%, mean %.0f%% (threshold %.0f%%)",
		words*100, sequence*100, mean*100, g.cfg.SimilarityThreshold*100)
	return r.finish(), nil
}

func (g *Gate) checkOutput(r *Report, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return r.add(CheckOutput, false, "missing: %s", path)
	}
	return r.add(CheckOutput, info.Size() >= g.cfg.MinOutputBytes,
		"%d bytes (minimum %d)", info.Size(), g.cfg.MinOutputBytes)
}

func (g *Gate) checkStreams(r *Report, info adapters.MediaInfo) {
	r.add(CheckStreams, info.VideoStreams > 0 && info.AudioStreams > 0,
		"%d video, %d audio", info.VideoStreams, info.AudioStreams)
}

func preview(text, empty string) string {
	if text == "" {
		return empty
	}
	runes := []rune(text)
	if len(runes) > 120 {
		return string(runes[:120]) + "..."
	}
	return text
}
