package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"storydub/internal/adapters"
	"storydub/internal/cachestore"
	"storydub/internal/fileutil"
	"storydub/internal/normalize"
	"storydub/internal/services"
	"storydub/internal/stage"
	"storydub/internal/subtitles"
	"storydub/internal/validation"
)

// Crossfade is the dissolve between consecutive scene clips.
const Crossfade = 500 * time.Millisecond

// A breakdown outside this range still renders but is flagged.
const (
	minScenes = 5
	maxScenes = 8
)

const customStoryTitle = "Custom story"

func (b *builder) storyStages() []stage.Definition {
	return []stage.Definition{
		b.storyAcquire(),
		b.storyBreakdown(),
		b.storyImages(),
		b.storyNarrate(),
		b.storyRender(),
		b.storyValidate(),
		b.storyPublish(),
	}
}

func (b *builder) storyAcquire() stage.Definition {
	return stage.Definition{
		Name:       "acquire",
		Capability: stage.CapabilityStories,
		Units:      stage.Single("story", "", storyTextFile),
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			title, body := customStoryTitle, st.Params.Text
			if strings.TrimSpace(body) == "" {
				story, err := st.Adapters.Stories.Fetch(ctx, st.Params.Theme, st.Params.Keyword)
				if err != nil {
					return stage.Output{}, err
				}
				title, body = story.Title, story.Body
			}
			out, err := writeTextOutput(u.Target, body)
			if err != nil {
				return stage.Output{}, err
			}
			out.Meta = map[string]string{metaTitle: strings.TrimSpace(title)}
			return out, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			text, err := fileutil.ReadText(outputs[0].Path)
			if err != nil {
				return services.Wrap(services.ErrExternalTool, "acquire", "read story", "", err)
			}
			st.Artifacts.StoryTitle = outputs[0].Meta[metaTitle]
			st.Artifacts.StoryText = strings.TrimSpace(text)
			if st.Artifacts.StoryText == "" {
				return services.Wrap(services.ErrNoResults, "acquire", "", "story text is empty", nil)
			}
			st.Reporter.Logf("acquire: %q (%d chars)", st.Artifacts.StoryTitle, len([]rune(st.Artifacts.StoryText)))
			return nil
		},
	}
}

func (b *builder) storyBreakdown() stage.Definition {
	return stage.Definition{
		Name:           "breakdown",
		Capability:     stage.CapabilityScenes,
		Cacheable:      true,
		LanguageScoped: true,
		Units:          stage.Single("scenes", "", breakdownFile),
		Key: func(st *stage.State, _ stage.Unit) (string, error) {
			return cachestore.Fingerprint(st.Artifacts.StoryText), nil
		},
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			breakdown, err := st.Adapters.Scenes.Breakdown(ctx, st.Artifacts.StoryText, st.Params.TargetLang)
			if err != nil {
				return stage.Output{}, err
			}
			if len(breakdown.Scenes) == 0 {
				return stage.Output{}, services.Wrap(services.ErrNoResults, "breakdown", "", "no scenes produced", nil)
			}
			data, err := json.MarshalIndent(breakdown, "", "  ")
			if err != nil {
				return stage.Output{}, services.Wrap(services.ErrExternalTool, "breakdown", "encode", "", err)
			}
			if err := fileutil.WriteFileAtomic(u.Target, data); err != nil {
				return stage.Output{}, services.Wrap(services.ErrExternalTool, "breakdown", "write", u.Target, err)
			}
			return stage.Output{Path: u.Target}, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			data, err := fileutil.ReadText(outputs[0].Path)
			if err != nil {
				return services.Wrap(services.ErrExternalTool, "breakdown", "read", "", err)
			}
			var breakdown adapters.Breakdown
			if err := json.Unmarshal([]byte(data), &breakdown); err != nil {
				return services.Wrap(services.ErrExternalTool, "breakdown", "decode", outputs[0].Path, err)
			}
			st.Artifacts.Breakdown = breakdown
			if strings.TrimSpace(breakdown.Title) != "" {
				st.Artifacts.StoryTitle = strings.TrimSpace(breakdown.Title)
			}
			warnBreakdown(st)
			st.Reporter.Logf("breakdown: %d scenes for %q", len(breakdown.Scenes), st.Artifacts.StoryTitle)
			return nil
		},
	}
}

func warnBreakdown(st *stage.State) {
	scenes := st.Artifacts.Breakdown.Scenes
	if len(scenes) < minScenes || len(scenes) > maxScenes {
		st.Reporter.Warnf("breakdown: %d scenes, expected %d-%d", len(scenes), minScenes, maxScenes)
	}
	if strings.HasPrefix(strings.ToLower(st.Params.TargetLang), "en") {
		return
	}
	for i, scene := range scenes {
		if isASCII(scene.Narration) {
			st.Reporter.Warnf("breakdown: scene %d narration is ASCII only, target %s may not have been used", i+1, st.Params.TargetLang)
		}
	}
}

func isASCII(text string) bool {
	for _, r := range text {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return strings.TrimSpace(text) != ""
}

func (b *builder) storyImages() stage.Definition {
	return stage.Definition{
		Name:       "images",
		Capability: stage.CapabilityImages,
		FanOut:     true,
		Cacheable:  true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			return sceneUnits(st, func(s adapters.Scene) string { return s.ImagePrompt }, sceneImageFile), nil
		},
		Key: func(_ *stage.State, u stage.Unit) (string, error) {
			return cachestore.Fingerprint(strings.Join(strings.Fields(u.Input), " ")), nil
		},
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			if err := st.Adapters.Images.SynthesizeImage(ctx, u.Input, u.Target); err != nil {
				return stage.Output{}, err
			}
			return stage.Output{Path: u.Target}, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			st.Artifacts.Images = outputPaths(outputs)
			return nil
		},
	}
}

func (b *builder) storyNarrate() stage.Definition {
	return stage.Definition{
		Name:           "narrate",
		Capability:     stage.CapabilitySpeech,
		FanOut:         true,
		Cacheable:      true,
		LanguageScoped: true,
		PerCall:        true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			return sceneUnits(st, func(s adapters.Scene) string { return normalize.NumbersToWords(s.Narration) }, sceneNarrationFile), nil
		},
		Key: speechKey,
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			out, err := callValue(ctx, "synthesize", func(ctx context.Context) (stage.Output, error) {
				return synthesizeUnit(ctx, st, u)
			})
			if err != nil {
				return stage.Output{}, err
			}
			info, err := callingProber{st.Adapters.Prober}.Probe(ctx, u.Target)
			if err != nil {
				return stage.Output{}, err
			}
			out.Meta = map[string]string{metaDuration: formatDuration(info.Duration)}
			return out, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			durations := make([]time.Duration, len(outputs))
			var total time.Duration
			for i, out := range outputs {
				d, ok := parseDuration(out.Meta[metaDuration])
				if !ok || d <= 0 {
					return services.Wrap(services.ErrExternalTool, "narrate", "", fmt.Sprintf("scene %d narration has no duration", i+1), nil)
				}
				durations[i] = d
				total += d
			}
			st.Artifacts.Narrations = outputPaths(outputs)
			st.Artifacts.Durations = durations
			st.Reporter.Logf("narrate: %s of narration", total.Round(100*time.Millisecond))
			return nil
		},
	}
}

func sceneUnits(st *stage.State, input func(adapters.Scene) string, target func(int) string) []stage.Unit {
	scenes := st.Artifacts.Breakdown.Scenes
	units := make([]stage.Unit, len(scenes))
	for i, scene := range scenes {
		units[i] = stage.Unit{
			Index:  i,
			Label:  fmt.Sprintf("scene %02d", i+1),
			Input:  input(scene),
			Target: st.Path(target(i)),
		}
	}
	return units
}

func (b *builder) storyRender() stage.Definition {
	return stage.Definition{
		Name:       "render",
		Capability: stage.CapabilityRender,
		Timeout:    b.cfg.RenderTimeout(),
		Units:      stage.Single("short", "", shortFile),
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			scenes := st.Artifacts.Breakdown.Scenes
			texts := make([]string, len(scenes))
			for i, scene := range scenes {
				texts[i] = scene.Narration
			}
			srtPath := st.Path(subtitlesFile)
			if err := subtitles.Write(srtPath, subtitles.Timeline(texts, st.Artifacts.Durations, Crossfade)); err != nil {
				return stage.Output{}, services.Wrap(services.ErrExternalTool, "render", "write subtitles", srtPath, err)
			}

			clips := make([]adapters.Clip, len(st.Artifacts.Images))
			for i := range clips {
				clips[i] = adapters.Clip{
					Index:     i,
					ImagePath: st.Artifacts.Images[i],
					AudioPath: st.Artifacts.Narrations[i],
					Duration:  st.Artifacts.Durations[i],
				}
			}
			err := st.Adapters.Renderer.Render(ctx, adapters.Timeline{
				Clips:         clips,
				Width:         b.cfg.Validation.Width,
				Height:        b.cfg.Validation.Height,
				Crossfade:     Crossfade,
				SubtitlesPath: srtPath,
				WorkDir:       st.WorkDir,
				OutputPath:    u.Target,
			})
			if err != nil {
				return stage.Output{}, err
			}
			return stage.Output{Path: u.Target}, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			st.Artifacts.Subtitles = st.Path(subtitlesFile)
			st.Artifacts.Output = outputs[0].Path
			cues, err := subtitles.CountCues(st.Artifacts.Subtitles)
			if err != nil {
				return services.Wrap(services.ErrExternalTool, "render", "read subtitles", "", err)
			}
			st.Reporter.Logf("render: %d clips, %d subtitle cues", len(st.Artifacts.Images), cues)
			return nil
		},
	}
}

func (b *builder) storyValidate() stage.Definition {
	return stage.Definition{
		Name:       "validate",
		Capability: stage.CapabilityValidate,
		PerCall:    true,
		Units:      stage.Single("report", "", reportFile),
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			gate := validation.NewGate(b.cfg.Validation, callingProber{st.Adapters.Prober}, nil, nil)
			report, err := gate.CheckStory(ctx, st.Artifacts.Output)
			if err != nil {
				return stage.Output{}, err
			}
			return reportOutput(st, u, report)
		},
		Merge: mergeVerdict,
	}
}

func (b *builder) storyPublish() stage.Definition {
	return stage.Definition{
		Name:       "publish",
		Capability: stage.CapabilityPublish,
		Skip: func(st *stage.State) bool {
			return !st.Params.Publish
		},
		Units: stage.Single("upload", "", publishIDFile),
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			bd := st.Artifacts.Breakdown
			id, err := st.Adapters.Publisher.Publish(ctx, st.Artifacts.Output, adapters.Metadata{
				Title:       st.Artifacts.StoryTitle,
				Description: bd.Description,
				Tags:        bd.Tags,
				Language:    st.Params.TargetLang,
			})
			if err != nil {
				return stage.Output{}, err
			}
			out, err := writeTextOutput(u.Target, id)
			if err != nil {
				return stage.Output{}, err
			}
			out.Meta = map[string]string{metaPublish: strings.TrimSpace(id)}
			return out, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			st.Artifacts.PublishID = outputs[0].Meta[metaPublish]
			st.Reporter.Logf("publish: uploaded as %s", st.Artifacts.PublishID)
			return nil
		},
	}
}
