package workflow

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"storydub/internal/adapters"
	"storydub/internal/cachestore"
	"storydub/internal/fileutil"
	"storydub/internal/normalize"
	"storydub/internal/services"
	"storydub/internal/stage"
	"storydub/internal/validation"
)

func (b *builder) dubStages() []stage.Definition {
	return []stage.Definition{
		b.dubAcquire(),
		b.dubExtract(),
		b.dubSegment(),
		b.dubTranscribe(),
		b.dubNormalize(),
		b.dubTranslate(),
		b.dubSynthesize(),
		b.dubRender(),
		b.dubValidate(),
	}
}

func (b *builder) dubAcquire() stage.Definition {
	return stage.Definition{
		Name:       "acquire",
		Capability: stage.CapabilityFetch,
		Cacheable:  true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			return []stage.Unit{{Label: "source", Input: st.Params.Source(), Target: st.Path(sourceVideoFile)}}, nil
		},
		Key: func(st *stage.State, _ stage.Unit) (string, error) {
			if st.Params.FilePath != "" {
				digest, err := fileutil.FileDigest(st.Params.FilePath)
				if err != nil {
					return "", services.Wrap(services.ErrValidation, "acquire", "digest source", st.Params.FilePath, err)
				}
				return cachestore.Fingerprint("file", digest), nil
			}
			return cachestore.Fingerprint("url", st.Params.URL), nil
		},
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			dir := st.Path(downloadDir)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return stage.Output{}, services.Wrap(services.ErrConfiguration, "acquire", "create download dir", dir, err)
			}
			path, title, err := st.Adapters.Fetcher.Fetch(ctx, u.Input, dir)
			if err != nil {
				return stage.Output{}, err
			}
			if err := os.Rename(path, u.Target); err != nil {
				return stage.Output{}, services.Wrap(services.ErrExternalTool, "acquire", "move download", path, err)
			}
			_ = os.RemoveAll(dir)
			return stage.Output{Path: u.Target, Meta: map[string]string{metaTitle: strings.TrimSpace(title)}}, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			st.Artifacts.SourceVideo = outputs[0].Path
			st.Artifacts.SourceTitle = outputs[0].Meta[metaTitle]
			if st.Artifacts.SourceTitle != "" {
				st.Reporter.Logf("acquire: %q", st.Artifacts.SourceTitle)
			}
			return nil
		},
	}
}

func (b *builder) dubExtract() stage.Definition {
	return stage.Definition{
		Name:       "extract",
		Capability: stage.CapabilityAudio,
		Cacheable:  true,
		PerCall:    true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			return []stage.Unit{{Label: "audio", Input: st.Artifacts.SourceVideo, Target: st.Path(fullAudioFile)}}, nil
		},
		Key: fileKey,
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			err := stage.Call(ctx, "extract", func(ctx context.Context) error {
				return st.Adapters.Audio.Extract(ctx, u.Input, u.Target)
			})
			if err != nil {
				return stage.Output{}, err
			}
			info, err := callingProber{st.Adapters.Prober}.Probe(ctx, u.Target)
			if err != nil {
				return stage.Output{}, err
			}
			return stage.Output{Path: u.Target, Meta: map[string]string{metaDuration: formatDuration(info.Duration)}}, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			duration, ok := parseDuration(outputs[0].Meta[metaDuration])
			if !ok || duration <= 0 {
				return services.Wrap(services.ErrNoResults, "extract", "", "source has no audio", nil)
			}
			st.Artifacts.FullAudio = outputs[0].Path
			st.Artifacts.AudioDuration = duration
			st.Reporter.Logf("extract: %s of audio", duration.Round(time.Second))
			return nil
		},
	}
}

func (b *builder) dubSegment() stage.Definition {
	chunkSeconds := b.cfg.Sarvam.ChunkSeconds
	chunk := time.Duration(chunkSeconds) * time.Second
	return stage.Definition{
		Name:       "segment",
		Capability: stage.CapabilityAudio,
		FanOut:     true,
		Cacheable:  true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			digest, err := fileutil.FileDigest(st.Artifacts.FullAudio)
			if err != nil {
				return nil, services.Wrap(services.ErrExternalTool, "segment", "digest audio", "", err)
			}
			count := int((st.Artifacts.AudioDuration + chunk - 1) / chunk)
			units := make([]stage.Unit, max(count, 1))
			for i := range units {
				units[i] = stage.Unit{
					Index:  i,
					Label:  fmt.Sprintf("chunk %03d", i),
					Input:  digest,
					Target: st.Path(chunkFile(i)),
				}
			}
			return units, nil
		},
		Key: func(_ *stage.State, u stage.Unit) (string, error) {
			return cachestore.Fingerprint(u.Input, strconv.Itoa(u.Index), strconv.Itoa(chunkSeconds)), nil
		},
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			start := time.Duration(u.Index) * chunk
			length := min(chunk, st.Artifacts.AudioDuration-start)
			if length <= 0 {
				length = chunk
			}
			if err := st.Adapters.Audio.Slice(ctx, st.Artifacts.FullAudio, u.Target, start, length); err != nil {
				return stage.Output{}, err
			}
			return stage.Output{Path: u.Target}, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			st.Artifacts.Chunks = outputPaths(outputs)
			return nil
		},
	}
}

func (b *builder) dubTranscribe() stage.Definition {
	return stage.Definition{
		Name:       "transcribe",
		Capability: stage.CapabilityTranscribe,
		FanOut:     true,
		Cacheable:  true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			return unitsFor(st.Artifacts.Chunks, func(i int) string { return st.Path(sourceChunkFile(i)) }), nil
		},
		Key: func(st *stage.State, u stage.Unit) (string, error) {
			digest, err := fileutil.FileDigest(u.Input)
			if err != nil {
				return "", services.Wrap(services.ErrExternalTool, "transcribe", "digest chunk", u.Label, err)
			}
			return cachestore.Fingerprint(digest, st.Params.SourceLang), nil
		},
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			text, err := st.Adapters.Transcriber.Transcribe(ctx, u.Input, st.Params.SourceLang)
			if err != nil {
				return stage.Output{}, err
			}
			return writeTextOutput(u.Target, text)
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			texts, err := readOutputs(outputs)
			if err != nil {
				return services.Wrap(services.ErrExternalTool, "transcribe", "read transcripts", "", err)
			}
			st.Artifacts.Transcripts = texts
			st.Artifacts.SourceText = joinNonEmpty(texts)
			if st.Artifacts.SourceText == "" {
				return services.Wrap(services.ErrNoResults, "transcribe", "", "no speech detected in source audio", nil)
			}
			return fileutil.WriteText(st.Path(sourceTranscriptFile), st.Artifacts.SourceText)
		},
	}
}

func (b *builder) dubNormalize() stage.Definition {
	return stage.Definition{
		Name:       "normalize",
		Capability: stage.CapabilityLocal,
		FanOut:     true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			return unitsFor(st.Artifacts.Transcripts, func(i int) string { return st.Path(normalizedChunkFile(i)) }), nil
		},
		Run: func(_ context.Context, _ *stage.State, u stage.Unit) (stage.Output, error) {
			return writeTextOutput(u.Target, normalize.NumbersToWords(u.Input))
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			texts, err := readOutputs(outputs)
			if err != nil {
				return services.Wrap(services.ErrExternalTool, "normalize", "read transcripts", "", err)
			}
			st.Artifacts.Normalized = texts
			return nil
		},
	}
}

func (b *builder) dubTranslate() stage.Definition {
	return stage.Definition{
		Name:           "translate",
		Capability:     stage.CapabilityTranslate,
		FanOut:         true,
		Cacheable:      true,
		LanguageScoped: true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			lang := st.Params.TargetLang
			return unitsFor(st.Artifacts.Normalized, func(i int) string { return st.Path(targetChunkFile(lang, i)) }), nil
		},
		Key: func(st *stage.State, u stage.Unit) (string, error) {
			return cachestore.Fingerprint(u.Input, st.Params.SourceLang), nil
		},
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			if strings.TrimSpace(u.Input) == "" {
				return writeTextOutput(u.Target, "")
			}
			text, err := st.Adapters.Translator.Translate(ctx, u.Input, st.Params.SourceLang, st.Params.TargetLang)
			if err != nil {
				return stage.Output{}, err
			}
			return writeTextOutput(u.Target, text)
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			texts, err := readOutputs(outputs)
			if err != nil {
				return services.Wrap(services.ErrExternalTool, "translate", "read translations", "", err)
			}
			st.Artifacts.Translations = texts
			st.Artifacts.TargetText = joinNonEmpty(texts)
			return fileutil.WriteText(st.Path(targetTranscriptFile(st.Params.TargetLang)), st.Artifacts.TargetText)
		},
	}
}

func (b *builder) dubSynthesize() stage.Definition {
	return stage.Definition{
		Name:           "synthesize",
		Capability:     stage.CapabilitySpeech,
		FanOut:         true,
		Cacheable:      true,
		LanguageScoped: true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			var units []stage.Unit
			for i, text := range st.Artifacts.Translations {
				if strings.TrimSpace(text) == "" {
					continue
				}
				units = append(units, stage.Unit{
					Index:  i,
					Label:  fmt.Sprintf("chunk %03d", i),
					Input:  text,
					Target: st.Path(speechChunkFile(st.Params.TargetLang, i)),
				})
			}
			if len(units) == 0 {
				return nil, services.Wrap(services.ErrNoResults, "synthesize", "", "translation produced no text", nil)
			}
			return units, nil
		},
		Key: speechKey,
		Run: synthesizeUnit,
		Merge: func(st *stage.State, outputs []stage.Output) error {
			st.Artifacts.Speech = outputPaths(outputs)
			return nil
		},
	}
}

func (b *builder) dubRender() stage.Definition {
	return stage.Definition{
		Name:       "render",
		Capability: stage.CapabilityRender,
		Timeout:    b.cfg.RenderTimeout(),
		PerCall:    true,
		Units: func(_ context.Context, st *stage.State) ([]stage.Unit, error) {
			return []stage.Unit{{
				Label:  "video",
				Input:  st.Path(dubbedAudioFile(st.Params.TargetLang)),
				Target: st.Path(dubbedVideoFile(b.catalog, st.Params.TargetLang)),
			}}, nil
		},
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			err := stage.Call(ctx, "concat", func(ctx context.Context) error {
				return st.Adapters.Audio.Concat(ctx, st.Artifacts.Speech, u.Input)
			})
			if err != nil {
				return stage.Output{}, err
			}
			prober := callingProber{st.Adapters.Prober}
			dubbed, err := prober.Probe(ctx, u.Input)
			if err != nil {
				return stage.Output{}, err
			}
			video, err := prober.Probe(ctx, st.Artifacts.SourceVideo)
			if err != nil {
				return stage.Output{}, err
			}
			stretch := 1.0
			if video.Duration > 0 && dubbed.Duration > 0 {
				stretch = dubbed.Duration.Seconds() / video.Duration.Seconds()
			}
			err = stage.Call(ctx, "mux", func(ctx context.Context) error {
				return st.Adapters.Renderer.RenderDub(ctx, adapters.DubRender{
					VideoPath:  st.Artifacts.SourceVideo,
					AudioPath:  u.Input,
					Stretch:    stretch,
					OutputPath: u.Target,
				})
			})
			if err != nil {
				return stage.Output{}, err
			}
			return stage.Output{Path: u.Target, Meta: map[string]string{
				metaStretch: strconv.FormatFloat(stretch, 'f', 4, 64),
			}}, nil
		},
		Merge: func(st *stage.State, outputs []stage.Output) error {
			st.Artifacts.DubbedAudio = st.Path(dubbedAudioFile(st.Params.TargetLang))
			st.Artifacts.Output = outputs[0].Path
			st.Reporter.Logf("render: video stretched %sx to match dubbed audio", outputs[0].Meta[metaStretch])
			return nil
		},
	}
}

func (b *builder) dubValidate() stage.Definition {
	return stage.Definition{
		Name:       "validate",
		Capability: stage.CapabilityValidate,
		PerCall:    true,
		Units:      stage.Single("report", "", reportFile),
		Run: func(ctx context.Context, st *stage.State, u stage.Unit) (stage.Output, error) {
			gate := validation.NewGate(b.cfg.Validation,
				callingProber{st.Adapters.Prober},
				callingTranscriber{st.Adapters.Transcriber},
				callingTranslator{st.Adapters.Translator},
			)
			report, err := gate.CheckDub(ctx, validation.DubInput{
				OutputPath:       st.Artifacts.Output,
				OriginalAudio:    st.Artifacts.FullAudio,
				DubbedAudio:      st.Artifacts.DubbedAudio,
				SpeechChunks:     st.Artifacts.Speech,
				SourceTranscript: st.Artifacts.SourceText,
				SourceLang:       st.Params.SourceLang,
				TargetLang:       st.Params.TargetLang,
			})
			if err != nil {
				return stage.Output{}, err
			}
			return reportOutput(st, u, report)
		},
		Merge: mergeVerdict,
	}
}
