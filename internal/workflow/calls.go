package workflow

import (
	"context"

	"storydub/internal/adapters"
	"storydub/internal/stage"
)

// callValue routes one value-returning adapter call through stage.Call.
func callValue[T any](ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := stage.Call(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// The calling* adapters hand every call to stage.Call, which lets a PerCall
// stage pass them to code that makes several calls, such as the quality gate.

type callingProber struct{ adapters.Prober }

func (p callingProber) Probe(ctx context.Context, path string) (adapters.MediaInfo, error) {
	return callValue(ctx, "probe", func(ctx context.Context) (adapters.MediaInfo, error) {
		return p.Prober.Probe(ctx, path)
	})
}

type callingTranscriber struct{ adapters.Transcriber }

func (t callingTranscriber) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	return callValue(ctx, "transcribe", func(ctx context.Context) (string, error) {
		return t.Transcriber.Transcribe(ctx, audioPath, language)
	})
}

type callingTranslator struct{ adapters.Translator }

func (t callingTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	return callValue(ctx, "translate", func(ctx context.Context) (string, error) {
		return t.Translator.Translate(ctx, text, source, target)
	})
}
