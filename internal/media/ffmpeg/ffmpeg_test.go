package ffmpeg_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"storydub/internal/adapters"
	"storydub/internal/media/ffmpeg"
	"storydub/internal/services"
)

// stubFFmpeg writes a script that logs its arguments and creates the
// output file named by its last argument.
func stubFFmpeg(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "calls.log")
	script := "#!/bin/sh\n" +
		"echo \"$*\" >> '" + logPath + "'\n" +
		"for last; do :; done\n" +
		": > \"$last\"\n"
	binary := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return binary, logPath
}

func calls(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read calls: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestAudioExtractAndSlice(t *testing.T) {
	binary, logPath := stubFFmpeg(t)
	dir := t.TempDir()
	audio := ffmpeg.NewAudio(binary)

	full := filepath.Join(dir, "audio_full.wav")
	if err := audio.Extract(context.Background(), filepath.Join(dir, "source.mp4"), full); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	chunk := filepath.Join(dir, "chunk_001.wav")
	if err := audio.Slice(context.Background(), full, chunk, 240*time.Second, 240*time.Second); err != nil {
		t.Fatalf("Slice: %v", err)
	}
	for _, path := range []string{full, chunk} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
	}
	got := calls(t, logPath)
	if len(got) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(got))
	}
	if !strings.Contains(got[0], "-ac 1 -ar 16000") {
		t.Fatalf("extract should produce mono 16 kHz audio: %s", got[0])
	}
	if !strings.Contains(got[1], "-ss 240.000 -t 240.000") {
		t.Fatalf("unexpected slice window: %s", got[1])
	}
	if err := audio.Slice(context.Background(), full, chunk, 0, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty slice, got %v", err)
	}
}

func TestAudioConcatWritesListAndCleansUp(t *testing.T) {
	binary, logPath := stubFFmpeg(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "dubbed_audio_hi-IN.wav")
	parts := []string{filepath.Join(dir, "tts_000.wav"), filepath.Join(dir, "tts_001.wav")}

	if err := ffmpeg.NewAudio(binary).Concat(context.Background(), parts, out); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output: %v", err)
	}
	if _, err := os.Stat(out + ".concat.txt"); !os.IsNotExist(err) {
		t.Fatalf("concat list should be removed, stat err %v", err)
	}
	if got := calls(t, logPath); !strings.Contains(got[0], "-f concat -safe 0") || !strings.Contains(got[0], "-ar 22050") {
		t.Fatalf("unexpected concat invocation: %s", got[0])
	}
	if err := ffmpeg.NewAudio(binary).Concat(context.Background(), nil, out); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty parts, got %v", err)
	}
}

func TestRenderBuildsClipsStitchesAndBurns(t *testing.T) {
	binary, logPath := stubFFmpeg(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "short.mp4")
	tl := adapters.Timeline{
		Clips: []adapters.Clip{
			{Index: 0, ImagePath: "scene_01.jpg", AudioPath: "scene_01_narration.wav", Duration: 3 * time.Second},
			{Index: 1, ImagePath: "scene_02.jpg", AudioPath: "scene_02_narration.wav", Duration: 4 * time.Second},
		},
		Width:         1080,
		Height:        1920,
		Crossfade:     500 * time.Millisecond,
		SubtitlesPath: filepath.Join(dir, "subtitles.srt"),
		WorkDir:       dir,
		OutputPath:    out,
	}
	if err := ffmpeg.NewRenderer(binary).Render(context.Background(), tl); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected short: %v", err)
	}
	got := calls(t, logPath)
	if len(got) != 4 {
		t.Fatalf("expected 2 clips, a stitch and a burn, got %d calls", len(got))
	}
	if !strings.Contains(got[1], "zoom-0.0010") {
		t.Fatalf("second clip should use the zoom-out preset: %s", got[1])
	}
	if !strings.Contains(got[2], "xfade=transition=dissolve:duration=0.5:offset=2.500") {
		t.Fatalf("unexpected stitch: %s", got[2])
	}
	if !strings.Contains(got[3], "subtitles=") {
		t.Fatalf("expected subtitle burn: %s", got[3])
	}
}

func TestRenderDubRetimesVideo(t *testing.T) {
	binary, logPath := stubFFmpeg(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "dubbed_Hindi.mp4")
	err := ffmpeg.NewRenderer(binary).RenderDub(context.Background(), adapters.DubRender{
		VideoPath:  "source.mp4",
		AudioPath:  "dubbed.wav",
		Stretch:    1.1,
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("RenderDub: %v", err)
	}
	if got := calls(t, logPath); !strings.Contains(got[0], "setpts=1.100000*PTS") || !strings.Contains(got[0], "-map 1:a:0") {
		t.Fatalf("unexpected dub invocation: %s", got[0])
	}
	if err := ffmpeg.NewRenderer(binary).RenderDub(context.Background(), adapters.DubRender{OutputPath: out}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for zero stretch, got %v", err)
	}
}

func TestCommandFailuresAreClassified(t *testing.T) {
	dir := t.TempDir()
	failing := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "audio.wav")

	err := ffmpeg.NewAudio(failing).Extract(context.Background(), "in.mp4", out)
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected external tool error with output tail, got %v", err)
	}
	err = ffmpeg.NewAudio(filepath.Join(dir, "missing-ffmpeg")).Extract(context.Background(), "in.mp4", out)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
