package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storydub/internal/adapters"
	"storydub/internal/services"
)

const (
	transcribeSampleRate = "16000"
	speechSampleRate     = "22050"
)

// Audio implements adapters.AudioProcessor.
type Audio struct {
	cmd command
}

var _ adapters.AudioProcessor = (*Audio)(nil)

// NewAudio returns an audio processor invoking binary.
func NewAudio(binary string, opts ...Option) *Audio {
	return &Audio{cmd: newCommand(binary, opts)}
}

// Extract writes the video's audio as mono 16 kHz WAV.
func (a *Audio) Extract(ctx context.Context, videoPath, outPath string) error {
	partial := partialPath(outPath)
	if err := a.cmd.run(ctx, "extract audio",
		"-i", videoPath,
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", transcribeSampleRate,
		"-c:a", "pcm_s16le",
		partial,
	); err != nil {
		return err
	}
	return commit("extract audio", partial, outPath)
}

// Slice copies length of audio starting at start into outPath.
func (a *Audio) Slice(ctx context.Context, audioPath, outPath string, start, length time.Duration) error {
	if length <= 0 {
		return services.Wrap(services.ErrValidation, "", "slice audio", fmt.Sprintf("invalid length %s", length), nil)
	}
	partial := partialPath(outPath)
	if err := a.cmd.run(ctx, "slice audio",
		"-ss", seconds(start.Seconds()),
		"-t", seconds(length.Seconds()),
		"-i", audioPath,
		"-ac", "1",
		"-ar", transcribeSampleRate,
		"-c:a", "pcm_s16le",
		partial,
	); err != nil {
		return err
	}
	return commit("slice audio", partial, outPath)
}

// Concat joins parts in order through the concat demuxer.
func (a *Audio) Concat(ctx context.Context, parts []string, outPath string) error {
	if len(parts) == 0 {
		return services.Wrap(services.ErrValidation, "", "concat audio", "no parts to join", nil)
	}
	list, err := writeConcatList(parts, outPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "", "concat audio", "write list", err)
	}
	defer os.Remove(list)

	partial := partialPath(outPath)
	if err := a.cmd.run(ctx, "concat audio",
		"-f", "concat", "-safe", "0",
		"-i", list,
		"-ac", "1",
		"-ar", speechSampleRate,
		partial,
	); err != nil {
		return err
	}
	return commit("concat audio", partial, outPath)
}

func writeConcatList(parts []string, outPath string) (string, error) {
	var b strings.Builder
	for _, part := range parts {
		abs, err := filepath.Abs(part)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	list := outPath + ".concat.txt"
	if err := os.WriteFile(list, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return list, nil
}
