package ffmpeg

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"storydub/internal/adapters"
	"storydub/internal/fileutil"
	"storydub/internal/logging"
	"storydub/internal/services"
)

const (
	defaultWidth  = 1080
	defaultHeight = 1920
	clipPadding   = 200 * time.Millisecond
)

// Renderer implements adapters.Renderer.
type Renderer struct {
	cmd command
}

var _ adapters.Renderer = (*Renderer)(nil)

// NewRenderer returns a renderer invoking binary.
func NewRenderer(binary string, opts ...Option) *Renderer {
	return &Renderer{cmd: newCommand(binary, opts)}
}

// Render builds a story short: one clip per scene, crossfaded together,
// then subtitles burned in when the timeline carries a track.
func (r *Renderer) Render(ctx context.Context, tl adapters.Timeline) error {
	if len(tl.Clips) == 0 {
		return services.Wrap(services.ErrValidation, "", "render", "timeline has no clips", nil)
	}
	if tl.Width <= 0 || tl.Height <= 0 {
		tl.Width, tl.Height = defaultWidth, defaultHeight
	}
	workDir := tl.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(tl.OutputPath)
	}

	clipPaths := make([]string, len(tl.Clips))
	durations := make([]time.Duration, len(tl.Clips))
	for i, clip := range tl.Clips {
		path := filepath.Join(workDir, fmt.Sprintf("clip_%02d.mp4", i+1))
		if err := r.renderClip(ctx, clip, tl.Width, tl.Height, path); err != nil {
			return err
		}
		clipPaths[i] = path
		durations[i] = clip.Duration
		r.cmd.logger.Debug("scene clip rendered",
			logging.Int("scene", i+1),
			logging.Duration("duration", clip.Duration),
		)
	}

	stitched := filepath.Join(workDir, "stitched.mp4")
	if err := r.stitch(ctx, clipPaths, durations, tl.Crossfade, stitched); err != nil {
		return err
	}

	partial := partialPath(tl.OutputPath)
	if tl.SubtitlesPath == "" {
		if err := fileutil.CopyFile(stitched, partial); err != nil {
			return services.Wrap(services.ErrExternalTool, "", "render", "copy stitched video", err)
		}
		return commit("render", partial, tl.OutputPath)
	}
	if err := r.cmd.run(ctx, "burn subtitles",
		"-i", stitched,
		"-vf", SubtitleFilter(tl.SubtitlesPath),
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-c:a", "copy",
		partial,
	); err != nil {
		return err
	}
	return commit("render", partial, tl.OutputPath)
}

func (r *Renderer) renderClip(ctx context.Context, clip adapters.Clip, width, height int, out string) error {
	if clip.Duration <= 0 {
		return services.Wrap(services.ErrValidation, "", "render clip", fmt.Sprintf("scene %d has no duration", clip.Index+1), nil)
	}
	return r.cmd.run(ctx, "render clip",
		"-loop", "1", "-framerate", fmt.Sprint(FPS), "-i", clip.ImagePath,
		"-i", clip.AudioPath,
		"-vf", KenBurnsFilter(clip.Index, clip.Duration, width, height),
		"-map", "0:v", "-map", "1:a",
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-t", seconds((clip.Duration + clipPadding).Seconds()),
		"-shortest",
		out,
	)
}

func (r *Renderer) stitch(ctx context.Context, clips []string, durations []time.Duration, fade time.Duration, out string) error {
	if len(clips) == 1 {
		if err := fileutil.CopyFile(clips[0], out); err != nil {
			return services.Wrap(services.ErrExternalTool, "", "stitch", "copy single clip", err)
		}
		return nil
	}
	graph, videoLabel, audioLabel := StitchFilter(durations, fade)
	args := make([]string, 0, len(clips)*2+12)
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", "["+videoLabel+"]", "-map", "["+audioLabel+"]",
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		out,
	)
	return r.cmd.run(ctx, "stitch", args...)
}

// RenderDub replaces the video's audio with the dub, retiming frames by
// req.Stretch so both tracks end together.
func (r *Renderer) RenderDub(ctx context.Context, req adapters.DubRender) error {
	if req.Stretch <= 0 {
		return services.Wrap(services.ErrValidation, "", "render dub", fmt.Sprintf("invalid stretch %f", req.Stretch), nil)
	}
	partial := partialPath(req.OutputPath)
	if err := r.cmd.run(ctx, "render dub",
		"-i", req.VideoPath,
		"-i", req.AudioPath,
		"-filter:v", RetimeFilter(req.Stretch),
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-shortest",
		partial,
	); err != nil {
		return err
	}
	return commit("render dub", partial, req.OutputPath)
}
