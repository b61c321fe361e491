package ffmpeg

import (
	"fmt"
	"strings"
	"time"
)

// FPS is the frame rate of rendered story clips.
const FPS = 24

// kenBurnsPresets are zoompan motions cycled across scenes.
var kenBurnsPresets = []string{
	// zoom in
	"z='min(zoom+0.0007,1.3)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)'",
	// zoom out
	"z='if(lte(zoom,1.0),1.3,max(1.001,zoom-0.0010))':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)'",
	// pan left to right
	"z='1.2':x='iw*0.1+on*iw*0.0003':y='ih/2-(ih/zoom/2)'",
	// pan right to left
	"z='1.2':x='iw*0.2-on*iw*0.0003':y='ih/2-(ih/zoom/2)'",
	// pan top to bottom
	"z='1.2':x='iw/2-(iw/zoom/2)':y='ih*0.05+on*ih*0.0003'",
}

// subtitleStyle is the libass force_style for burned captions.
const subtitleStyle = "FontSize=16,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000," +
	"BorderStyle=1,Outline=2,Shadow=1,Alignment=2,MarginV=40"

// KenBurnsFilter returns the video filter for scene index, using preset
// index mod len(presets) so a render is deterministic.
func KenBurnsFilter(index int, duration time.Duration, width, height int) string {
	if index < 0 {
		index = -index
	}
	preset := kenBurnsPresets[index%len(kenBurnsPresets)]
	frames := int((duration.Seconds() + 0.5) * FPS)
	return fmt.Sprintf("scale=4000:-1,zoompan=%s:d=%d:s=%dx%d:fps=%d,format=yuv420p",
		preset, frames, width, height, FPS)
}

// StitchFilter chains len(durations) inputs with dissolve xfades and
// acrossfades of length fade. It returns the filter graph plus the labels
// of the final video and audio pads. Each xfade starts fade before the end
// of the accumulated timeline.
func StitchFilter(durations []time.Duration, fade time.Duration) (string, string, string) {
	if len(durations) < 2 {
		return "", "0:v", "0:a"
	}
	var (
		video      []string
		audio      []string
		cumulative float64
		lastVideo  = "0:v"
		lastAudio  = "0:a"
	)
	fadeSeconds := fade.Seconds()
	for i := 1; i < len(durations); i++ {
		offset := cumulative + durations[i-1].Seconds() - fadeSeconds
		if offset < 0 {
			offset = 0
		}
		cumulative = offset + fadeSeconds
		nextVideo := fmt.Sprintf("v%d", i)
		nextAudio := fmt.Sprintf("a%d", i)
		video = append(video, fmt.Sprintf("[%s][%d:v]xfade=transition=dissolve:duration=%s:offset=%.3f[%s]",
			lastVideo, i, trimFloat(fadeSeconds), offset, nextVideo))
		audio = append(audio, fmt.Sprintf("[%s][%d:a]acrossfade=d=%s[%s]",
			lastAudio, i, trimFloat(fadeSeconds), nextAudio))
		lastVideo, lastAudio = nextVideo, nextAudio
	}
	return strings.Join(append(video, audio...), ";"), lastVideo, lastAudio
}

// SubtitleFilter returns the subtitles filter burning srtPath with the
// caption style. Characters meaningful to the filter parser are escaped.
func SubtitleFilter(srtPath string) string {
	escaped := strings.NewReplacer(`\`, "/", ":", `\:`, "'", `\'`).Replace(srtPath)
	return fmt.Sprintf("subtitles=%s:force_style='%s'", escaped, subtitleStyle)
}

// RetimeFilter returns the setpts filter slowing (factor > 1) or speeding
// (factor < 1) the video.
func RetimeFilter(factor float64) string {
	return fmt.Sprintf("setpts=%.6f*PTS", factor)
}

func trimFloat(value float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", value), "0"), ".")
}
