package subtitles

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"storydub/internal/fileutil"
)

// LineWidth is the maximum characters per subtitle line.
const LineWidth = 38

// cueTrim ends each cue slightly before its scene so consecutive cues never
// overlap on screen.
const cueTrim = 100 * time.Millisecond

// Cue is one subtitle entry.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Timeline lays out one cue per narrated scene. Scenes overlap by crossfade
// in the rendered video, so each cue starts crossfade before the previous
// scene ends.
func Timeline(texts []string, durations []time.Duration, crossfade time.Duration) []Cue {
	n := min(len(texts), len(durations))
	cues := make([]Cue, 0, n)
	var t time.Duration
	for i := 0; i < n; i++ {
		cues = append(cues, Cue{
			Index: i + 1,
			Start: t,
			End:   t + durations[i] - cueTrim,
			Text:  Wrap(texts[i], LineWidth),
		})
		t += durations[i] - crossfade
	}
	return cues
}

// Wrap breaks text into lines of at most width characters on word
// boundaries. A single word longer than width gets a line of its own.
func Wrap(text string, width int) string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		if utf8.RuneCountInString(line)+utf8.RuneCountInString(word)+1 <= width {
			if line != "" {
				line += " "
			}
			line += word
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
		line = word
	}
	if line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Format renders cues as SRT text.
func Format(cues []Cue) string {
	blocks := make([]string, 0, len(cues))
	for _, cue := range cues {
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s\n", cue.Index, formatTimestamp(cue.Start), formatTimestamp(cue.End), cue.Text))
	}
	return strings.Join(blocks, "\n")
}

// Write stores cues at path as UTF-8 SRT.
func Write(path string, cues []Cue) error {
	return fileutil.WriteFileAtomic(path, []byte(Format(cues)))
}

func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// CountCues returns the number of cue blocks in an SRT file.
func CountCues(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read srt: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return 0, nil
	}
	count := 0
	for _, block := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(block) != "" {
			count++
		}
	}
	return count, nil
}

// Bounds returns the earliest cue start and latest cue end in an SRT file.
func Bounds(path string) (time.Duration, time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read srt: %w", err)
	}
	var first, last time.Duration
	found := false
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.Split(line, "-->")
		if len(parts) != 2 {
			continue
		}
		start, errStart := parseTimestamp(parts[0])
		end, errEnd := parseTimestamp(parts[1])
		if errStart != nil || errEnd != nil {
			continue
		}
		if !found || start < first {
			first = start
		}
		if end > last {
			last = end
		}
		found = true
	}
	return first, last, nil
}

func parseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	total := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	return total + time.Duration(millis)*time.Millisecond, nil
}
