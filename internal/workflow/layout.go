package workflow

import (
	"fmt"
	"strconv"
	"time"

	"storydub/internal/catalog"
	"storydub/internal/textutil"
)

// Files inside a job directory.
const (
	sourceVideoFile      = "source.mp4"
	fullAudioFile        = "audio_full.wav"
	downloadDir          = "download"
	sourceTranscriptFile = "transcript_source.txt"
	storyTextFile        = "story_text.txt"
	breakdownFile        = "breakdown.json"
	subtitlesFile        = "subtitles.srt"
	shortFile            = "short.mp4"
	publishIDFile        = "publish_id.txt"
	reportFile           = "validation.json"
	jobLogFile           = "job.log"
)

// Metadata keys stored alongside cached artifacts.
const (
	metaTitle    = "title"
	metaDuration = "duration_ms"
	metaStretch  = "stretch"
	metaPublish  = "publish_id"
)

func chunkFile(i int) string           { return fmt.Sprintf("chunk_%03d.wav", i) }
func sourceChunkFile(i int) string     { return fmt.Sprintf("transcript_src_%03d.txt", i) }
func normalizedChunkFile(i int) string { return fmt.Sprintf("transcript_norm_%03d.txt", i) }

func targetChunkFile(lang string, i int) string {
	return fmt.Sprintf("transcript_tgt_%s_%03d.txt", lang, i)
}

func speechChunkFile(lang string, i int) string {
	return fmt.Sprintf("tts_%s_%03d.wav", lang, i)
}

func dubbedAudioFile(lang string) string      { return fmt.Sprintf("dubbed_audio_%s.wav", lang) }
func targetTranscriptFile(lang string) string { return fmt.Sprintf("transcript_%s.txt", lang) }

// dubbedVideoFile names the final dub after the target language, e.g.
// dubbed_Hindi.mp4.
func dubbedVideoFile(cat *catalog.Catalog, lang string) string {
	name := lang
	if entry, ok := cat.Language(lang); ok {
		name = entry.Name
	}
	return fmt.Sprintf("dubbed_%s.mp4", textutil.SanitizeFileName(catalog.DisplayName(name)))
}

func sceneImageFile(i int) string     { return fmt.Sprintf("scene_%02d.jpg", i+1) }
func sceneNarrationFile(i int) string { return fmt.Sprintf("scene_%02d_narration.wav", i+1) }

func formatDuration(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func parseDuration(value string) (time.Duration, bool) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil || ms < 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
