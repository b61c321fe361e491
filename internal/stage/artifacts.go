package stage

import (
	"path/filepath"
	"time"

	"storydub/internal/adapters"
)

// Artifacts accumulates stage results for one job.
type Artifacts struct {
	// Dub pipeline.
	SourceVideo   string
	SourceTitle   string
	FullAudio     string
	AudioDuration time.Duration
	Chunks        []string
	Transcripts   []string
	Normalized    []string
	Translations  []string
	Speech        []string
	DubbedAudio   string
	SourceText    string
	TargetText    string

	// Story pipeline.
	StoryTitle string
	StoryText  string
	Breakdown  adapters.Breakdown
	Images     []string
	Narrations []string
	Durations  []time.Duration
	Subtitles  string
	PublishID  string

	// Shared.
	Output  string
	Verdict string
}

func joinPath(dir, name string) string {
	return filepath.Join(dir, name)
}
