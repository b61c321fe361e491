package jobs

import (
	"time"
)

// Kind selects the pipeline a job runs.
type Kind string

const (
	KindDub   Kind = "dub"
	KindStory Kind = "story"
)

// ParseKind validates a kind string.
func ParseKind(value string) (Kind, bool) {
	switch Kind(value) {
	case KindDub:
		return KindDub, true
	case KindStory:
		return KindStory, true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// InterruptedReason is recorded on jobs a previous process left unfinished.
const InterruptedReason = "interrupted by restart"

// Params is the submitted job description after normalization.
type Params struct {
	URL        string `json:"url,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	SourceLang string `json:"source_lang,omitempty"`

	Text    string `json:"text,omitempty"`
	Theme   string `json:"theme,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Mood    string `json:"mood,omitempty"`
	Publish bool   `json:"publish,omitempty"`

	TargetLang string  `json:"target_lang"`
	Speaker    string  `json:"speaker,omitempty"`
	Workers    int     `json:"workers,omitempty"`
	Pace       float64 `json:"pace,omitempty"`
}

// Source returns the dub input, URL first.
func (p Params) Source() string {
	if p.URL != "" {
		return p.URL
	}
	return p.FilePath
}

// Job is a snapshot of one submitted job.
type Job struct {
	ID         string    `json:"job_id"`
	Kind       Kind      `json:"kind"`
	Params     Params    `json:"params"`
	Status     Status    `json:"status"`
	StageIndex int       `json:"stage_index"`
	StageName  string    `json:"stage"`
	Progress   []string  `json:"progress"`
	ResultPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	PublishID  string    `json:"publish_id,omitempty"`
	WorkDir    string    `json:"work_dir"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EventType labels a progress event.
type EventType string

const (
	EventLog     EventType = "log"
	EventWarning EventType = "warning"
	EventDone    EventType = "done"
)

// Event is one entry of a job's progress log. For done events Text holds
// the outcome, completed or failed.
type Event struct {
	JobID string    `json:"job_id"`
	Seq   int       `json:"seq"`
	Type  EventType `json:"type"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}
