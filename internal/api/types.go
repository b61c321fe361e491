package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DubRequest is the body of POST /api/jobs/dub.
type DubRequest struct {
	URL        string `json:"url,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang"`
	Speaker    string `json:"speaker,omitempty"`
	Workers    int    `json:"workers,omitempty"`
}

// StoryRequest is the body of POST /api/jobs/story.
type StoryRequest struct {
	Text       string `json:"text,omitempty"`
	Theme      string `json:"theme,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
	TargetLang string `json:"target_lang"`
	Speaker    string `json:"speaker,omitempty"`
	Mood       string `json:"mood,omitempty"`
	Publish    bool   `json:"publish,omitempty"`
	Workers    int    `json:"workers,omitempty"`
}

// SubmitResponse acknowledges a queued job.
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Job is the transport form of a job snapshot.
type Job struct {
	JobID      string   `json:"job_id"`
	Kind       string   `json:"kind"`
	Status     string   `json:"status"`
	Stage      string   `json:"stage"`
	StageIndex int      `json:"stage_index"`
	Progress   []string `json:"progress"`
	OutputPath string   `json:"output_path,omitempty"`
	Error      string   `json:"error,omitempty"`
	PublishID  string   `json:"publish_id,omitempty"`
	Source     string   `json:"source,omitempty"`
	TargetLang string   `json:"target_lang,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
	UpdatedAt  string   `json:"updated_at,omitempty"`
}

// JobList wraps GET /api/jobs.
type JobList struct {
	Jobs []Job `json:"jobs"`
}

// Language is one entry of the catalog languages.
type Language struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	DefaultSpeaker string `json:"default_speaker,omitempty"`
}

// Theme is one story collection.
type Theme struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Mood pairs a mood with its speech pace.
type Mood struct {
	Name string  `json:"name"`
	Pace float64 `json:"pace"`
}

// CatalogResponse is the body of GET /api/config.
type CatalogResponse struct {
	Languages []Language `json:"languages"`
	Speakers  []string   `json:"speakers"`
	Themes    []Theme    `json:"themes"`
	Moods     []Mood     `json:"moods"`
}

// DependencyStatus captures availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult is one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// WorkerStats reports the job runner's capacity.
type WorkerStats struct {
	Workers  int `json:"workers"`
	Running  int `json:"running"`
	Queued   int `json:"queued"`
	Capacity int `json:"capacity"`
}

// Status is the body of GET /api/status.
type Status struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    string             `json:"started_at,omitempty"`
	LockFilePath string             `json:"lock_file_path"`
	JobDBPath    string             `json:"job_db_path"`
	Workers      WorkerStats        `json:"workers"`
	JobCounts    map[string]int     `json:"job_counts"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Preflight    []CheckResult      `json:"preflight"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}
