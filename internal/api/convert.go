package api

import (
	"time"

	"storydub/internal/catalog"
	"storydub/internal/deps"
	"storydub/internal/jobs"
	"storydub/internal/preflight"
)

// Params converts the request into job parameters. Defaults are applied
// by jobs.Normalize.
func (r DubRequest) Params() jobs.Params {
	return jobs.Params{
		URL:        r.URL,
		FilePath:   r.FilePath,
		SourceLang: r.SourceLang,
		TargetLang: r.TargetLang,
		Speaker:    r.Speaker,
		Workers:    r.Workers,
	}
}

// Params converts the request into job parameters.
func (r StoryRequest) Params() jobs.Params {
	return jobs.Params{
		Text:       r.Text,
		Theme:      r.Theme,
		Keyword:    r.Keyword,
		TargetLang: r.TargetLang,
		Speaker:    r.Speaker,
		Mood:       r.Mood,
		Publish:    r.Publish,
		Workers:    r.Workers,
	}
}

// FromJob converts a job snapshot to its API representation.
func FromJob(job jobs.Job) Job {
	progress := job.Progress
	if progress == nil {
		progress = []string{}
	}
	return Job{
		JobID:      job.ID,
		Kind:       string(job.Kind),
		Status:     string(job.Status),
		Stage:      job.StageName,
		StageIndex: job.StageIndex,
		Progress:   progress,
		OutputPath: job.ResultPath,
		Error:      job.Error,
		PublishID:  job.PublishID,
		Source:     job.Params.Source(),
		TargetLang: job.Params.TargetLang,
		CreatedAt:  FormatTime(job.CreatedAt),
		UpdatedAt:  FormatTime(job.UpdatedAt),
	}
}

// FromJobs converts a slice of snapshots, preserving order.
func FromJobs(list []jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromCatalog lists the catalog contents with themes sorted by name and
// moods in display order.
func FromCatalog(cat *catalog.Catalog) CatalogResponse {
	resp := CatalogResponse{
		Languages: make([]Language, 0, len(cat.Languages)),
		Speakers:  append([]string(nil), cat.Speakers...),
	}
	for _, lang := range cat.Languages {
		resp.Languages = append(resp.Languages, Language{
			Code:           lang.Code,
			Name:           lang.Name,
			DefaultSpeaker: lang.DefaultSpeaker,
		})
	}
	for _, name := range cat.ThemeNames() {
		theme, _ := cat.Theme(name)
		resp.Themes = append(resp.Themes, Theme{Name: name, Title: theme.Title, URL: theme.URL})
	}
	for _, name := range cat.MoodNames() {
		pace, err := cat.Pace(name)
		if err != nil {
			continue
		}
		resp.Moods = append(resp.Moods, Mood{Name: name, Pace: pace})
	}
	return resp
}

// FromDependencies converts binary checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromPreflight converts preflight results.
func FromPreflight(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, len(results))
	for i, r := range results {
		out[i] = CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail}
	}
	return out
}

// FromCounts produces a string-keyed representation of job counts.
func FromCounts(counts map[jobs.Status]int) map[string]int {
	out := make(map[string]int, len(counts))
	for status, count := range counts {
		out[string(status)] = count
	}
	return out
}

// ParseTime parses a timestamp produced by the API, returning the zero time
// when value is empty or malformed.
func ParseTime(value string) time.Time {
	parsed, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// FormatTime renders t in the API timestamp layout, or "" when unset.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
