package api

import (
	"testing"
	"time"

	"storydub/internal/catalog"
	"storydub/internal/jobs"
)

func TestFromJob(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := jobs.Job{
		ID:         "abc",
		Kind:       jobs.KindDub,
		Params:     jobs.Params{URL: "https://youtu.be/x", TargetLang: "hi-IN"},
		Status:     jobs.StatusFailed,
		StageIndex: 3,
		StageName:  "transcribe",
		Error:      "transcribe: boom",
		CreatedAt:  created,
		UpdatedAt:  created.Add(time.Minute),
	}
	dto := FromJob(job)
	if dto.JobID != "abc" || dto.Kind != "dub" || dto.Status != "failed" || dto.Stage != "transcribe" {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if dto.Progress == nil {
		t.Fatal("progress should encode as an empty list, not null")
	}
	if dto.Source != "https://youtu.be/x" || dto.TargetLang != "hi-IN" {
		t.Fatalf("unexpected source fields %+v", dto)
	}
	if dto.CreatedAt != "2026-03-01T10:00:00.000Z" {
		t.Fatalf("unexpected created_at %q", dto.CreatedAt)
	}
	if !ParseTime(dto.UpdatedAt).Equal(created.Add(time.Minute)) {
		t.Fatalf("updated_at did not round trip: %q", dto.UpdatedAt)
	}
	if FromJob(jobs.Job{}).CreatedAt != "" {
		t.Fatal("zero time should be omitted")
	}
}

func TestRequestParams(t *testing.T) {
	dub := DubRequest{FilePath: "/v.mp4", TargetLang: "te-IN", Workers: 2}.Params()
	if dub.FilePath != "/v.mp4" || dub.TargetLang != "te-IN" || dub.Workers != 2 {
		t.Fatalf("unexpected dub params %+v", dub)
	}
	story := StoryRequest{Theme: "aesop", Keyword: "fox", Mood: "calm", Publish: true, TargetLang: "hi-IN"}.Params()
	if story.Theme != "aesop" || story.Keyword != "fox" || !story.Publish || story.Mood != "calm" {
		t.Fatalf("unexpected story params %+v", story)
	}
}

func TestFromCatalog(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	resp := FromCatalog(cat)
	if len(resp.Languages) != len(cat.Languages) || len(resp.Speakers) == 0 {
		t.Fatalf("unexpected catalog response %+v", resp)
	}
	if len(resp.Themes) != len(catalog.KnownThemes) || resp.Themes[0].Name != "aesop" {
		t.Fatalf("themes should be sorted by name, got %+v", resp.Themes)
	}
	if len(resp.Moods) != len(catalog.KnownMoods) {
		t.Fatalf("expected every mood, got %+v", resp.Moods)
	}
	for _, mood := range resp.Moods {
		if mood.Name == "calm" && mood.Pace != 0.9 {
			t.Fatalf("unexpected calm pace %v", mood.Pace)
		}
	}
}

func TestFromCounts(t *testing.T) {
	counts := FromCounts(map[jobs.Status]int{jobs.StatusQueued: 2, jobs.StatusCompleted: 1})
	if counts["queued"] != 2 || counts["completed"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}
