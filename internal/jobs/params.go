package jobs

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"storydub/internal/catalog"
	"storydub/internal/services"
)

const (
	defaultSourceLang = "en-IN"
	defaultWorkers    = 4
	maxWorkers        = 16
)

// Normalize applies defaults and validates params for kind against the
// catalog. Every failure carries services.ErrValidation so callers reject the
// submission without creating a job.
func Normalize(kind Kind, p Params, cat *catalog.Catalog) (Params, error) {
	p.TargetLang = strings.TrimSpace(p.TargetLang)
	p.Speaker = strings.TrimSpace(p.Speaker)
	if p.Workers == 0 {
		p.Workers = defaultWorkers
	}
	if p.Workers < 1 || p.Workers > maxWorkers {
		return p, invalid("workers must be between 1 and %d", maxWorkers)
	}
	if p.TargetLang == "" {
		return p, invalid("target_lang is required")
	}
	target, ok := cat.Language(p.TargetLang)
	if !ok {
		return p, invalid("unsupported target_lang %q", p.TargetLang)
	}
	p.TargetLang = target.Code

	var err error
	switch kind {
	case KindDub:
		p, err = normalizeDub(p, cat)
	case KindStory:
		p, err = normalizeStory(p, cat)
	default:
		return p, invalid("unknown job kind %q", kind)
	}
	if err != nil {
		return p, err
	}

	speaker, err := cat.ResolveSpeaker(p.TargetLang, p.Speaker)
	if err != nil {
		return p, err
	}
	p.Speaker = speaker
	return p, nil
}

func normalizeDub(p Params, cat *catalog.Catalog) (Params, error) {
	p.URL = strings.TrimSpace(p.URL)
	p.FilePath = strings.TrimSpace(p.FilePath)
	switch {
	case p.URL == "" && p.FilePath == "":
		return p, invalid("one of url or file_path is required")
	case p.URL != "" && p.FilePath != "":
		return p, invalid("url and file_path are mutually exclusive")
	case p.URL != "":
		parsed, err := url.Parse(p.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return p, invalid("url %q must be an http(s) address", p.URL)
		}
	default:
		info, err := os.Stat(p.FilePath)
		if err != nil {
			return p, invalid("file_path %q is not readable", p.FilePath)
		}
		if info.IsDir() {
			return p, invalid("file_path %q is a directory", p.FilePath)
		}
	}

	p.SourceLang = strings.TrimSpace(p.SourceLang)
	if p.SourceLang == "" {
		p.SourceLang = defaultSourceLang
	}
	source, ok := cat.Language(p.SourceLang)
	if !ok {
		return p, invalid("unsupported source_lang %q", p.SourceLang)
	}
	p.SourceLang = source.Code
	if strings.EqualFold(p.SourceLang, p.TargetLang) {
		return p, invalid("source_lang and target_lang must differ")
	}
	p.Text, p.Theme, p.Keyword, p.Mood, p.Publish = "", "", "", "", false
	p.Pace = 1.0
	return p, nil
}

func normalizeStory(p Params, cat *catalog.Catalog) (Params, error) {
	p.Text = strings.TrimSpace(p.Text)
	p.Theme = strings.ToLower(strings.TrimSpace(p.Theme))
	p.Keyword = strings.TrimSpace(p.Keyword)
	switch {
	case p.Text == "" && p.Theme == "":
		return p, invalid("one of text or theme is required")
	case p.Text != "" && p.Theme != "":
		return p, invalid("text and theme are mutually exclusive")
	case p.Theme != "":
		if _, ok := cat.Theme(p.Theme); !ok {
			return p, invalid("unknown theme %q", p.Theme)
		}
	}

	p.Mood = strings.ToLower(strings.TrimSpace(p.Mood))
	if p.Mood == "" {
		p.Mood = catalog.MoodDefault
	}
	pace, err := cat.Pace(p.Mood)
	if err != nil {
		return p, err
	}
	p.Pace = pace
	p.URL, p.FilePath, p.SourceLang = "", "", ""
	return p, nil
}

func invalid(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "", "", fmt.Sprintf(format, args...), nil)
}
