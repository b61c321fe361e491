package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storydub/internal/catalog"
	"storydub/internal/services"
)

func mustDefault(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return cat
}

func TestDefaultCatalogCoversEveryEnum(t *testing.T) {
	cat := mustDefault(t)
	if len(cat.Languages) != 11 {
		t.Fatalf("expected 11 languages, got %d", len(cat.Languages))
	}
	for _, mood := range catalog.KnownMoods {
		if _, err := cat.Pace(mood); err != nil {
			t.Fatalf("mood %s: %v", mood, err)
		}
	}
	for _, theme := range catalog.KnownThemes {
		if _, ok := cat.Theme(theme); !ok {
			t.Fatalf("theme %s missing", theme)
		}
	}
}

func TestResolveSpeaker(t *testing.T) {
	cat := mustDefault(t)
	cases := []struct {
		lang, speaker, want string
		wantErr             bool
	}{
		{"hi-IN", "", "priya", false},
		{"ta-IN", "Rahul", "rahul", false},
		{"en-IN", "", "", true},
		{"en-IN", "amit", "amit", false},
		{"hi-IN", "nobody", "", true},
		{"xx-YY", "priya", "", true},
	}
	for _, tc := range cases {
		got, err := cat.ResolveSpeaker(tc.lang, tc.speaker)
		if tc.wantErr {
			if err == nil || !errors.Is(err, services.ErrValidation) {
				t.Fatalf("%s/%s: expected input error, got %v", tc.lang, tc.speaker, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s/%s: got %q err=%v", tc.lang, tc.speaker, got, err)
		}
	}
}

func TestPaceDefaultsAndRejectsUnknown(t *testing.T) {
	cat := mustDefault(t)
	if pace, err := cat.Pace(""); err != nil || pace != 1.0 {
		t.Fatalf("expected default pace 1.0, got %v %v", pace, err)
	}
	if pace, _ := cat.Pace("dramatic"); pace >= 1.0 {
		t.Fatalf("expected dramatic to slow down, got %v", pace)
	}
	if _, err := cat.Pace("sleepy"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestLoadFailsFastOnMissingMood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
languages:
  - code: hi-IN
    name: Hindi
    default_speaker: priya
speakers: [priya]
moods:
  default: 1.0
themes: {}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := catalog.Load(path)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, fragment := range []string{`mood "calm" has no pace`, `theme "aesop" has no source`} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %v", fragment, err)
		}
	}
}

func TestValidateRejectsUnknownEntries(t *testing.T) {
	cat := mustDefault(t)
	cat.Moods["sleepy"] = 0.5
	cat.Themes["grimm"] = catalog.Theme{Kind: catalog.SourceText, URL: "https://example.org", Pattern: "x"}
	err := cat.Validate()
	if err == nil {
		t.Fatal("expected unknown enums to be rejected")
	}
	if !strings.Contains(err.Error(), `mood "sleepy"`) || !strings.Contains(err.Error(), `theme "grimm"`) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestValidateRejectsBadPaceAndSpeaker(t *testing.T) {
	cat := mustDefault(t)
	cat.Moods[catalog.MoodCalm] = 0
	cat.Languages[1].DefaultSpeaker = "ghost"
	err := cat.Validate()
	if err == nil || !strings.Contains(err.Error(), "outside (0, 2]") || !strings.Contains(err.Error(), `"ghost"`) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	if got := catalog.DisplayName("hindi"); got != "Hindi" {
		t.Fatalf("expected Hindi, got %q", got)
	}
}
