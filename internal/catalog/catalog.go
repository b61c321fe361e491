package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"storydub/internal/services"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Recognized moods. Every one must map to a pace.
const (
	MoodDefault  = "default"
	MoodCalm     = "calm"
	MoodDramatic = "dramatic"
	MoodExcited  = "excited"
	MoodFunny    = "funny"
)

// Recognized story themes. Every one must map to a source.
const (
	ThemeAesop        = "aesop"
	ThemePanchatantra = "panchatantra"
	ThemeVikram       = "vikram"
	ThemeTenali       = "tenali"
	ThemeJataka       = "jataka"
)

// KnownMoods lists the mood enum in display order.
var KnownMoods = []string{MoodDefault, MoodCalm, MoodDramatic, MoodExcited, MoodFunny}

// KnownThemes lists the theme enum in display order.
var KnownThemes = []string{ThemeAesop, ThemePanchatantra, ThemeVikram, ThemeTenali, ThemeJataka}

// SourceKind selects how a theme's stories are scraped.
type SourceKind string

const (
	// SourceText is a plain-text collection split into stories by a title pattern.
	SourceText SourceKind = "text"
	// SourceHTMLIndex is an HTML index page whose links matching a pattern are story pages.
	SourceHTMLIndex SourceKind = "html_index"
)

// Language is one supported narration or dubbing language.
type Language struct {
	Code           string `yaml:"code" json:"code"`
	Name           string `yaml:"name" json:"name"`
	DefaultSpeaker string `yaml:"default_speaker,omitempty" json:"default_speaker,omitempty"`
}

// Theme describes where the stories of a collection come from.
type Theme struct {
	Title   string     `yaml:"title" json:"title"`
	Kind    SourceKind `yaml:"kind" json:"kind"`
	URL     string     `yaml:"url" json:"url"`
	Pattern string     `yaml:"pattern" json:"-"`
}

// Catalog is the finite set of languages, speakers, moods and themes the
// service accepts.
type Catalog struct {
	Languages []Language         `yaml:"languages"`
	Speakers  []string           `yaml:"speakers"`
	Moods     map[string]float64 `yaml:"moods"`
	Themes    map[string]Theme   `yaml:"themes"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return parse(embeddedCatalog, "embedded catalog")
}

// Load reads the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parse(data, path)
}

func parse(data []byte, origin string) (*Catalog, error) {
	var cat Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cat); err != nil {
		return nil, fmt.Errorf("parse %s: %w", origin, err)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", origin, err)
	}
	return &cat, nil
}

// Validate checks the catalog exhaustively against the recognized enums so a
// missing mapping fails at startup instead of mid-job.
func (c *Catalog) Validate() error {
	var problems []error

	if len(c.Languages) == 0 {
		problems = append(problems, errors.New("no languages defined"))
	}
	seen := make(map[string]struct{}, len(c.Languages))
	for _, lang := range c.Languages {
		if _, dup := seen[lang.Code]; dup {
			problems = append(problems, fmt.Errorf("language %q listed twice", lang.Code))
		}
		seen[lang.Code] = struct{}{}
		if err := checkLanguageCode(lang.Code); err != nil {
			problems = append(problems, err)
		}
		if strings.TrimSpace(lang.Name) == "" {
			problems = append(problems, fmt.Errorf("language %q has no name", lang.Code))
		}
		if lang.DefaultSpeaker != "" && !slices.Contains(c.Speakers, lang.DefaultSpeaker) {
			problems = append(problems, fmt.Errorf("language %q default speaker %q is not a known speaker", lang.Code, lang.DefaultSpeaker))
		}
	}
	if len(c.Speakers) == 0 {
		problems = append(problems, errors.New("no speakers defined"))
	}

	for _, mood := range KnownMoods {
		pace, ok := c.Moods[mood]
		if !ok {
			problems = append(problems, fmt.Errorf("mood %q has no pace", mood))
			continue
		}
		if pace <= 0 || pace > 2 {
			problems = append(problems, fmt.Errorf("mood %q pace %.2f outside (0, 2]", mood, pace))
		}
	}
	for mood := range c.Moods {
		if !slices.Contains(KnownMoods, mood) {
			problems = append(problems, fmt.Errorf("mood %q is not recognized", mood))
		}
	}

	for _, name := range KnownThemes {
		theme, ok := c.Themes[name]
		if !ok {
			problems = append(problems, fmt.Errorf("theme %q has no source", name))
			continue
		}
		if err := theme.validate(name); err != nil {
			problems = append(problems, err)
		}
	}
	for name := range c.Themes {
		if !slices.Contains(KnownThemes, name) {
			problems = append(problems, fmt.Errorf("theme %q is not recognized", name))
		}
	}

	return errors.Join(problems...)
}

func (t Theme) validate(name string) error {
	if !strings.HasPrefix(t.URL, "http://") && !strings.HasPrefix(t.URL, "https://") {
		return fmt.Errorf("theme %q url %q must be http(s)", name, t.URL)
	}
	switch t.Kind {
	case SourceText, SourceHTMLIndex:
	default:
		return fmt.Errorf("theme %q kind %q must be text or html_index", name, t.Kind)
	}
	if _, err := regexp.Compile(t.Pattern); err != nil || t.Pattern == "" {
		return fmt.Errorf("theme %q pattern invalid: %v", name, err)
	}
	return nil
}

func checkLanguageCode(code string) error {
	if _, err := language.Parse(code); err != nil {
		// Well-formed but unregistered subtags (Sarvam's "od" for Odia) are fine.
		var unknown language.ValueError
		if errors.As(err, &unknown) {
			return nil
		}
		return fmt.Errorf("language code %q: %w", code, err)
	}
	return nil
}

// Language returns the entry for code.
func (c *Catalog) Language(code string) (Language, bool) {
	for _, lang := range c.Languages {
		if strings.EqualFold(lang.Code, code) {
			return lang, true
		}
	}
	return Language{}, false
}

// LanguageCodes lists the supported codes in catalog order.
func (c *Catalog) LanguageCodes() []string {
	codes := make([]string, 0, len(c.Languages))
	for _, lang := range c.Languages {
		codes = append(codes, lang.Code)
	}
	return codes
}

// LanguageNames maps each code to its display name.
func (c *Catalog) LanguageNames() map[string]string {
	names := make(map[string]string, len(c.Languages))
	for _, lang := range c.Languages {
		names[lang.Code] = lang.Name
	}
	return names
}

// HasSpeaker reports whether name is an available voice.
func (c *Catalog) HasSpeaker(name string) bool {
	return slices.Contains(c.Speakers, strings.ToLower(strings.TrimSpace(name)))
}

// ResolveSpeaker applies the language's default speaker when none is given.
func (c *Catalog) ResolveSpeaker(code, speaker string) (string, error) {
	lang, ok := c.Language(code)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "", "", fmt.Sprintf("unsupported language %q", code), nil)
	}
	speaker = strings.ToLower(strings.TrimSpace(speaker))
	if speaker == "" {
		if lang.DefaultSpeaker == "" {
			return "", services.Wrap(services.ErrValidation, "", "", fmt.Sprintf("speaker required for %s (no default voice)", lang.Name), nil)
		}
		return lang.DefaultSpeaker, nil
	}
	if !c.HasSpeaker(speaker) {
		return "", services.Wrap(services.ErrValidation, "", "", fmt.Sprintf("unknown speaker %q", speaker), nil)
	}
	return speaker, nil
}

// Pace returns the speech pace for mood. An empty mood means the default.
func (c *Catalog) Pace(mood string) (float64, error) {
	mood = strings.ToLower(strings.TrimSpace(mood))
	if mood == "" {
		mood = MoodDefault
	}
	pace, ok := c.Moods[mood]
	if !ok {
		return 0, services.Wrap(services.ErrValidation, "", "", fmt.Sprintf("unknown mood %q", mood), nil)
	}
	return pace, nil
}

// Theme returns the source for a theme.
func (c *Catalog) Theme(name string) (Theme, bool) {
	theme, ok := c.Themes[strings.ToLower(strings.TrimSpace(name))]
	return theme, ok
}

// ThemeNames lists configured themes alphabetically.
func (c *Catalog) ThemeNames() []string {
	names := make([]string, 0, len(c.Themes))
	for name := range c.Themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MoodNames lists the moods in display order.
func (c *Catalog) MoodNames() []string {
	return append([]string(nil), KnownMoods...)
}

// DisplayName returns a title-cased language name for filenames and tables.
func DisplayName(name string) string {
	return cases.Title(language.English).String(strings.TrimSpace(name))
}
