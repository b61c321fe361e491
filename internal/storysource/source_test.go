package storysource_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"storydub/internal/catalog"
	"storydub/internal/config"
	"storydub/internal/services"
	"storydub/internal/storysource"
)

var fableBody = strings.Repeat("A hungry fox saw some fine bunches of grapes hanging from a vine. ", 3)

func gutenbergText() string {
	var b strings.Builder
	b.WriteString("Project Gutenberg license preamble\n\n*** START OF THE PROJECT GUTENBERG EBOOK AESOP ***\n\n")
	b.WriteString("\n\nTHE FOX AND THE GRAPES\n\n" + fableBody)
	b.WriteString("\n\nTHE WOLF AND THE KID\n\n" + strings.Repeat("A kid was perched up on the top of a house. ", 4))
	b.WriteString("\n\nTHE ANT\n\nToo short.")
	b.WriteString("\n\n*** END OF THE PROJECT GUTENBERG EBOOK AESOP ***\n\nTHE LICENSE\n\n" + strings.Repeat("legal text ", 40))
	return b.String()
}

const jatakaIndex = `<html><body>
<a href="j1001.htm">The Apannaka Jataka</a>
<a href="j1002.htm">The Vannupatha Jataka</a>
<a href="j1002.htm">duplicate</a>
<a href="index.htm">Index</a>
<a href="../j2/j2001.htm">Book two</a>
</body></html>`

func jatakaPage(title string) string {
	paragraph := "<p>Once upon a time when <i>Brahmadatta</i> was reigning in Benares, the Bodhisatta was born a merchant &amp; traded widely across the land.</p>"
	return "<html><body><h1>Jataka Tales</h1><h3>" + title + "</h3>" + paragraph + paragraph + "<script>alert(1)</script></body></html>"
}

type fixture struct {
	server   *httptest.Server
	requests atomic.Int32
	cat      *catalog.Catalog
	cfg      config.StorySource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	mux := http.NewServeMux()
	mux.HandleFunc("/aesop.txt", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.Header.Get("User-Agent") != "storydub-test" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, gutenbergText())
	})
	mux.HandleFunc("/jataka/", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		switch r.URL.Path {
		case "/jataka/":
			fmt.Fprint(w, jatakaIndex)
		case "/jataka/j1001.htm":
			fmt.Fprint(w, jatakaPage("No. 1. Apannaka Jataka"))
		case "/jataka/j1002.htm":
			fmt.Fprint(w, jatakaPage("No. 2. Vannupatha Jataka"))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/broken.txt", func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	aesop := cat.Themes[catalog.ThemeAesop]
	aesop.URL = f.server.URL + "/aesop.txt"
	cat.Themes[catalog.ThemeAesop] = aesop
	jataka := cat.Themes[catalog.ThemeJataka]
	jataka.URL = f.server.URL + "/jataka/"
	cat.Themes[catalog.ThemeJataka] = jataka
	vikram := cat.Themes[catalog.ThemeVikram]
	vikram.URL = f.server.URL + "/broken.txt"
	cat.Themes[catalog.ThemeVikram] = vikram
	f.cat = cat

	f.cfg = config.StorySource{
		CacheDir:              t.TempDir(),
		CacheTTLHours:         168,
		UserAgent:             "storydub-test",
		RequestTimeoutSeconds: 5,
		MaxIndexPages:         30,
	}
	return f
}

func (f *fixture) source(opts ...storysource.Option) *storysource.Source {
	opts = append([]storysource.Option{
		storysource.WithPicker(func(int) int { return 0 }),
		storysource.WithPageRate(rate.Inf),
	}, opts...)
	return storysource.New(f.cfg, f.cat, opts...)
}

func TestFetchSplitsPlainTextCollection(t *testing.T) {
	f := newFixture(t)
	story, err := f.source().Fetch(context.Background(), "Aesop", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if story.Title != "THE FOX AND THE GRAPES" || story.Theme != "aesop" {
		t.Fatalf("unexpected story %+v", story)
	}
	if story.Body != strings.TrimSpace(fableBody) {
		t.Fatalf("unexpected body %q", story.Body)
	}
}

func TestFetchFiltersByKeyword(t *testing.T) {
	f := newFixture(t)
	src := f.source()
	story, err := src.Fetch(context.Background(), "aesop", "KID")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if story.Title != "THE WOLF AND THE KID" {
		t.Fatalf("keyword should match title, got %q", story.Title)
	}
	story, err = src.Fetch(context.Background(), "aesop", "vine")
	if err != nil || story.Title != "THE FOX AND THE GRAPES" {
		t.Fatalf("keyword should match body, got %q (%v)", story.Title, err)
	}
	_, err = src.Fetch(context.Background(), "aesop", "dragon")
	if !errors.Is(err, services.ErrNoResults) {
		t.Fatalf("expected no results, got %v", err)
	}
	if !strings.Contains(err.Error(), `no aesop story matches "dragon"`) {
		t.Fatalf("unexpected message %v", err)
	}
}

func TestFetchUsesCachedIndexUntilStale(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	clock := func() time.Time { return now }
	src := f.source(storysource.WithClock(clock))

	for range 3 {
		if _, err := src.Fetch(context.Background(), "aesop", ""); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if got := f.requests.Load(); got != 1 {
		t.Fatalf("expected one download, got %d", got)
	}

	now = now.Add(8 * 24 * time.Hour)
	if _, err := src.Fetch(context.Background(), "aesop", ""); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := f.requests.Load(); got != 2 {
		t.Fatalf("stale cache should refetch, got %d requests", got)
	}
}

func TestFetchScrapesHTMLIndex(t *testing.T) {
	f := newFixture(t)
	src := f.source(storysource.WithPicker(func(n int) int { return n - 1 }))
	story, err := src.Fetch(context.Background(), "jataka", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if story.Title != "No. 2. Vannupatha Jataka" {
		t.Fatalf("unexpected title %q", story.Title)
	}
	if strings.Contains(story.Body, "<") || strings.Contains(story.Body, "alert") || strings.Contains(story.Body, "&amp;") {
		t.Fatalf("body should be plain text, got %q", story.Body)
	}
	if !strings.Contains(story.Body, "Brahmadatta was reigning in Benares") {
		t.Fatalf("body lost paragraph text: %q", story.Body)
	}
	if got := f.requests.Load(); got != 3 {
		t.Fatalf("expected index plus two pages, got %d requests", got)
	}
}

func TestFetchHTMLIndexHonoursPageLimit(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxIndexPages = 1
	story, err := f.source().Fetch(context.Background(), "jataka", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if story.Title != "No. 1. Apannaka Jataka" {
		t.Fatalf("unexpected title %q", story.Title)
	}
	if got := f.requests.Load(); got != 2 {
		t.Fatalf("expected index plus one page, got %d requests", got)
	}
}

func TestFetchErrors(t *testing.T) {
	f := newFixture(t)
	src := f.source()

	if _, err := src.Fetch(context.Background(), "grimm", ""); !errors.Is(err, services.ErrNoResults) {
		t.Fatalf("unknown theme should be no results, got %v", err)
	}
	_, err := src.Fetch(context.Background(), "vikram", "")
	if !services.IsRetryable(err) {
		t.Fatalf("a 503 from the source should be retryable, got %v", err)
	}
}

func TestSplitTextKeepsUsableBodies(t *testing.T) {
	pattern := regexp.MustCompile(`\n\n([A-Z][A-Z ,'-]+)\n\n`)
	long := strings.Repeat("x", 2500)
	tooLong := strings.Repeat("y", 3001)
	raw := "\n\nFIRST\n\n" + long + "\n\nSECOND\n\n" + tooLong + "\n\nFIRST\n\n" + strings.Repeat("z", 150)

	entries := storysource.SplitText(raw, pattern)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Title != "FIRST" || entries[0].Body != strings.Repeat("z", 150) {
		t.Fatalf("a repeated title should replace the earlier body, got %+v", entries[0])
	}

	entries = storysource.SplitText("\n\nONLY\n\n"+long, pattern)
	if len(entries) != 1 || len([]rune(entries[0].Body)) != 2000 {
		t.Fatalf("long bodies should be truncated to 2000 chars")
	}
}

func TestIndexLinksMatchesFromStart(t *testing.T) {
	links, err := storysource.IndexLinks([]byte(jatakaIndex), regexp.MustCompile(`j1\d{3}\.htm`))
	if err != nil {
		t.Fatalf("IndexLinks: %v", err)
	}
	if len(links) != 2 || links[0] != "j1001.htm" || links[1] != "j1002.htm" {
		t.Fatalf("unexpected links %v", links)
	}
}
