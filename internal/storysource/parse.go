package storysource

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	minBodyRunes   = 100
	maxBodyRunes   = 3000
	keptBodyRunes  = 2000
	pageParagraphs = 8
)

// Entry is one parsed story.
type Entry struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// SplitText cuts a plain-text collection into stories. The pattern's first
// capture group is the title; the text up to the next match is the body.
// Project Gutenberg boilerplate outside the START/END markers is dropped.
func SplitText(raw string, pattern *regexp.Regexp) []Entry {
	if start := strings.Index(raw, "*** START OF"); start != -1 {
		raw = raw[start:]
	}
	if end := strings.Index(raw, "*** END OF"); end != -1 {
		raw = raw[:end]
	}

	matches := pattern.FindAllStringSubmatchIndex(raw, -1)
	var entries []Entry
	for i, m := range matches {
		if len(m) < 4 || m[2] < 0 {
			continue
		}
		bodyEnd := len(raw)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		entries = appendEntry(entries, raw[m[2]:m[3]], raw[m[1]:bodyEnd])
	}
	return entries
}

// appendEntry keeps bodies of a usable length, truncated, and lets a later
// story replace an earlier one with the same title.
func appendEntry(entries []Entry, title, body string) []Entry {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if title == "" || len(runes) < minBodyRunes || len(runes) > maxBodyRunes {
		return entries
	}
	if len(runes) > keptBodyRunes {
		body = string(runes[:keptBodyRunes])
	}
	for i := range entries {
		if entries[i].Title == title {
			entries[i].Body = body
			return entries
		}
	}
	return append(entries, Entry{Title: title, Body: body})
}

// IndexLinks returns hrefs on an index page matching pattern at their start,
// in document order and without duplicates.
func IndexLinks(page []byte, pattern *regexp.Regexp) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	var links []string
	seen := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				loc := pattern.FindStringIndex(attr.Val)
				if loc == nil || loc[0] != 0 {
					continue
				}
				if _, dup := seen[attr.Val]; !dup {
					seen[attr.Val] = struct{}{}
					links = append(links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

// pageParser turns one story page into an entry.
type pageParser struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

func newPageParser() *pageParser {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("p", "em", "i", "b", "strong", "br")
	return &pageParser{
		policy: policy,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

var emphasisMarkers = strings.NewReplacer("**", "", "*", "", "__", "", "\\", "")

// Parse reads the title from the first h3, h2 or h1 (in that preference) and
// joins the text of the first paragraphs. fallbackTitle is used when the
// page has no heading.
func (p *pageParser) Parse(page []byte, fallbackTitle string) (Entry, bool) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return Entry{}, false
	}
	title := fallbackTitle
	for _, heading := range []atom.Atom{atom.H3, atom.H2, atom.H1} {
		if n := findFirst(doc, heading); n != nil {
			if text := collapse(nodeText(n)); text != "" {
				title = text
				break
			}
		}
	}

	var paragraphs []string
	for _, n := range findAll(doc, atom.P, pageParagraphs) {
		if text := p.paragraphText(n); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	entries := appendEntry(nil, title, strings.Join(paragraphs, " "))
	if len(entries) == 0 {
		return Entry{}, false
	}
	return entries[0], true
}

// paragraphText sanitizes a paragraph's markup and renders it as plain text.
func (p *pageParser) paragraphText(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return collapse(nodeText(n))
	}
	clean := p.policy.Sanitize(buf.String())
	text, err := p.conv.ConvertString(clean)
	if err != nil || strings.TrimSpace(text) == "" {
		return collapse(nodeText(n))
	}
	return collapse(emphasisMarkers.Replace(text))
}

func findFirst(n *html.Node, want atom.Atom) *html.Node {
	if found := findAll(n, want, 1); len(found) > 0 {
		return found[0]
	}
	return nil
}

func findAll(root *html.Node, want atom.Atom, limit int) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == want {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
