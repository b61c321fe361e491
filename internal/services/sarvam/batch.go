package sarvam

import (
	"strings"
	"unicode/utf8"
)

// WordBatches groups text into space-joined batches of at most limit
// characters, breaking only between words. A single word longer than limit
// becomes its own batch.
func WordBatches(text string, limit int) []string {
	var (
		batches []string
		cur     []string
		size    int
	)
	for _, word := range strings.Fields(text) {
		n := utf8.RuneCountInString(word)
		if len(cur) > 0 && size+n > limit {
			batches = append(batches, strings.Join(cur, " "))
			cur, size = nil, 0
		}
		cur = append(cur, word)
		size += n + 1
	}
	if len(cur) > 0 {
		batches = append(batches, strings.Join(cur, " "))
	}
	return batches
}

// SentenceBatches groups sentences into batches of at most limit characters.
// The danda "।" ends a sentence like a full stop, and every sentence is
// re-terminated with ". " inside its batch. Sentences longer than limit are
// split between words.
func SentenceBatches(text string, limit int) []string {
	normalized := strings.ReplaceAll(text, "।", ".")
	var sentences []string
	for _, s := range strings.Split(normalized, ".") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if utf8.RuneCountInString(s)+2 > limit {
			sentences = append(sentences, WordBatches(s, limit-2)...)
			continue
		}
		sentences = append(sentences, s)
	}

	var (
		batches []string
		cur     strings.Builder
		size    int
	)
	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if size > 0 && size+n+2 > limit {
			batches = append(batches, strings.TrimSpace(cur.String()))
			cur.Reset()
			size = 0
		}
		cur.WriteString(s)
		cur.WriteString(". ")
		size += n + 2
	}
	if size > 0 {
		batches = append(batches, strings.TrimSpace(cur.String()))
	}
	return batches
}
