// Package normalize rewrites transcript text so speech synthesis reads it
// naturally. Numerals become British English words before translation.
package normalize

import (
	"regexp"
	"strings"
)

var numberPattern = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b|\b\d+(?:\.\d+)?\b`)

var ones = []string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
	"seventeen", "eighteen", "nineteen",
}

var tens = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}

var scales = []string{"", "thousand", "million", "billion", "trillion", "quadrillion", "quintillion"}

// NumbersToWords replaces every integer or decimal in text with words.
// Thousand separators are accepted; numbers too large to name are kept.
//
//	2003  -> two thousand and three
//	150.5 -> one hundred and fifty point five
func NumbersToWords(text string) string {
	return numberPattern.ReplaceAllStringFunc(text, func(match string) string {
		words, ok := spell(strings.ReplaceAll(match, ",", ""))
		if !ok {
			return match
		}
		return words
	})
}

func spell(raw string) (string, bool) {
	whole, frac, hasFrac := strings.Cut(raw, ".")
	words, ok := cardinal(whole)
	if !ok {
		return "", false
	}
	if !hasFrac {
		return words, true
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		frac = "0"
	}
	digits := make([]string, 0, len(frac))
	for _, d := range frac {
		digits = append(digits, ones[d-'0'])
	}
	return words + " point " + strings.Join(digits, " "), true
}

// cardinal spells a string of ASCII digits.
func cardinal(digits string) (string, bool) {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return ones[0], true
	}
	groupCount := (len(digits) + 2) / 3
	if groupCount > len(scales) {
		return "", false
	}

	// Split into three-digit groups, most significant first.
	groups := make([]int, groupCount)
	head := len(digits) - (groupCount-1)*3
	for i := 0; i < groupCount; i++ {
		start := 0
		if i > 0 {
			start = head + (i-1)*3
		}
		end := head + i*3
		groups[i] = atoi(digits[start:end])
	}

	var parts []string
	last := groups[groupCount-1]
	for i, value := range groups {
		if value == 0 {
			continue
		}
		scale := scales[groupCount-1-i]
		if scale == "" {
			continue
		}
		parts = append(parts, belowThousand(value)+" "+scale)
	}
	if last == 0 {
		return strings.Join(parts, ", "), true
	}
	tail := belowThousand(last)
	switch {
	case len(parts) == 0:
		return tail, true
	case last < 100:
		return strings.Join(parts, ", ") + " and " + tail, true
	default:
		return strings.Join(parts, ", ") + ", " + tail, true
	}
}

func belowThousand(n int) string {
	hundreds, rest := n/100, n%100
	switch {
	case hundreds == 0:
		return belowHundred(rest)
	case rest == 0:
		return ones[hundreds] + " hundred"
	default:
		return ones[hundreds] + " hundred and " + belowHundred(rest)
	}
}

func belowHundred(n int) string {
	if n < 20 {
		return ones[n]
	}
	if n%10 == 0 {
		return tens[n/10]
	}
	return tens[n/10] + "-" + ones[n%10]
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
