// Package tags extracts and normalizes hashtag-style labels from free text
// such as a parsed filename's theme field or a caption sidecar file.
package tags

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// fullWidthHash is the full-width hashtag marker (U+FF03) some clients use
// in place of ASCII '#'.
const fullWidthHash = '＃'

// ExtractTags returns the deduplicated set of normalized hashtags found in
// text, in first-seen order. The zero value (no hashtags found) is nil.
func ExtractTags(text string) []string {
	normalized := norm.NFKC.String(text)
	normalized = strings.ReplaceAll(normalized, string(fullWidthHash), "#")

	var tags []string
	seen := make(map[string]struct{})

	runes := []rune(normalized)
	i := 0
	for i < len(runes) {
		if runes[i] != '#' {
			i++
			continue
		}

		j := i + 1
		for j < len(runes) && isTagRune(runes[j]) {
			j++
		}

		raw := string(runes[i+1 : j])
		raw = strings.TrimRightFunc(raw, isTrailingPunct)

		if raw != "" {
			lower := strings.ToLower(raw)
			if _, dup := seen[lower]; !dup {
				seen[lower] = struct{}{}
				tags = append(tags, lower)
			}
		}

		i = j
	}

	return tags
}

// isTagRune reports whether r may appear inside a hashtag body: letters,
// digits, and underscore. Trailing punctuation is stripped separately so a
// tag followed directly by sentence punctuation (e.g. "#sunset.") still
// extracts cleanly.
func isTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isTrailingPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', '"', '\'', '“', '”', '‘', '’':
		return true
	default:
		return false
	}
}

// StripHashtags removes whole hashtag tokens from text — each token must be
// preceded by start-of-string or whitespace — and collapses the remaining
// whitespace. It is how a grouped resource's Theme becomes its ThemeText.
func StripHashtags(text string) string {
	normalized := norm.NFKC.String(text)
	normalized = strings.ReplaceAll(normalized, string(fullWidthHash), "#")

	runes := []rune(normalized)
	var out []rune
	prevSpace := true
	i := 0
	for i < len(runes) {
		r := runes[i]
		if r == '#' && prevSpace {
			j := i + 1
			for j < len(runes) && isTagRune(runes[j]) {
				j++
			}
			i = j
			prevSpace = true
			continue
		}
		out = append(out, r)
		prevSpace = unicode.IsSpace(r)
		i++
	}

	return strings.Join(strings.Fields(string(out)), " ")
}

// Normalize applies the same NFKC + case-folding rules ExtractTags uses
// internally to a single already-extracted tag, so callers that receive a
// tag from a different source (e.g. an API request body) can normalize it
// before writing it to the index.
func Normalize(tag string) string {
	normalized := norm.NFKC.String(tag)
	normalized = strings.TrimPrefix(normalized, "#")
	normalized = strings.TrimSpace(normalized)
	return strings.ToLower(normalized)
}
