// Package parser decodes the TIMESTAMP-TYPE-AUTHOR-THEME_SEQ filename
// grammar used by indexed media files into structured fields.
package parser

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// timestampLen is the fixed width of the literal TIMESTAMP field,
// "YYYY-MM-DD HH.MM.SS".
const timestampLen = 19

// timestampLayout is the time.Parse reference layout matching the literal
// TIMESTAMP field.
const timestampLayout = "2006-01-02 15.04.05"

// ParsedName holds the structured fields recovered from a filename that
// matches the grammar.
type ParsedName struct {
	TimeText    string // the literal 19-char "YYYY-MM-DD HH.MM.SS" substring
	Iso         string // TimeText normalized to "YYYY-MM-DDTHH:MM:SS"
	TimestampMs int64  // unix milliseconds parsed from Iso
	TypeText    string
	Author      string
	Theme       string
	Seq         int
	Ext         string
}

// Parse decodes fileName against the TIMESTAMP-TYPE-AUTHOR-THEME_SEQ
// grammar. It returns false when the name does not match; callers must
// treat the file as not a media file and skip it entirely rather than
// indexing it with degraded fields.
func Parse(fileName string) (ParsedName, bool) {
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)

	if len(base) <= timestampLen || base[timestampLen] != '-' {
		return ParsedName{}, false
	}

	timeText := base[:timestampLen]
	iso, timestampMs, ok := parseTimestamp(timeText)
	if !ok {
		return ParsedName{}, false
	}

	remainder := base[timestampLen+1:]
	parts := strings.SplitN(remainder, "-", 3)
	if len(parts) != 3 {
		return ParsedName{}, false
	}

	typeText, author, themeSeq := parts[0], parts[1], parts[2]
	if typeText == "" {
		return ParsedName{}, false
	}

	theme, seq := splitThemeSeq(themeSeq)
	if theme == "" {
		return ParsedName{}, false
	}

	return ParsedName{
		TimeText:    timeText,
		Iso:         iso,
		TimestampMs: timestampMs,
		TypeText:    typeText,
		Author:      author,
		Theme:       theme,
		Seq:         seq,
		Ext:         ext,
	}, true
}

// parseTimestamp validates the literal 19-char timestamp and normalizes it
// to ISO-8601 local time by replacing the clock-field dots with colons and
// inserting a 'T' between the date and clock portions.
func parseTimestamp(timeText string) (iso string, ms int64, ok bool) {
	t, err := time.ParseInLocation(timestampLayout, timeText, time.Local)
	if err != nil {
		return "", 0, false
	}
	iso = timeText[:10] + "T" + strings.ReplaceAll(timeText[11:], ".", ":")
	return iso, t.UnixMilli(), true
}

// splitThemeSeq lifts a trailing "_<digits>" suffix out of s as the sequence
// number. Theme text may itself contain hyphens or underscores, so only a
// strictly trailing numeric suffix counts; anything else leaves s intact
// with seq 0.
func splitThemeSeq(s string) (theme string, seq int) {
	idx := strings.LastIndex(s, "_")
	if idx < 0 {
		return s, 0
	}
	candidate := s[idx+1:]
	if candidate == "" || !isDigits(candidate) {
		return s, 0
	}
	n, err := strconv.Atoi(candidate)
	if err != nil {
		return s, 0
	}
	return s[:idx], n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
