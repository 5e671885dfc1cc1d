package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// isBidiMark reports whether r is one of the directional formatting marks
// editors like to sprinkle in front of RTL lines.
func isBidiMark(r rune) bool {
	return r == '\u200E' || r == '\u200F' || (r >= '\u202A' && r <= '\u202E')
}

// trimBidi removes leading bidi marks and whitespace in any interleaving.
func trimBidi(s string) string {
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return isBidiMark(r) || unicode.IsSpace(r)
	})
}

// IsQuestionLine reports whether line starts a new question: optional bidi
// marks or leading spaces, one or more digits, a period, at least one
// whitespace character, then anything.
func IsQuestionLine(line string) bool {
	_, ok := splitOrdinal(line)
	return ok
}

// splitOrdinal returns the text after "N.<space>" when line is a question line.
func splitOrdinal(line string) (string, bool) {
	s := trimBidi(line)

	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsDigit(r) {
			break
		}
		i += size
	}
	if i == 0 || i >= len(s) || s[i] != '.' {
		return "", false
	}
	i++

	if i >= len(s) {
		return "", false
	}
	if r, _ := utf8.DecodeRuneInString(s[i:]); !unicode.IsSpace(r) {
		return "", false
	}
	return s[i:], true
}

// StripOrdinal returns the canonical question text: the leading "N." and the
// whitespace around it are removed. Lines that are not question lines are
// only trimmed.
func StripOrdinal(line string) string {
	line = trimBidi(line)
	rest, ok := splitOrdinal(line)
	if !ok {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(rest)
}

// SplitLines splits raw content into physical lines, accepting \n, \r\n and
// bare \r line endings.
func SplitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.Split(content, "\n")
}

// Normalize drops blank lines, trims each remaining line and inserts the
// synthetic open-question marker after every question that has no content
// line of its own (followed directly by another question, or last in the
// document).
func Normalize(lines []string) []string {
	cleaned := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimRightFunc(trimBidi(l), unicode.IsSpace)
		if l == "" {
			continue
		}
		cleaned = append(cleaned, l)
	}

	out := make([]string, 0, len(cleaned)+1)
	for i, l := range cleaned {
		out = append(out, l)
		if !IsQuestionLine(l) {
			continue
		}
		if i == len(cleaned)-1 || IsQuestionLine(cleaned[i+1]) {
			out = append(out, SyntheticMarker)
		}
	}
	return out
}
