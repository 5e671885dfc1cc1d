package engine

import "unicode/utf8"

// Supported exam languages.
const (
	LangEnglish = "en"
	LangRussian = "ru"
	LangHebrew  = "he"
)

// scriptThreshold is the share of characters a script must reach before it
// decides the exam language.
const scriptThreshold = 0.05

func isHebrew(r rune) bool   { return r >= 0x0590 && r <= 0x05FF }
func isCyrillic(r rune) bool { return r >= 0x0400 && r <= 0x04FF }

// DetectLanguage picks the exam language from the share of Hebrew and
// Cyrillic characters in content. Hebrew wins over Cyrillic.
func DetectLanguage(content string) string {
	total := utf8.RuneCountInString(content)
	if total == 0 {
		return LangEnglish
	}

	var hebrew, cyrillic int
	for _, r := range content {
		switch {
		case isHebrew(r):
			hebrew++
		case isCyrillic(r):
			cyrillic++
		}
	}

	switch {
	case float64(hebrew)/float64(total) >= scriptThreshold:
		return LangHebrew
	case float64(cyrillic)/float64(total) >= scriptThreshold:
		return LangRussian
	default:
		return LangEnglish
	}
}

// DetectDirection returns rtl as soon as content contains a Hebrew character.
func DetectDirection(content string) Direction {
	for _, r := range content {
		if isHebrew(r) {
			return DirectionRTL
		}
	}
	return DirectionLTR
}
