package interview

import "regexp"

// Language is the reply language the agent should use for its next turn.
type Language string

const (
	LanguageEnglish Language = "EN"
	LanguageArabic  Language = "AR"
)

// englishPattern must match the entire utterance for it to count as English:
// ASCII letters, digits, whitespace and common punctuation only.
var englishPattern = regexp.MustCompile(`^[A-Za-z0-9\s.,!?'"()-]+$`)

// ClassifyReplyLanguage decides the reply language from the most recent user
// utterance only. The whole string must match the ASCII pattern to classify
// as English; any other rune anywhere (Arabic script, emoji, accented Latin)
// selects Egyptian Arabic, the regional default. Consequences worth knowing:
//
//   - the empty string is Arabic (the pattern requires at least one rune);
//   - code-mixed text such as "send me the ملف" is Arabic even though most
//     of it is English.
//
// This is a binary routing heuristic, not language identification.
func ClassifyReplyLanguage(text string) Language {
	if englishPattern.MatchString(text) {
		return LanguageEnglish
	}
	return LanguageArabic
}
