package cache

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxQuestionRunes bounds the normalized question inside a key.
const maxQuestionRunes = 200

// Fingerprint derives the cache key for a question scoped to a subject and
// chapter. Keys match the ones already stored in shared answer_cache tables,
// so the normalization steps and their order must not change.
func Fingerprint(question, subjectID, chapterID string) string {
	return subjectID + "_" + chapterID + "_" + NormalizeQuestion(question)
}

// NormalizeQuestion lower-cases q, trims it, collapses whitespace runs to one
// space, then drops every rune that is not an ASCII word character,
// whitespace or in the Bengali-Assamese block, and truncates to 200 runes.
// Stripping comes after collapsing, so "a - b" keeps two spaces.
func NormalizeQuestion(q string) string {
	q = strings.TrimSpace(strings.ToLower(q))
	q = collapseSpace(q)
	q = strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return -1
	}, q)

	if utf8.RuneCountInString(q) > maxQuestionRunes {
		q = string([]rune(q)[:maxQuestionRunes])
	}
	return q
}

func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func keepRune(r rune) bool {
	switch {
	case r == '_':
		return true
	case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
		return true
	case unicode.IsSpace(r):
		return true
	case r >= 0x0980 && r <= 0x09FF:
		return true
	}
	return false
}
