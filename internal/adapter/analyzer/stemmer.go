package analyzer

import "strings"

// LightStemmer strips the common English inflections (plurals, -ed, -ing,
// -ly) so that "covers", "covered" and "covering" share one term. It only
// touches ASCII words.
type LightStemmer struct{}

func NewLightStemmer() *LightStemmer {
	return &LightStemmer{}
}

// Stem returns the stem of a lowercase word.
func (s *LightStemmer) Stem(word string) string {
	if len(word) < 4 || !isASCII(word) {
		return word
	}

	word = stripPlural(word)

	switch {
	case strings.HasSuffix(word, "ing") && hasVowel(word[:len(word)-3]) && len(word)-3 >= 3:
		word = undouble(word[:len(word)-3])
	case strings.HasSuffix(word, "ed") && !strings.HasSuffix(word, "eed") && hasVowel(word[:len(word)-2]) && len(word)-2 >= 3:
		word = undouble(word[:len(word)-2])
	case strings.HasSuffix(word, "ly") && len(word)-2 >= 4:
		word = word[:len(word)-2]
	}

	if len(word) > 4 && strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "ee") {
		word = word[:len(word)-1]
	}

	return word
}

func stripPlural(word string) string {
	switch {
	case strings.HasSuffix(word, "sses"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	}
	return word
}

// undouble turns "runn" into "run" but keeps "bill", "pass" and "buzz".
func undouble(stem string) string {
	n := len(stem)
	if n < 2 || stem[n-1] != stem[n-2] {
		return stem
	}
	switch stem[n-1] {
	case 'l', 's', 'z', 'a', 'e', 'i', 'o', 'u':
		return stem
	}
	return stem[:n-1]
}

func hasVowel(s string) bool {
	return strings.ContainsAny(s, "aeiouy")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
