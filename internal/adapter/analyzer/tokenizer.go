package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into lowercase terms for the lexical index, with
// optional stemming and stopword removal.
type Tokenizer struct {
	stemmer   *LightStemmer
	stopwords map[string]struct{}
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer(useStemming bool) *Tokenizer {
	var stemmer *LightStemmer
	if useStemming {
		stemmer = NewLightStemmer()
	}
	return &Tokenizer{
		stemmer:   stemmer,
		stopwords: defaultStopwords(),
	}
}

// Tokenize splits text into terms. Single characters and stopwords are
// dropped; numbers are kept so that "30 days" and "clause 4" stay searchable.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 && !isNumber(word) {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.stemmer != nil {
			word = t.stemmer.Stem(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// splitWords splits text on anything that is not a letter or digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isNumber(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return word != ""
}

// defaultStopwords returns a set of common English stopwords.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"can", "do", "does", "did", "been", "being", "would",
		"could", "should", "may", "might", "which",
		"who", "whom", "what", "when", "where", "why", "how", "all",
		"each", "both", "more", "most", "other",
		"some", "such", "than", "too", "very", "just", "also",
		"there", "these", "those", "into", "about", "any",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
