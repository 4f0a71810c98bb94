package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into lowercase word tokens, dropping stopwords and
// single-character words. With bigrams enabled, adjacent token pairs are
// appended as "a_b" so that word order contributes to local embeddings.
type Tokenizer struct {
	stopwords map[string]struct{}
	bigrams   bool
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer(bigrams bool) *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		bigrams:   bigrams,
	}
}

// Tokenize splits text into tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}

	if !t.bigrams || len(tokens) < 2 {
		return tokens
	}
	unigrams := len(tokens)
	for i := 1; i < unigrams; i++ {
		tokens = append(tokens, tokens[i-1]+"_"+tokens[i])
	}
	return tokens
}

// CountWords returns the number of words in text, stopwords included.
func (t *Tokenizer) CountWords(text string) int {
	return len(splitWords(text))
}

// splitWords splits text into words using unicode word boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// defaultStopwords returns a set of common English stopwords.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "or", "so", "we", "they", "their",
		"been", "being", "which", "who", "whom", "these", "those",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
