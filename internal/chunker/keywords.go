package chunker

import (
	"sort"
	"strings"
	"unicode"
)

// TopicKeywordCount is how many keywords are kept per chunk.
const TopicKeywordCount = 8

// stopwords are excluded from keyword extraction and density scoring.
var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "all": {}, "also": {}, "an": {},
	"and": {}, "any": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"because": {}, "been": {}, "before": {}, "but": {}, "by": {}, "can": {},
	"could": {}, "did": {}, "do": {}, "does": {}, "each": {}, "for": {},
	"from": {}, "had": {}, "has": {}, "have": {}, "he": {}, "her": {},
	"here": {}, "his": {}, "how": {}, "i": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "its": {}, "just": {}, "may": {},
	"more": {}, "most": {}, "my": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "only": {}, "or": {}, "other": {}, "our": {}, "out": {},
	"over": {}, "she": {}, "should": {}, "so": {}, "some": {}, "such": {},
	"than": {}, "that": {}, "the": {}, "their": {}, "them": {}, "then": {},
	"there": {}, "these": {}, "they": {}, "this": {}, "those": {}, "to": {},
	"under": {}, "up": {}, "was": {}, "we": {}, "were": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "while": {}, "who": {}, "will": {},
	"with": {}, "would": {}, "you": {}, "your": {},
}

// contentWords lowercases text and strips punctuation, returning the words
// that carry meaning (non-stopword, length > 1, not purely numeric or
// markup).
func contentWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	var words []string
	for _, w := range fields {
		if len(w) < 2 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		if isNumeric(w) {
			continue
		}
		words = append(words, w)
	}
	return words
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// topicKeywords returns the k highest-frequency content words. Ties break
// alphabetically so extraction is deterministic.
func topicKeywords(text string, k int) []string {
	words := contentWords(text)
	if len(words) == 0 {
		return nil
	}
	freq := make(map[string]int, len(words))
	for _, w := range words {
		freq[w]++
	}

	unique := make([]string, 0, len(freq))
	for w := range freq {
		unique = append(unique, w)
	}
	sort.Slice(unique, func(i, j int) bool {
		if freq[unique[i]] != freq[unique[j]] {
			return freq[unique[i]] > freq[unique[j]]
		}
		return unique[i] < unique[j]
	})

	if len(unique) > k {
		unique = unique[:k]
	}
	return unique
}

// semanticDensity scores lexical diversity in [0,1]: the ratio of distinct
// content-bearing words to total words. Repetitive or filler-heavy text
// scores low.
func semanticDensity(text string) float64 {
	total := len(strings.Fields(text))
	if total == 0 {
		return 0
	}
	words := contentWords(text)
	distinct := make(map[string]struct{}, len(words))
	for _, w := range words {
		distinct[w] = struct{}{}
	}
	density := float64(len(distinct)) / float64(total)
	if density > 1 {
		density = 1
	}
	return density
}
