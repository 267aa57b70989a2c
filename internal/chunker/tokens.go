package chunker

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"
)

// TokenCounter estimates the token count of a text. Counting must succeed
// for chunking to proceed; a failure aborts the whole chunk call.
type TokenCounter interface {
	Count(text string) (int, error)
}

// HeuristicCounter estimates tokens from the word count using the ~1.33
// tokens-per-word ratio for English text. Exact tokenization is not
// required for chunk sizing.
type HeuristicCounter struct{}

var errInvalidUTF8 = errors.New("text is not valid UTF-8")

// Count returns the estimated token count, or an error when the text cannot
// be tokenized.
func (HeuristicCounter) Count(text string) (int, error) {
	if !utf8.ValidString(text) {
		return 0, errInvalidUTF8
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0, nil
	}
	return int(math.Ceil(float64(words) * 1.33)), nil
}

// tailByTokens returns the trailing portion of text amounting to roughly
// targetTokens, cut at a word boundary. Returns "" when the text is not
// longer than the requested tail.
func tailByTokens(text string, targetTokens int) string {
	if targetTokens <= 0 {
		return ""
	}
	words := strings.Fields(text)
	targetWords := int(float64(targetTokens) / 1.33)
	if targetWords <= 0 || len(words) <= targetWords {
		return ""
	}
	return strings.Join(words[len(words)-targetWords:], " ")
}

// splitBySentences breaks an oversized text into parts of at most
// targetTokens each, cutting at sentence ends where possible and at word
// boundaries as a last resort.
func splitBySentences(text string, targetTokens int) []string {
	if targetTokens <= 0 {
		return []string{text}
	}
	sentences := splitSentences(text)

	var parts []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
			currentTokens = 0
		}
	}

	for _, sent := range sentences {
		sentTokens := estimateWords(sent)
		if sentTokens > targetTokens {
			// A single run-on sentence larger than the target: fall back
			// to word-boundary splitting.
			flush()
			parts = append(parts, splitByWords(sent, targetTokens)...)
			continue
		}
		if currentTokens+sentTokens > targetTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}
	flush()

	return parts
}

// splitSentences does basic sentence splitting on terminal punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n') {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func splitByWords(text string, targetTokens int) []string {
	words := strings.Fields(text)
	perPart := int(float64(targetTokens) / 1.33)
	if perPart < 1 {
		perPart = 1
	}
	var parts []string
	for start := 0; start < len(words); start += perPart {
		end := start + perPart
		if end > len(words) {
			end = len(words)
		}
		parts = append(parts, strings.Join(words[start:end], " "))
	}
	return parts
}

// estimateWords is the infallible form of the heuristic count, used on text
// already validated by the counter.
func estimateWords(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * 1.33))
}
