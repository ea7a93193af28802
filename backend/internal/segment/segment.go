// Package segment splits raw text into TTS-safe chunks. Splitting happens at
// sentence boundaries when possible, degrading to clause, comma and finally
// word boundaries for pathologically long sentences. Chunks never break a
// word apart.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MeasureFunc reports the size of a piece of text against a Limit budget.
type MeasureFunc func(string) int

// Limit is a size budget for one chunk. Max is in units of Measure.
type Limit struct {
	Max     int
	Measure MeasureFunc
}

// Chars returns a character-count limit.
func Chars(max int) Limit {
	return Limit{Max: max, Measure: RuneCount}
}

// Tokens returns a token-count limit using the chars/4 estimate. There is no
// exact tokenizer here; callers with a real one can supply their own Measure.
func Tokens(max int) Limit {
	return Limit{Max: max, Measure: EstimateTokens}
}

func RuneCount(s string) int {
	return utf8.RuneCountInString(s)
}

// EstimateTokens approximates one token per four characters, rounded up.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// Normalize collapses all whitespace runs to single spaces and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Segment splits text into chunks each measuring at most limit.Max. Joining
// the returned chunks with single spaces reproduces the normalized input
// exactly. A single word that alone exceeds the limit is emitted as its own
// chunk; the limit is soft when further splitting is impossible.
//
// Empty or whitespace-only input yields nil.
func Segment(text string, limit Limit) []string {
	if limit.Measure == nil {
		limit.Measure = RuneCount
	}
	if limit.Max <= 0 {
		limit.Max = 1
	}

	norm := Normalize(text)
	if norm == "" {
		return nil
	}

	var chunks []string
	var cur string

	flush := func() {
		if cur != "" {
			chunks = append(chunks, cur)
			cur = ""
		}
	}
	pack := func(piece string) {
		if cur == "" {
			cur = piece
			return
		}
		joined := cur + " " + piece
		if limit.Measure(joined) > limit.Max {
			flush()
			cur = piece
		} else {
			cur = joined
		}
	}

	for _, sentence := range SplitSentences(norm) {
		if limit.Measure(sentence) > limit.Max {
			for _, piece := range breakSentence(sentence, limit) {
				pack(piece)
			}
			continue
		}
		pack(sentence)
	}
	flush()

	return chunks
}

// SplitSentences splits normalized text on sentence-ending punctuation
// followed by a space and a capital letter or quote. This is a heuristic, not
// a sentence tokenizer: abbreviations like "Dr. Smith" mis-split. That is an
// accepted limitation; TTS pacing tolerates an extra boundary.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && isClosingQuote(runes[j]) {
			j++
		}
		if j >= len(runes) || runes[j] != ' ' {
			continue
		}
		k := j + 1
		if k >= len(runes) {
			continue
		}
		if !unicode.IsUpper(runes[k]) && !isOpeningQuote(runes[k]) {
			continue
		}
		out = append(out, string(runes[start:j]))
		start = k
		i = k - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// breakSentence degrades an oversized sentence: clause punctuation first,
// then commas, then word boundaries. Pieces are returned in order and each
// fits the limit except indivisible words.
func breakSentence(sentence string, limit Limit) []string {
	var pieces []string
	for _, clause := range splitAfter(sentence, isClauseBreak) {
		if limit.Measure(clause) <= limit.Max {
			pieces = append(pieces, clause)
			continue
		}
		for _, part := range splitAfter(clause, func(r rune) bool { return r == ',' }) {
			if limit.Measure(part) <= limit.Max {
				pieces = append(pieces, part)
				continue
			}
			pieces = append(pieces, strings.Fields(part)...)
		}
	}
	return pieces
}

// splitAfter splits s after every break rune that is followed by a space. The
// break rune stays with the preceding piece and the space is dropped, so
// rejoining pieces with single spaces is lossless.
func splitAfter(s string, isBreak func(rune) bool) []string {
	runes := []rune(s)
	var parts []string
	start := 0

	for i := 0; i < len(runes)-1; i++ {
		if isBreak(runes[i]) && runes[i+1] == ' ' {
			parts = append(parts, string(runes[start:i+1]))
			start = i + 2
			i++
		}
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

func isClauseBreak(r rune) bool {
	return r == ';' || r == ':' || r == '—' || r == '–'
}

func isClosingQuote(r rune) bool {
	return r == '"' || r == '\'' || r == '”' || r == '’' || r == ')'
}

func isOpeningQuote(r rune) bool {
	return r == '"' || r == '\'' || r == '“' || r == '‘'
}
