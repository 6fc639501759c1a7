// Package textutil provides the tokenizer and scoring primitives shared by the
// analyzer, optimizer, memory and cross-page packages.
package textutil

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// CharsPerToken is the surrogate ratio used for token estimation.
const CharsPerToken = 4

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all also am an and any are as at
		be because been before being below between both but by can could did do does doing down during
		each few for from further had has have having he her here hers herself him himself his how i if
		in into is it its itself just me more most my myself no nor not now of off on once only or other
		our ours ourselves out over own same she should so some such than that the their theirs them
		themselves then there these they this those through to too under until up very was we were what
		when where which while who whom why will with would you your yours yourself yourselves
		also like shall might must much many`) {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether w (lowercase) is filtered from topic extraction.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Tokenize lowercases text and splits it into alphanumeric words.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords tokenizes text and drops stopwords and words shorter than minLen.
func Keywords(text string, minLen int) []string {
	var out []string
	for _, w := range Tokenize(text) {
		if len(w) < minLen || IsStopword(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// WordCount is a word and its frequency.
type WordCount struct {
	Word  string
	Count int
}

// WordFrequencies counts words strictly longer than minLen that are not stopwords.
func WordFrequencies(text string, minLen int) map[string]int {
	freq := make(map[string]int)
	for _, w := range Tokenize(text) {
		if len(w) <= minLen || IsStopword(w) {
			continue
		}
		freq[w]++
	}
	return freq
}

// TopWords returns the n most frequent words longer than minLen.
// Ties are broken alphabetically so output is deterministic.
func TopWords(text string, n, minLen int) []WordCount {
	freq := WordFrequencies(text, minLen)
	counts := make([]WordCount, 0, len(freq))
	for w, c := range freq {
		counts = append(counts, WordCount{Word: w, Count: c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Word < counts[j].Word
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// Words returns the word column of counts.
func Words(counts []WordCount) []string {
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Word
	}
	return out
}

// Set builds a lookup set from words.
func Set(words []string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// SortedUnique returns the distinct words in ascending order.
func SortedUnique(words []string) []string {
	s := Set(words)
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both are empty.
func Jaccard(a, b []string) float64 {
	sa, sb := Set(a), Set(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := 0
	for w := range sa {
		if _, ok := sb[w]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// Intersect returns the words present in both a and b, sorted.
func Intersect(a, b []string) []string {
	sb := Set(b)
	var out []string
	for w := range Set(a) {
		if _, ok := sb[w]; ok {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

// OverlapRatio returns the fraction of query tokens that occur in text.
func OverlapRatio(query, text string) float64 {
	qt := Tokenize(query)
	if len(qt) == 0 {
		return 0
	}
	tt := Set(Tokenize(text))
	hits := 0
	for _, w := range qt {
		if _, ok := tt[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(qt))
}

// EstimateTokens returns ceil(chars/4).
func EstimateTokens(s string) int {
	return EstimateTokensForChars(len(s))
}

// EstimateTokensForChars returns ceil(n/4).
func EstimateTokensForChars(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + CharsPerToken - 1) / CharsPerToken
}

// TruncateChars clips s to at most n bytes without splitting a UTF-8 rune.
func TruncateChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Ellipsize clips s to n bytes and appends "..." when it was clipped.
func Ellipsize(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(TruncateChars(s, n)) + "..."
}

// NormalizeSpace collapses runs of whitespace into single spaces.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitSentences splits text on sentence terminators followed by whitespace.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				// initials like "J."
				if r == '.' && i > 1 && unicode.IsUpper(runes[i-1]) && !unicode.IsLetter(runes[i-2]) {
					continue
				}
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// FirstSentence returns the first sentence of text, or text itself.
func FirstSentence(text string) string {
	s := SplitSentences(text)
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}
