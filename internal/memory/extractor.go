package memory

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

// Extractor pulls memory candidates out of a single message text.
// Implementations must be deterministic for a given input.
type Extractor interface {
	ExtractEntities(text string) []models.Entity
	ExtractFacts(text string) []models.Fact
	ExtractPreferences(text string) []models.Preference
	ExtractQuestions(text string) []models.Question
	ExtractTopics(text string) []models.Topic
}

const (
	entityConfidence     = 0.7
	factConfidence       = 0.8
	preferenceConfidence = 0.7
	contextWindow        = 50
	messageTopics        = 5
	topicMinLen          = 4
)

var entityPatterns = []struct {
	typ models.EntityType
	re  *regexp.Regexp
}{
	{models.EntityEmail, regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{models.EntityURL, regexp.MustCompile(`https?://[^\s<>"')\]]+`)},
	{models.EntityOrganization, regexp.MustCompile(`\b[A-Z][A-Za-z&]*(?:\s[A-Z][A-Za-z&]*)*\s(?:Inc|Corp|LLC|Ltd|Company|Organization)\b`)},
	{models.EntityPerson, regexp.MustCompile(`\b[A-Z][a-z]+\s[A-Z][a-z]+\b`)},
	{models.EntityLocation, regexp.MustCompile(`\b(?:in|at|from|near|to)\s([A-Z][a-z]+(?:\s[A-Z][a-z]+)*)`)},
	{models.EntityDate, regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s\d{1,2}(?:,\s\d{4})?)\b`)},
}

var factPatterns = []struct {
	re        *regexp.Regexp
	predicate string // fixed predicate, or "" to use the matched verb
}{
	{regexp.MustCompile(`^According to ([^,]+),\s*(.+)$`), "states"},
	{regexp.MustCompile(`^([A-Z][\w\s'-]{0,60}?)\s+(means|refers to)\s+(.+)$`), ""},
	{regexp.MustCompile(`^([A-Z][\w\s'-]{0,60}?)\s+(has|have)\s+(.+)$`), ""},
	{regexp.MustCompile(`^([A-Z][\w\s'-]{0,60}?)\s+(is|are)\s+(.+)$`), ""},
}

var preferencePatterns = []struct {
	kind models.PreferenceKind
	re   *regexp.Regexp
}{
	{models.PreferenceNegative, regexp.MustCompile(`(?i)\bI\s+(?:don't|do not|dislike|hate|never want)\s*(?:like|want|need)?\s+(.+)$`)},
	{models.PreferencePositive, regexp.MustCompile(`(?i)\bI\s+(?:prefer|like|love|enjoy|want)\s+(.+)$`)},
	{models.PreferenceRequest, regexp.MustCompile(`(?i)\b(?:please|could you|can you|would you)\s+(.+)$`)},
	{models.PreferenceFrequency, regexp.MustCompile(`(?i)\bI\s+(?:always|usually|often|rarely|sometimes)\s+(.+)$`)},
}

var questionKinds = []struct {
	prefix string
	kind   models.QuestionKind
}{
	{"what", models.QuestionWhat},
	{"how", models.QuestionHow},
	{"why", models.QuestionWhy},
	{"when", models.QuestionWhen},
	{"where", models.QuestionWhere},
	{"who", models.QuestionWho},
}

var yesNoStarters = map[string]struct{}{
	"is": {}, "are": {}, "can": {}, "could": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "should": {}, "has": {}, "have": {}, "was": {}, "were": {},
}

var topicBuckets = []struct {
	name     string
	keywords []string
}{
	{"programming", []string{"code", "function", "programming", "software", "python", "javascript", "golang", "api", "algorithm", "database", "developer", "compile"}},
	{"science", []string{"research", "experiment", "theory", "science", "physics", "biology", "chemistry", "hypothesis", "neural"}},
	{"business", []string{"market", "business", "company", "revenue", "strategy", "sales", "customer", "startup"}},
}

// RegexExtractor is the default pattern-based Extractor.
type RegexExtractor struct{}

var _ Extractor = RegexExtractor{}

// ExtractEntities matches people, organizations, locations, dates, URLs and
// emails. Each match carries a context window of 50 characters either side.
func (RegexExtractor) ExtractEntities(text string) []models.Entity {
	seen := make(map[string]bool)
	var out []models.Entity
	for _, p := range entityPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if len(loc) >= 4 && loc[2] >= 0 {
				start, end = loc[2], loc[3]
			}
			value := strings.TrimRight(text[start:end], ".,;:")
			key := models.EntityKey(p.typ, value)
			if value == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, models.Entity{
				Type:        p.typ,
				Value:       value,
				Contexts:    []string{window(text, start, end)},
				Confidence:  entityConfidence,
				Occurrences: 1,
			})
		}
	}
	return out
}

// window returns text around [start, end), widened to rune boundaries.
func window(text string, start, end int) string {
	lo := max(0, start-contextWindow)
	hi := min(len(text), end+contextWindow)
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return strings.TrimSpace(text[lo:hi])
}

// ExtractFacts splits text into sentences and matches the declarative
// templates "X is/are Y", "X has/have Y", "X means/refers to Y" and
// "According to X, Y".
func (RegexExtractor) ExtractFacts(text string) []models.Fact {
	var out []models.Fact
	for _, s := range textutil.SplitSentences(text) {
		s = trimSentence(s)
		if strings.HasSuffix(s, "?") {
			continue
		}
		if f, ok := matchFact(s); ok {
			out = append(out, f)
		}
	}
	return out
}

// matchFact picks the template whose verb appears earliest, so "X is a Y
// that has Z" splits at "is".
func matchFact(s string) (models.Fact, bool) {
	var best models.Fact
	found := false
	for _, p := range factPatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		f := models.Fact{Confidence: factConfidence, Occurrences: 1, Source: s}
		if p.predicate != "" {
			f.Subject, f.Predicate, f.Object = m[1], p.predicate, m[2]
		} else {
			f.Subject, f.Predicate, f.Object = m[1], m[2], m[3]
		}
		f.Subject = strings.TrimSpace(f.Subject)
		f.Object = strings.TrimSpace(f.Object)
		if f.Subject == "" || f.Object == "" {
			continue
		}
		if p.predicate != "" {
			return f, true
		}
		if !found || len(f.Subject) < len(best.Subject) {
			best, found = f, true
		}
	}
	return best, found
}

// ExtractPreferences matches negative, positive, request and frequency
// templates; the first matching template wins per sentence.
func (RegexExtractor) ExtractPreferences(text string) []models.Preference {
	var out []models.Preference
	for _, s := range textutil.SplitSentences(text) {
		s = trimSentence(s)
		for _, p := range preferencePatterns {
			m := p.re.FindStringSubmatch(s)
			if m == nil {
				continue
			}
			if v := strings.TrimSpace(m[1]); v != "" {
				out = append(out, models.Preference{
					Kind:        p.kind,
					Value:       v,
					Occurrences: 1,
					Confidence:  preferenceConfidence,
				})
			}
			break
		}
	}
	return out
}

// ExtractQuestions returns every ?-terminated sentence, classified by its
// leading word.
func (RegexExtractor) ExtractQuestions(text string) []models.Question {
	var out []models.Question
	for _, s := range textutil.SplitSentences(text) {
		if !strings.HasSuffix(s, "?") {
			continue
		}
		out = append(out, models.Question{Text: s, Kind: ClassifyQuestion(s)})
	}
	return out
}

// ClassifyQuestion returns the question kind implied by the leading word.
func ClassifyQuestion(q string) models.QuestionKind {
	words := textutil.Tokenize(q)
	if len(words) == 0 {
		return models.QuestionGeneral
	}
	for _, k := range questionKinds {
		if words[0] == k.prefix {
			return k.kind
		}
	}
	if _, ok := yesNoStarters[words[0]]; ok {
		return models.QuestionYesNo
	}
	return models.QuestionGeneral
}

// ExtractTopics returns the five most frequent words longer than four
// characters plus any keyword buckets the text hits. TotalFrequency holds
// the count within text.
func (RegexExtractor) ExtractTopics(text string) []models.Topic {
	var out []models.Topic
	seen := make(map[string]bool)
	for _, wc := range textutil.TopWords(text, messageTopics, topicMinLen) {
		seen[wc.Word] = true
		out = append(out, models.Topic{Value: wc.Word, TotalFrequency: wc.Count, Occurrences: 1})
	}

	words := textutil.Tokenize(text)
	for _, b := range topicBuckets {
		hits := 0
		kw := textutil.Set(b.keywords)
		for _, w := range words {
			if _, ok := kw[w]; ok {
				hits++
			}
		}
		if hits > 0 && !seen[b.name] {
			seen[b.name] = true
			out = append(out, models.Topic{Value: b.name, TotalFrequency: hits, Occurrences: 1})
		}
	}
	return out
}

func trimSentence(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".!"))
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
