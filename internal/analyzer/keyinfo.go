package analyzer

import (
	"regexp"
	"strings"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

const (
	summaryParagraphs  = 3
	summaryMaxChars    = 300
	maxKeyPoints       = 5
	keyPointMaxChars   = 200
	minKeyPointChars   = 20
	maxTopics          = 10
	topicMinWordLength = 4
	maxEntitiesPerType = 20
)

func summarize(elements []models.Element, fallback string) string {
	var parts []string
	for _, el := range elements {
		if el.Kind != models.ElementParagraph {
			continue
		}
		parts = append(parts, el.Text)
		if len(parts) == summaryParagraphs {
			break
		}
	}
	text := strings.Join(parts, " ")
	if text == "" {
		text = fallback
	}
	return textutil.Ellipsize(text, summaryMaxChars)
}

func keyPoints(elements []models.Element) []string {
	var out []string
	for _, el := range elements {
		if el.Kind != models.ElementParagraph {
			continue
		}
		s := textutil.FirstSentence(el.Text)
		if len(s) < minKeyPointChars {
			continue
		}
		out = append(out, textutil.TruncateChars(s, keyPointMaxChars))
		if len(out) == maxKeyPoints {
			break
		}
	}
	return out
}

var (
	capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)
	urlPattern        = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	emailPattern      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	longDigits        = regexp.MustCompile(`\b\d{5,}\b`)
)

// pageEntities pattern-matches surface forms in text, deduplicated per type.
func pageEntities(text string) []models.PageEntity {
	var out []models.PageEntity
	add := func(t models.PageEntityType, re *regexp.Regexp) {
		seen := map[string]bool{}
		for _, m := range re.FindAllString(text, -1) {
			m = strings.TrimRight(m, ".,;:")
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, models.PageEntity{Type: t, Value: m})
			if len(seen) == maxEntitiesPerType {
				return
			}
		}
	}
	add(models.PageEntityPhrase, capitalizedPhrase)
	add(models.PageEntityURL, urlPattern)
	add(models.PageEntityEmail, emailPattern)
	add(models.PageEntityNumber, longDigits)
	return out
}

func topics(text string) []string {
	return textutil.Words(textutil.TopWords(text, maxTopics, topicMinWordLength))
}

// qualityScore rates a page in [0,100].
func qualityScore(textLen int, elements []models.Element, s models.Structure) float64 {
	score := 0.0
	if textLen >= 500 {
		score += 20
	}
	if textLen >= 1000 {
		score += 10
	}
	if len(elements) > 3 {
		score += 15
	}
	if s.Headings > 2 {
		score += 10
	}
	if s.Paragraphs > 3 {
		score += 10
	}
	if s.Images > 0 {
		score += 5
	}
	if textLen > 0 && float64(s.Links)/(float64(textLen)/100) > 5 {
		score -= 10
	}
	return textutil.Clamp(score, 0, 100)
}
