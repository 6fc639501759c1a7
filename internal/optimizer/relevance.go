package optimizer

import (
	"strings"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

// neutralScore is every section's score when there is no query.
const neutralScore = 0.5

const (
	directMatch     = 1.0
	partialMatch    = 0.5
	headingBoost    = 1.5
	codeBoost       = 2.0
	minPartialMatch = 3
)

var codeQueryWords = []string{"code", "function", "implement"}

// SectionScore is the relevance of one content element.
type SectionScore struct {
	Index int                `json:"index"`
	Type  models.ElementKind `json:"type"`
	Score float64            `json:"score"`
}

// Relevance is the page-level relevance breakdown for a query.
type Relevance struct {
	Overall   float64        `json:"overall"`
	Metadata  float64        `json:"metadata"`
	KeyPoints float64        `json:"keyPoints"`
	Sections  []SectionScore `json:"sections"`
}

// queryTokens are the query's keywords, or all its tokens when every word
// is a stopword.
func queryTokens(query string) []string {
	if kw := textutil.Keywords(query, 2); len(kw) > 0 {
		return kw
	}
	return textutil.Tokenize(query)
}

// Relevance scores every element of page against query.
func (o *Optimizer) Relevance(page models.PageAnalysis, query string) Relevance {
	elements := page.MainContent.Elements
	rel := Relevance{Sections: make([]SectionScore, len(elements))}

	qt := queryTokens(query)
	wantsCode := false
	for _, t := range qt {
		for _, w := range codeQueryWords {
			if t == w {
				wantsCode = true
			}
		}
	}

	sum := 0.0
	for i, el := range elements {
		score := neutralScore
		if len(qt) > 0 {
			score = elementScore(el, qt, wantsCode)
		}
		rel.Sections[i] = SectionScore{Index: i, Type: el.Kind, Score: score}
		sum += score
	}

	if len(qt) > 0 {
		rel.Metadata = metadataScore(page.Metadata, query)
		rel.KeyPoints = keyPointScore(page.KeyPoints, query)
	}

	mean := 0.0
	if len(elements) > 0 {
		mean = sum / float64(len(elements))
	}
	rel.Overall = textutil.Clamp01(o.weights.MainContent*mean +
		o.weights.Metadata*rel.Metadata +
		o.weights.KeyPoints*rel.KeyPoints)
	return rel
}

func elementScore(el models.Element, qt []string, wantsCode bool) float64 {
	text := strings.ToLower(el.PlainText())
	words := textutil.Set(textutil.Tokenize(text))

	score := 0.0
	for _, t := range qt {
		if _, ok := words[t]; ok {
			score += directMatch
		} else if len(t) >= minPartialMatch && strings.Contains(text, t) {
			score += partialMatch
		}
	}

	switch el.Kind {
	case models.ElementHeading:
		score *= headingBoost
	case models.ElementCode:
		if wantsCode {
			score *= codeBoost
		}
	case models.ElementParagraph, models.ElementList, models.ElementTable:
	}
	return textutil.Clamp01(score / float64(len(qt)))
}

// metadataScore weights title overlap twice against description and keywords.
func metadataScore(md models.Metadata, query string) float64 {
	title := textutil.OverlapRatio(query, md.Title)
	desc := textutil.OverlapRatio(query, md.Description)
	kw := textutil.OverlapRatio(query, strings.Join(md.Keywords, " "))
	return textutil.Clamp01((2*title + desc + kw) / 4)
}

func keyPointScore(points []string, query string) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += textutil.OverlapRatio(query, p)
	}
	return textutil.Clamp01(sum / float64(len(points)))
}
