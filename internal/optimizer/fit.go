package optimizer

import (
	"sort"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

const (
	minSectionScore   = 0.1
	headingCarryover  = 0.7
	budgetFill        = 0.9
	minTruncateSlack  = 100
	keyPointShare     = 0.2
	elementSeparation = "\n\n"
)

// Candidate is an element selected for fitting, with its priority score.
type Candidate struct {
	Index   int            `json:"index"`
	Element models.Element `json:"element"`
	Score   float64        `json:"score"`
}

// Prioritize keeps sections scoring at least 0.1 and pulls in the heading
// directly above each kept section at 0.7 of its score. The result is in
// document order. When no section qualifies every element is kept at its
// own score so the page still contributes content.
func (o *Optimizer) Prioritize(page models.PageAnalysis, rel Relevance) []Candidate {
	els := page.MainContent.Elements
	scores := make(map[int]float64)
	raise := func(i int, s float64) {
		if cur, ok := scores[i]; !ok || s > cur {
			scores[i] = s
		}
	}

	for _, s := range rel.Sections {
		if s.Index < 0 || s.Index >= len(els) || s.Score < minSectionScore {
			continue
		}
		raise(s.Index, s.Score)
		if els[s.Index].Kind == models.ElementHeading {
			continue
		}
		if h := precedingHeading(els, s.Index); h >= 0 {
			raise(h, headingCarryover*s.Score)
		}
	}

	if len(scores) == 0 {
		for _, s := range rel.Sections {
			if s.Index >= 0 && s.Index < len(els) {
				scores[s.Index] = s.Score
			}
		}
	}

	out := make([]Candidate, 0, len(scores))
	for i, s := range scores {
		out = append(out, Candidate{Index: i, Element: els[i], Score: s})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

func precedingHeading(els []models.Element, i int) int {
	for j := i - 1; j >= 0; j-- {
		if els[j].Kind == models.ElementHeading {
			return j
		}
	}
	return -1
}

// Fitted is the budgeted selection ready to render.
type Fitted struct {
	Summary   string           `json:"summary"`
	KeyPoints []string         `json:"keyPoints,omitempty"`
	Elements  []models.Element `json:"elements"`
	Indexes   []int            `json:"indexes"`
	Tokens    int              `json:"tokens"`
	Truncated bool             `json:"truncated"`
}

// Fit admits the summary unconditionally, then key points and elements in
// priority order while the running estimate stays within 0.9 of budget.
// One element may be cut to the remaining space when at least 100
// characters are left for it.
func (o *Optimizer) Fit(page models.PageAnalysis, candidates []Candidate, budget int, query string) Fitted {
	limit := int(budgetFill * float64(budget))
	f := Fitted{Summary: page.Summary}

	used := textutil.EstimateTokens(renderHeader(page.Metadata, page.ContentType, query)) +
		textutil.EstimateTokens(renderSummary(page.Summary))

	kpLimit := int(keyPointShare * float64(limit))
	kpUsed := textutil.EstimateTokens(keyPointsHeader)
	for _, kp := range page.KeyPoints {
		cost := textutil.EstimateTokens(renderKeyPoint(kp))
		if kpUsed+cost > kpLimit || used+kpUsed+cost > limit {
			break
		}
		f.KeyPoints = append(f.KeyPoints, kp)
		kpUsed += cost
	}
	if len(f.KeyPoints) > 0 {
		used += kpUsed
	}
	used += textutil.EstimateTokens(contentHeader)

	order := make([]Candidate, len(candidates))
	copy(order, candidates)
	sort.SliceStable(order, func(a, b int) bool {
		if order[a].Score != order[b].Score {
			return order[a].Score > order[b].Score
		}
		return order[a].Index < order[b].Index
	})

	var taken []Candidate
	for _, c := range order {
		cost := elementCost(c.Element)
		if used+cost <= limit {
			taken = append(taken, c)
			used += cost
			continue
		}
		if f.Truncated {
			continue
		}
		slack := (limit-used)*textutil.CharsPerToken - len(elementSeparation) - renderOverhead(c.Element)
		if slack < minTruncateSlack {
			continue
		}
		el, ok := truncateElement(c.Element, slack)
		if !ok {
			continue
		}
		if cost := elementCost(el); used+cost <= limit {
			c.Element = el
			taken = append(taken, c)
			used += cost
			f.Truncated = true
		}
	}

	sort.Slice(taken, func(a, b int) bool { return taken[a].Index < taken[b].Index })
	for _, c := range taken {
		f.Elements = append(f.Elements, c.Element)
		f.Indexes = append(f.Indexes, c.Index)
	}
	f.Tokens = used
	return f
}

func elementCost(el models.Element) int {
	return textutil.EstimateTokens(renderElement(el) + elementSeparation)
}

// renderOverhead is the number of characters an element's rendering adds
// around its text.
func renderOverhead(el models.Element) int {
	switch el.Kind {
	case models.ElementHeading:
		return len(headingPrefix)
	case models.ElementCode:
		return len(renderElement(models.Code(el.Language, "")))
	case models.ElementList:
		return len(bulletPrefix) * len(el.Items)
	case models.ElementParagraph, models.ElementTable:
		return 0
	default:
		return 0
	}
}

// truncateElement cuts el's text to at most chars characters. Tables are
// rendered as a fixed placeholder and cannot be cut.
func truncateElement(el models.Element, chars int) (models.Element, bool) {
	out := el
	out.Truncated = true
	switch el.Kind {
	case models.ElementHeading, models.ElementParagraph:
		out.Text = textutil.Ellipsize(el.Text, chars-3)
	case models.ElementCode:
		out.Content = textutil.TruncateChars(el.Content, chars)
	case models.ElementList:
		out.Items = nil
		remaining := chars
		for _, item := range el.Items {
			if remaining <= 0 {
				break
			}
			if len(item)+1 > remaining {
				item = textutil.Ellipsize(item, remaining-4)
			}
			out.Items = append(out.Items, item)
			remaining -= len(item) + 1
		}
	case models.ElementTable:
		return el, false
	default:
		return el, false
	}
	return out, true
}
