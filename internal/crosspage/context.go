package crosspage

import (
	"fmt"
	"sort"

	"github.com/raphaelgruber/pagewise/internal/models"
)

const (
	defaultMaxRelated = 3
	maxThemes         = 5
)

// ContextOptions tunes Context.
type ContextOptions struct {
	MaxRelated     int  // 0 means 3
	IncludeJourney bool
}

// RelatedPage is a page connected to the current one.
type RelatedPage struct {
	PageID   string                `json:"pageId"`
	URL      string                `json:"url"`
	Title    string                `json:"title"`
	Kind     models.ConnectionKind `json:"connectionType"`
	Strength float64               `json:"strength"`
	Topics   []string              `json:"topics,omitempty"`
}

// Synthesis summarizes what the session pages have in common.
type Synthesis struct {
	Themes      []string `json:"themes"`
	Insights    []string `json:"insights"`
	Pattern     string   `json:"pattern"`
	Suggestions []string `json:"suggestions"`
}

// Context is the cross-page view from one page.
type Context struct {
	Current   *PageContext            `json:"currentPage,omitempty"`
	Related   []RelatedPage           `json:"relatedPages"`
	Journey   []JourneyStep           `json:"journey,omitempty"`
	Research  *models.ResearchSession `json:"researchSession,omitempty"`
	Synthesis Synthesis               `json:"synthesis"`
}

// Context returns the current page, its strongest related pages, the
// journey when requested, the active research session and a synthesis.
// An empty id means the most recently added page.
func (c *CrossPage) Context(currentPageID string, opts ContextOptions) Context {
	if currentPageID == "" {
		currentPageID = c.session.CurrentPageID
	}
	limit := opts.MaxRelated
	if limit <= 0 {
		limit = defaultMaxRelated
	}

	var out Context
	if p, ok := c.pages[currentPageID]; ok {
		cp := *p
		out.Current = &cp

		conns := append([]models.Connection(nil), p.Connections...)
		models.SortConnections(conns)
		for _, conn := range conns {
			if len(out.Related) >= limit {
				break
			}
			other, ok := c.pages[conn.Target]
			if !ok {
				continue
			}
			out.Related = append(out.Related, RelatedPage{
				PageID:   other.PageID,
				URL:      other.URL,
				Title:    other.Title,
				Kind:     conn.Kind,
				Strength: conn.Strength,
				Topics:   other.Topics,
			})
		}
	}
	if opts.IncludeJourney {
		out.Journey = append([]JourneyStep(nil), c.session.Journey...)
	}
	if s, ok := c.ActiveResearch(); ok {
		out.Research = &s
	}
	out.Synthesis = c.synthesize(out.Related, out.Research)
	return out
}

// synthesize derives themes, insights and suggestions from the graph.
func (c *CrossPage) synthesize(related []RelatedPage, research *models.ResearchSession) Synthesis {
	s := Synthesis{
		Themes:      c.commonTopics(maxThemes),
		Insights:    []string{},
		Suggestions: []string{},
	}
	s.Pattern = c.pattern()

	if len(related) > 1 {
		s.Insights = append(s.Insights, fmt.Sprintf("Multiple related pages found (%d)", len(related)))
	}
	if len(s.Themes) > 0 {
		s.Insights = append(s.Insights, "Recurring theme: "+s.Themes[0])
	}
	s.Insights = append(s.Insights, "Browsing pattern: "+s.Pattern)

	switch {
	case research != nil:
		s.Suggestions = append(s.Suggestions,
			"Add findings to the research session",
			fmt.Sprintf("Review the %d pages collected for %q", len(research.Pages), research.Name))
	case len(related) > 1:
		s.Suggestions = append(s.Suggestions, "Start a research session to organize related pages")
	case len(related) == 0:
		s.Suggestions = append(s.Suggestions, "Explore related pages on this topic")
	default:
		s.Suggestions = append(s.Suggestions, "Compare this page with the related page")
	}
	return s
}

// commonTopics returns topics appearing on at least two pages, most
// widespread first.
func (c *CrossPage) commonTopics(n int) []string {
	counts := make(map[string]int)
	for _, p := range c.pages {
		for _, t := range p.Topics {
			counts[t]++
		}
	}
	var out []string
	for _, t := range sortedKeys(counts) {
		if counts[t] >= 2 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return counts[out[i]] > counts[out[j]] })
	if len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// pattern names the dominant browsing behaviour of the journey.
func (c *CrossPage) pattern() string {
	j := c.session.Journey
	if len(j) == 0 {
		return "idle"
	}
	counts := make(map[Action]int)
	for _, step := range j {
		counts[step.Action]++
	}

	switch {
	case counts[ActionSearch]*2 > len(j):
		return "searching"
	case counts[ActionCompare] >= 2:
		return "comparison shopping"
	case counts[ActionReference]*2 > len(j):
		return "reference lookup"
	case counts[ActionRead]*2 > len(j):
		return "deep reading"
	case len(c.domains) >= 3:
		return "broad exploration"
	default:
		return "focused browsing"
	}
}
