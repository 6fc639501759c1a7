package crosspage

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

var (
	// ErrNoActiveResearch is returned by research operations that need an
	// active session.
	ErrNoActiveResearch = errors.New("no active research session")
	// ErrResearchActive is returned when starting a session while one is active.
	ErrResearchActive = errors.New("research session already active")
)

const (
	researchWindow        = 10 * time.Minute
	researchMinPages      = 3
	researchMinSimilarity = 0.5
	researchNamePrefix    = "Research: "
)

// checkResearch feeds an active session or, with auto research on, starts
// one when at least three pages from the last ten minutes share topics
// with p.
func (c *CrossPage) checkResearch(p *PageContext, now time.Time) {
	if s := c.active(); s != nil {
		if !slices.Contains(s.Pages, p.PageID) {
			s.Pages = append(s.Pages, p.PageID)
		}
		return
	}
	if !c.opts.AutoResearch {
		return
	}

	var recent []*PageContext
	for _, other := range c.orderedPages() {
		if other.PageID != p.PageID && now.Sub(other.Timestamp) <= researchWindow {
			recent = append(recent, other)
		}
	}
	if len(recent)+1 < researchMinPages {
		return
	}
	sum := 0.0
	for _, other := range recent {
		sum += textutil.Jaccard(p.Topics, other.Topics)
	}
	if sum/float64(len(recent)) <= researchMinSimilarity {
		return
	}

	topic := topTopic(append(recent, p))
	s := c.start(researchNamePrefix+topic, "", true)
	for _, other := range recent {
		s.Pages = append(s.Pages, other.PageID)
	}
	s.Pages = append(s.Pages, p.PageID)
	c.logger.Info("research session detected", "session_id", s.ID, "name", s.Name, "pages", len(s.Pages))
}

// topTopic is the topic shared by the most pages, ties broken alphabetically.
func topTopic(pages []*PageContext) string {
	counts := make(map[string]int)
	for _, p := range pages {
		for _, t := range p.Topics {
			counts[t]++
		}
	}
	best, bestN := "", 0
	for _, t := range sortedKeys(counts) {
		if counts[t] > bestN {
			best, bestN = t, counts[t]
		}
	}
	if best == "" {
		return "browsing"
	}
	return best
}

func (c *CrossPage) active() *models.ResearchSession {
	if c.session.ActiveResearchID == "" {
		return nil
	}
	return c.research[c.session.ActiveResearchID]
}

func (c *CrossPage) start(name, goal string, auto bool) *models.ResearchSession {
	s := &models.ResearchSession{
		ID:           c.newID(),
		Name:         name,
		Goal:         goal,
		Pages:        []string{},
		Findings:     []models.Finding{},
		Questions:    []string{},
		Status:       models.ResearchActive,
		StartTime:    c.now(),
		AutoDetected: auto,
	}
	c.research[s.ID] = s
	c.session.ActiveResearchID = s.ID
	return s
}

// StartResearch opens a named session seeded with the current page.
func (c *CrossPage) StartResearch(name, goal string) (models.ResearchSession, error) {
	if s := c.active(); s != nil {
		return *s, ErrResearchActive
	}
	if strings.TrimSpace(name) == "" {
		name = researchNamePrefix + topTopic(c.orderedPages())
	}
	s := c.start(name, goal, false)
	if c.session.CurrentPageID != "" {
		if _, ok := c.pages[c.session.CurrentPageID]; ok {
			s.Pages = append(s.Pages, c.session.CurrentPageID)
		}
	}
	c.logger.Info("research session started", "session_id", s.ID, "name", s.Name)
	return *s, nil
}

// AddFinding records a note against the active session. An empty pageID
// means the current page.
func (c *CrossPage) AddFinding(content, pageID string) (models.Finding, error) {
	s := c.active()
	if s == nil {
		return models.Finding{}, ErrNoActiveResearch
	}
	if pageID == "" {
		pageID = c.session.CurrentPageID
	}
	f := models.Finding{ID: c.newID(), Content: content, PageID: pageID, Timestamp: c.now()}
	if p, ok := c.pages[pageID]; ok {
		f.URL = p.URL
	}
	s.Findings = append(s.Findings, f)
	return f, nil
}

// AddQuestions appends questions to the active session, skipping duplicates.
func (c *CrossPage) AddQuestions(questions ...string) {
	s := c.active()
	if s == nil {
		return
	}
	for _, q := range questions {
		if q != "" && !slices.Contains(s.Questions, q) {
			s.Questions = append(s.Questions, q)
		}
	}
}

// EndResearch closes the active session.
func (c *CrossPage) EndResearch() (models.ResearchSession, error) {
	s := c.active()
	if s == nil {
		return models.ResearchSession{}, ErrNoActiveResearch
	}
	end := c.now()
	s.Status = models.ResearchClosed
	s.EndTime = &end
	c.session.ActiveResearchID = ""
	c.logger.Info("research session ended", "session_id", s.ID, "findings", len(s.Findings))
	return *s, nil
}

// ActiveResearch returns the active session, if any.
func (c *CrossPage) ActiveResearch() (models.ResearchSession, bool) {
	s := c.active()
	if s == nil {
		return models.ResearchSession{}, false
	}
	return *s, true
}

// ResearchSessions returns every session, oldest first.
func (c *CrossPage) ResearchSessions() []models.ResearchSession {
	out := make([]models.ResearchSession, 0, len(c.research))
	for _, s := range c.research {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
