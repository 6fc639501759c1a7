// Package crosspage maintains the session graph over visited pages:
// connections, topic clusters, the browsing journey and research sessions.
package crosspage

import (
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

const (
	DefaultSimilarityThreshold = 0.6
	DefaultMaxContextAge       = 30 * time.Minute

	maxJourney    = 20
	contentChars  = 1000
	bodyTopics    = 10
	titleTopicMin = 4
)

// Options configures a CrossPage.
type Options struct {
	SimilarityThreshold float64
	MaxContextAge       time.Duration
	AutoResearch        bool
}

// DefaultOptions returns the standard thresholds with auto research on.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxContextAge:       DefaultMaxContextAge,
		AutoResearch:        true,
	}
}

// Content is the processed body kept per page.
type Content struct {
	Text      string              `json:"mainText"`
	KeyPoints []string            `json:"keyPoints,omitempty"`
	Entities  []models.PageEntity `json:"entities,omitempty"`
	Links     []string            `json:"links,omitempty"`
}

// PageContext is one page in the session graph. Connections reference
// other pages by id.
type PageContext struct {
	PageID      string              `json:"pageId"`
	URL         string              `json:"url"`
	Domain      string              `json:"domain"`
	Title       string              `json:"title"`
	Timestamp   time.Time           `json:"timestamp"`
	Content     Content             `json:"content"`
	Topics      []string            `json:"topics"`
	Connections []models.Connection `json:"connections"`
}

// Cluster groups pages whose topics are similar.
type Cluster struct {
	ID      string    `json:"id"`
	Topics  []string  `json:"topics"`
	Pages   []string  `json:"pages"`
	Created time.Time `json:"created"`
}

// JourneyStep is one entry of the browsing journey.
type JourneyStep struct {
	PageID    string    `json:"pageId"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Topics    []string  `json:"topics"`
	Action    Action    `json:"action"`
}

// SessionContext is the session-level state of the graph.
type SessionContext struct {
	StartTime        time.Time     `json:"startTime"`
	CurrentPageID    string        `json:"currentPageId,omitempty"`
	Journey          []JourneyStep `json:"journey"`
	ActiveResearchID string        `json:"activeResearchId,omitempty"`
	PagesVisited     int           `json:"pagesVisited"`
}

// CrossPage is the session graph. It is not safe for concurrent use.
type CrossPage struct {
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	opts   Options

	session  SessionContext
	pages    map[string]*PageContext
	domains  map[string][]string
	clusters map[string]*Cluster
	research map[string]*models.ResearchSession
}

// New creates an empty graph. Nil clock and id generator select time.Now
// and short uuids.
func New(logger *slog.Logger, now func() time.Time, newID func() string, opts Options) *CrossPage {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = func() string { return uuid.NewString()[:8] }
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.MaxContextAge <= 0 {
		opts.MaxContextAge = DefaultMaxContextAge
	}
	c := &CrossPage{logger: logger, now: now, newID: newID, opts: opts}
	c.Clear()
	return c
}

// SetAutoResearch toggles automatic research-session detection.
func (c *CrossPage) SetAutoResearch(on bool) {
	c.opts.AutoResearch = on
}

// Clear drops every page, cluster and research session.
func (c *CrossPage) Clear() {
	c.session = SessionContext{StartTime: c.now()}
	c.pages = make(map[string]*PageContext)
	c.domains = make(map[string][]string)
	c.clusters = make(map[string]*Cluster)
	c.research = make(map[string]*models.ResearchSession)
}

// Page returns the page with the given id.
func (c *CrossPage) Page(id string) (PageContext, bool) {
	p, ok := c.pages[id]
	if !ok {
		return PageContext{}, false
	}
	return *p, true
}

// Len is the number of live pages.
func (c *CrossPage) Len() int {
	return len(c.pages)
}

// AddPage evicts expired pages, then inserts page, links it to the
// remaining pages, assigns it to a cluster, extends the journey and checks
// for a research session. It returns the stored page and its new edges.
func (c *CrossPage) AddPage(page models.PageAnalysis) (PageContext, []models.Connection) {
	now := c.now()
	c.cleanup(now)

	ts := page.Timestamp
	if ts.IsZero() {
		ts = now
	}
	pc := &PageContext{
		PageID:    page.PageID,
		URL:       page.Metadata.URL,
		Domain:    page.Metadata.Domain,
		Title:     page.Metadata.Title,
		Timestamp: ts,
		Content: Content{
			Text:      textutil.TruncateChars(page.MainContent.Text, contentChars),
			KeyPoints: slices.Clone(page.KeyPoints),
			Entities:  slices.Clone(page.Entities),
			Links:     linkHrefs(page.Links),
		},
		Topics: pageTopics(page),
	}

	// a page re-added under the same id replaces its old node
	if _, ok := c.pages[pc.PageID]; ok {
		c.removePage(pc.PageID)
	}

	var added []models.Connection
	for _, other := range c.orderedPages() {
		conn, ok := c.connect(pc, other)
		if !ok {
			continue
		}
		pc.Connections = append(pc.Connections, conn)
		other.Connections = append(other.Connections, models.Connection{
			Source:   other.PageID,
			Target:   pc.PageID,
			Kind:     conn.Kind,
			Strength: conn.Strength,
			Created:  conn.Created,
		})
		added = append(added, conn)
	}
	c.pages[pc.PageID] = pc

	if pc.Domain != "" {
		c.domains[pc.Domain] = append(c.domains[pc.Domain], pc.PageID)
	}
	c.assignCluster(pc)
	c.appendJourney(pc, textutil.Words(textutil.TopWords(page.MainContent.Text, journeyTopics, titleTopicMin)))
	c.session.CurrentPageID = pc.PageID
	c.session.PagesVisited++
	c.checkResearch(pc, now)

	c.logger.Debug("page added to session graph",
		"page_id", pc.PageID, "connections", len(added), "topics", len(pc.Topics))
	return *pc, added
}

func linkHrefs(links []models.Link) []string {
	var out []string
	for _, l := range links {
		if l.Href != "" {
			out = append(out, l.Href)
		}
	}
	return out
}

// pageTopics unions the title keywords with the ten most frequent body words.
func pageTopics(page models.PageAnalysis) []string {
	words := textutil.Keywords(page.Metadata.Title, titleTopicMin)
	words = append(words, textutil.Words(textutil.TopWords(page.MainContent.Text, bodyTopics, titleTopicMin))...)
	words = append(words, page.Topics...)
	return textutil.SortedUnique(words)
}

// orderedPages returns live pages oldest first.
func (c *CrossPage) orderedPages() []*PageContext {
	out := make([]*PageContext, 0, len(c.pages))
	for _, p := range c.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].PageID < out[j].PageID
	})
	return out
}

// cleanup drops pages older than the context age, trims the journey and
// prunes empty domain groups and clusters.
func (c *CrossPage) cleanup(now time.Time) {
	evicted := 0
	for id, p := range c.pages {
		if now.Sub(p.Timestamp) > c.opts.MaxContextAge {
			c.removePage(id)
			evicted++
		}
	}
	if over := len(c.session.Journey) - maxJourney; over > 0 {
		c.session.Journey = slices.Clone(c.session.Journey[over:])
	}
	if evicted > 0 {
		c.logger.Debug("expired pages evicted", "count", evicted)
	}
}

func (c *CrossPage) removePage(id string) {
	p, ok := c.pages[id]
	if !ok {
		return
	}
	delete(c.pages, id)

	if p.Domain != "" {
		ids := slices.DeleteFunc(c.domains[p.Domain], func(s string) bool { return s == id })
		if len(ids) == 0 {
			delete(c.domains, p.Domain)
		} else {
			c.domains[p.Domain] = ids
		}
	}
	for cid, cl := range c.clusters {
		cl.Pages = slices.DeleteFunc(cl.Pages, func(s string) bool { return s == id })
		if len(cl.Pages) == 0 {
			delete(c.clusters, cid)
		}
	}
	for _, other := range c.pages {
		other.Connections = slices.DeleteFunc(other.Connections, func(conn models.Connection) bool {
			return conn.Target == id
		})
	}
	c.session.Journey = slices.DeleteFunc(c.session.Journey, func(step JourneyStep) bool {
		return step.PageID == id
	})
	for _, r := range c.research {
		r.Pages = slices.DeleteFunc(r.Pages, func(s string) bool { return s == id })
	}
	if c.session.CurrentPageID == id {
		c.session.CurrentPageID = ""
	}
}

// Links is the number of distinct page pairs currently connected.
func (c *CrossPage) Links() int {
	n := 0
	for _, p := range c.pages {
		n += len(p.Connections)
	}
	return n / 2
}
