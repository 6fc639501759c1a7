package crosspage

import (
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

const (
	sameDomainStrength = 0.8
	linkedStrength     = 1.0
	temporalWindow     = 5 * time.Minute
	journeyTopics      = 3
)

// connect returns the strongest edge from p to other, if any. Candidate
// kinds are compared in the order linked, same-domain, similar-topic,
// temporal; a later kind wins only when strictly stronger.
func (c *CrossPage) connect(p, other *PageContext) (models.Connection, bool) {
	best := models.Connection{Source: p.PageID, Target: other.PageID, Created: c.now()}
	found := false
	consider := func(kind models.ConnectionKind, strength float64) {
		strength = textutil.Clamp01(strength)
		if !found || strength > best.Strength {
			best.Kind, best.Strength, found = kind, strength, true
		}
	}

	if linksTo(p, other) || linksTo(other, p) {
		consider(models.ConnectionLinked, linkedStrength)
	}
	if p.Domain != "" && p.Domain == other.Domain {
		consider(models.ConnectionSameDomain, sameDomainStrength)
	}
	if sim := textutil.Jaccard(p.Topics, other.Topics); sim > c.opts.SimilarityThreshold {
		consider(models.ConnectionSimilarTopic, sim)
	}
	dt := p.Timestamp.Sub(other.Timestamp)
	if dt < 0 {
		dt = -dt
	}
	if dt < temporalWindow {
		consider(models.ConnectionTemporal, 1-float64(dt)/float64(temporalWindow))
	}
	return best, found
}

// linksTo reports whether from has an outbound link to to's URL or domain.
func linksTo(from, to *PageContext) bool {
	for _, href := range from.Content.Links {
		if to.URL != "" && strings.TrimSuffix(href, "/") == strings.TrimSuffix(to.URL, "/") {
			return true
		}
		if to.Domain == "" || to.Domain == from.Domain {
			continue
		}
		if u, err := url.Parse(href); err == nil && strings.EqualFold(u.Hostname(), to.Domain) {
			return true
		}
	}
	return false
}

// assignCluster joins the most similar cluster above threshold or starts a
// new one.
func (c *CrossPage) assignCluster(p *PageContext) {
	var best *Cluster
	bestSim := c.opts.SimilarityThreshold
	for _, cl := range c.orderedClusters() {
		if sim := textutil.Jaccard(p.Topics, cl.Topics); sim > bestSim {
			best, bestSim = cl, sim
		}
	}
	if best == nil {
		best = &Cluster{ID: c.newID(), Created: c.now()}
		c.clusters[best.ID] = best
	}
	best.Pages = append(best.Pages, p.PageID)
	best.Topics = textutil.SortedUnique(append(slices.Clone(best.Topics), p.Topics...))
}

func (c *CrossPage) orderedClusters() []*Cluster {
	out := make([]*Cluster, 0, len(c.clusters))
	for _, cl := range c.clusters {
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clusters returns the topic clusters, oldest first.
func (c *CrossPage) Clusters() []Cluster {
	var out []Cluster
	for _, cl := range c.orderedClusters() {
		out = append(out, *cl)
	}
	return out
}

// Action is the inferred intent of a journey step.
type Action string

const (
	ActionSearch    Action = "search"
	ActionRead      Action = "read"
	ActionBrowse    Action = "browse"
	ActionReference Action = "reference"
	ActionCompare   Action = "compare"
	ActionExplore   Action = "explore"
)

var actionKeywords = []struct {
	action   Action
	keywords []string
}{
	{ActionSearch, []string{"search", "?q=", "&q=", "query=", "results"}},
	{ActionCompare, []string{" vs ", "-vs-", "versus", "compare", "comparison"}},
	{ActionReference, []string{"docs", "documentation", "reference", "/api", "manual", "wiki"}},
	{ActionRead, []string{"blog", "article", "post", "news", "story"}},
	{ActionBrowse, []string{"category", "categories", "/tag", "index", "list", "browse"}},
}

// InferAction classifies a visit by keywords in its URL and title.
func InferAction(rawURL, title string) Action {
	s := strings.ToLower(rawURL + " " + title + " ")
	for _, a := range actionKeywords {
		for _, k := range a.keywords {
			if strings.Contains(s, k) {
				return a.action
			}
		}
	}
	return ActionExplore
}

// appendJourney records a visit with its most frequent topics.
func (c *CrossPage) appendJourney(p *PageContext, topics []string) {
	if len(topics) > journeyTopics {
		topics = topics[:journeyTopics]
	}
	c.session.Journey = append(c.session.Journey, JourneyStep{
		PageID:    p.PageID,
		URL:       p.URL,
		Title:     p.Title,
		Timestamp: p.Timestamp,
		Topics:    slices.Clone(topics),
		Action:    InferAction(p.URL, p.Title),
	})
	if over := len(c.session.Journey) - maxJourney; over > 0 {
		c.session.Journey = slices.Clone(c.session.Journey[over:])
	}
}
