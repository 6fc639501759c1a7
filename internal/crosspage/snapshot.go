package crosspage

import (
	"slices"

	"github.com/raphaelgruber/pagewise/internal/models"
)

// Snapshot is the serializable graph state.
type Snapshot struct {
	SessionContext   SessionContext                       `json:"sessionContext"`
	PageContexts     models.Pairs[PageContext]            `json:"pageContexts"`
	DomainGroups     models.Pairs[[]string]               `json:"domainGroups"`
	TopicClusters    models.Pairs[Cluster]                `json:"topicClusters"`
	ResearchSessions models.Pairs[models.ResearchSession] `json:"researchSessions"`
}

// Snapshot copies the current state.
func (c *CrossPage) Snapshot() Snapshot {
	s := Snapshot{
		SessionContext:   c.session,
		PageContexts:     make(models.Pairs[PageContext], 0, len(c.pages)),
		DomainGroups:     make(models.Pairs[[]string], 0, len(c.domains)),
		TopicClusters:    make(models.Pairs[Cluster], 0, len(c.clusters)),
		ResearchSessions: make(models.Pairs[models.ResearchSession], 0, len(c.research)),
	}
	s.SessionContext.Journey = slices.Clone(c.session.Journey)
	for _, k := range sortedKeys(c.pages) {
		s.PageContexts = append(s.PageContexts, models.Pair[PageContext]{Key: k, Value: *c.pages[k]})
	}
	for _, k := range sortedKeys(c.domains) {
		s.DomainGroups = append(s.DomainGroups, models.Pair[[]string]{Key: k, Value: slices.Clone(c.domains[k])})
	}
	for _, k := range sortedKeys(c.clusters) {
		s.TopicClusters = append(s.TopicClusters, models.Pair[Cluster]{Key: k, Value: *c.clusters[k]})
	}
	for _, k := range sortedKeys(c.research) {
		s.ResearchSessions = append(s.ResearchSessions, models.Pair[models.ResearchSession]{Key: k, Value: *c.research[k]})
	}
	return s
}

// Restore replaces the current state with s.
func (c *CrossPage) Restore(s Snapshot) {
	c.Clear()
	c.session = s.SessionContext
	c.session.Journey = slices.Clone(s.SessionContext.Journey)
	for _, e := range s.PageContexts {
		p := e.Value
		c.pages[e.Key] = &p
	}
	for _, e := range s.DomainGroups {
		c.domains[e.Key] = slices.Clone(e.Value)
	}
	for _, e := range s.TopicClusters {
		cl := e.Value
		c.clusters[e.Key] = &cl
	}
	for _, e := range s.ResearchSessions {
		r := e.Value
		c.research[e.Key] = &r
	}
}
