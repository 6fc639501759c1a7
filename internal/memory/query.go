package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

const (
	// DefaultQueryConfidence is the minimum confidence a query result needs.
	DefaultQueryConfidence = 0.6
	defaultQueryLimit      = 10

	contextEntities      = 20
	contextFacts         = 15
	contextPreferences   = 10
	contextTopics        = 10
	contextRelationships = 10
	contextPreferenceMin = 0.5
	strongRelationship   = 3
)

// QueryOptions narrows a memory query.
type QueryOptions struct {
	Kinds         []models.MemoryKind // empty means entities, facts and preferences
	MinConfidence float64             // 0 means DefaultQueryConfidence
	Limit         int                 // per group; 0 means 10
}

// Match is a query hit and its relevance to the query.
type Match struct {
	Item      models.MemoryItem `json:"item"`
	Relevance float64           `json:"relevance"`
}

// Results groups query hits by kind, best first.
type Results struct {
	Entities    []Match `json:"entities"`
	Facts       []Match `json:"facts"`
	Preferences []Match `json:"preferences"`
}

// Total is the number of hits across groups.
func (r Results) Total() int {
	return len(r.Entities) + len(r.Facts) + len(r.Preferences)
}

// CalculateRelevance scores text against query: exact match 1, text
// containing the query 0.8, query containing the text 0.6, otherwise the
// share of query words found in text.
func CalculateRelevance(query, text string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case q == "" || t == "":
		return 0
	case q == t:
		return 1
	case strings.Contains(t, q):
		return 0.8
	case strings.Contains(q, t):
		return 0.6
	}
	return textutil.OverlapRatio(q, t)
}

// Query finds remembered items whose text contains the query or is
// contained in it. A failure while matching yields empty groups.
func (m *Memory) Query(query string, opts QueryOptions) (res Results) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("memory query failed", "query", query, "error", fmt.Sprint(r))
			res = Results{}
		}
	}()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Results{}
	}
	minConf := opts.MinConfidence
	if minConf <= 0 {
		minConf = DefaultQueryConfidence
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	want := func(k models.MemoryKind) bool {
		return len(opts.Kinds) == 0 || contains(opts.Kinds, k)
	}

	collect := func(items []models.MemoryItem) []Match {
		var out []Match
		for _, it := range items {
			t := strings.ToLower(it.Text())
			if t == "" || it.Confidence() < minConf {
				continue
			}
			if !strings.Contains(t, q) && !strings.Contains(q, t) {
				continue
			}
			out = append(out, Match{Item: it, Relevance: CalculateRelevance(q, t)})
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Relevance != out[j].Relevance {
				return out[i].Relevance > out[j].Relevance
			}
			if ci, cj := out[i].Item.Confidence(), out[j].Item.Confidence(); ci != cj {
				return ci > cj
			}
			return out[i].Item.Key() < out[j].Item.Key()
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return out
	}

	if want(models.MemoryEntity) {
		res.Entities = collect(m.entityItems())
	}
	if want(models.MemoryFact) {
		res.Facts = collect(m.factItems())
	}
	if want(models.MemoryPreference) {
		res.Preferences = collect(m.preferenceItems())
	}
	return res
}

func contains(kinds []models.MemoryKind, k models.MemoryKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

func (m *Memory) entityItems() []models.MemoryItem {
	out := make([]models.MemoryItem, 0, len(m.entities))
	for _, k := range sortedKeys(m.entities) {
		out = append(out, models.EntityItem(*m.entities[k]))
	}
	return out
}

func (m *Memory) factItems() []models.MemoryItem {
	out := make([]models.MemoryItem, 0, len(m.facts))
	for _, k := range sortedKeys(m.facts) {
		out = append(out, models.FactItem(*m.facts[k]))
	}
	return out
}

func (m *Memory) preferenceItems() []models.MemoryItem {
	out := make([]models.MemoryItem, 0, len(m.preferences))
	for _, k := range sortedKeys(m.preferences) {
		out = append(out, models.PreferenceItem(*m.preferences[k]))
	}
	return out
}

// Context is the high-confidence digest of memory handed to prompts.
type Context struct {
	Entities      []models.Entity       `json:"entities"`
	Facts         []models.Fact         `json:"facts"`
	Preferences   []models.Preference   `json:"preferences"`
	Topics        []models.Topic        `json:"topics"`
	Relationships []models.CoOccurrence `json:"relationships"`
}

// Empty reports whether the digest holds nothing.
func (c Context) Empty() bool {
	return len(c.Entities)+len(c.Facts)+len(c.Preferences)+len(c.Topics)+len(c.Relationships) == 0
}

// Context returns up to 20 entities and 15 facts at query confidence, 10
// preferences with confidence of at least 0.5, the 10 most frequent topics
// and 10 relationships seen together at least three times.
func (m *Memory) Context() Context {
	var c Context

	for _, k := range sortedKeys(m.entities) {
		if e := m.entities[k]; e.Confidence >= DefaultQueryConfidence {
			c.Entities = append(c.Entities, *e)
		}
	}
	sort.SliceStable(c.Entities, func(i, j int) bool { return c.Entities[i].Confidence > c.Entities[j].Confidence })
	c.Entities = capSlice(c.Entities, contextEntities)

	for _, k := range sortedKeys(m.facts) {
		if f := m.facts[k]; f.Confidence >= DefaultQueryConfidence {
			c.Facts = append(c.Facts, *f)
		}
	}
	sort.SliceStable(c.Facts, func(i, j int) bool { return c.Facts[i].Confidence > c.Facts[j].Confidence })
	c.Facts = capSlice(c.Facts, contextFacts)

	for _, k := range sortedKeys(m.preferences) {
		if p := m.preferences[k]; p.Confidence >= contextPreferenceMin {
			c.Preferences = append(c.Preferences, *p)
		}
	}
	sort.SliceStable(c.Preferences, func(i, j int) bool { return c.Preferences[i].Confidence > c.Preferences[j].Confidence })
	c.Preferences = capSlice(c.Preferences, contextPreferences)

	c.Topics = m.TopTopics(contextTopics)

	for _, links := range []map[string]*models.CoOccurrence{m.entityLinks, m.topicLinks} {
		for _, k := range sortedKeys(links) {
			if l := links[k]; l.CoOccurrences >= strongRelationship {
				c.Relationships = append(c.Relationships, *l)
			}
		}
	}
	sort.SliceStable(c.Relationships, func(i, j int) bool {
		return c.Relationships[i].CoOccurrences > c.Relationships[j].CoOccurrences
	})
	c.Relationships = capSlice(c.Relationships, contextRelationships)
	return c
}

// TopTopics returns the n topics with the highest total frequency.
func (m *Memory) TopTopics(n int) []models.Topic {
	out := make([]models.Topic, 0, len(m.topics))
	for _, k := range sortedKeys(m.topics) {
		out = append(out, *m.topics[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalFrequency > out[j].TotalFrequency })
	return capSlice(out, n)
}

// OpenQuestions returns unanswered questions, oldest first.
func (m *Memory) OpenQuestions() []models.Question {
	var out []models.Question
	for _, k := range sortedKeys(m.questions) {
		if q := m.questions[k]; !q.Answered {
			out = append(out, *q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func capSlice[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
