package memory

import (
	"slices"

	"github.com/raphaelgruber/pagewise/internal/models"
)

// Stats counts what memory holds.
type Stats struct {
	Entities       int `json:"totalEntities"`
	Facts          int `json:"totalFacts"`
	Preferences    int `json:"totalPreferences"`
	Questions      int `json:"totalQuestions"`
	OpenQuestions  int `json:"openQuestions"`
	Topics         int `json:"totalTopics"`
	Relationships  int `json:"totalRelationships"`
	Conversations  int `json:"conversations"`
	TemporalEvents int `json:"temporalEvents"`
}

// Stats returns current counts.
func (m *Memory) Stats() Stats {
	open := 0
	for _, q := range m.questions {
		if !q.Answered {
			open++
		}
	}
	return Stats{
		Entities:       len(m.entities),
		Facts:          len(m.facts),
		Preferences:    len(m.preferences),
		Questions:      len(m.questions),
		OpenQuestions:  open,
		Topics:         len(m.topics),
		Relationships:  len(m.entityLinks) + len(m.topicLinks),
		Conversations:  len(m.processed),
		TemporalEvents: len(m.temporal),
	}
}

// Relationships is the exported relationship state.
type Relationships struct {
	Entities models.Pairs[models.CoOccurrence] `json:"entities"`
	Topics   models.Pairs[models.CoOccurrence] `json:"topics"`
	Temporal []models.TemporalRecord           `json:"temporal"`
}

// Snapshot is the serializable memory state. Maps are exported as
// [key, value] pairs ordered by key.
type Snapshot struct {
	Entities      models.Pairs[models.Entity]     `json:"entities"`
	Facts         models.Pairs[models.Fact]       `json:"facts"`
	Preferences   models.Pairs[models.Preference] `json:"preferences"`
	Questions     models.Pairs[models.Question]   `json:"questions"`
	Topics        models.Pairs[models.Topic]      `json:"topics"`
	Relationships Relationships                   `json:"relationships"`
	Processed     models.Pairs[int]               `json:"processed"`
	Stats         Stats                           `json:"stats"`
}

// Snapshot copies the current state.
func (m *Memory) Snapshot() Snapshot {
	return Snapshot{
		Entities:    pairsOf(m.entities),
		Facts:       pairsOf(m.facts),
		Preferences: pairsOf(m.preferences),
		Questions:   pairsOf(m.questions),
		Topics:      pairsOf(m.topics),
		Relationships: Relationships{
			Entities: pairsOf(m.entityLinks),
			Topics:   pairsOf(m.topicLinks),
			Temporal: slices.Clone(m.temporal),
		},
		Processed: models.PairsFromMap(m.processed),
		Stats:     m.Stats(),
	}
}

// Restore replaces the current state with s.
func (m *Memory) Restore(s Snapshot) {
	m.Clear()
	m.entities = ptrMap(s.Entities)
	m.facts = ptrMap(s.Facts)
	m.preferences = ptrMap(s.Preferences)
	m.questions = ptrMap(s.Questions)
	m.topics = ptrMap(s.Topics)
	m.entityLinks = ptrMap(s.Relationships.Entities)
	m.topicLinks = ptrMap(s.Relationships.Topics)
	m.temporal = slices.Clone(s.Relationships.Temporal)
	m.processed = s.Processed.Map()
}

func pairsOf[V any](m map[string]*V) models.Pairs[V] {
	out := make(models.Pairs[V], 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, models.Pair[V]{Key: k, Value: *m[k]})
	}
	return out
}

func ptrMap[V any](p models.Pairs[V]) map[string]*V {
	out := make(map[string]*V, len(p))
	for _, e := range p {
		v := e.Value
		out[e.Key] = &v
	}
	return out
}
