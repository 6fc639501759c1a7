// Package memory keeps long-term conversation memory: entities, facts,
// preferences, questions and topics with co-occurrence relationships and
// temporal decay.
package memory

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

const (
	decayAfter        = 7 * 24 * time.Hour
	decayRate         = 0.95
	minConfidence     = 0.1
	preferenceMaxAge  = 30 * 24 * time.Hour
	maxTemporal       = 100
	maxContexts       = 5
	oldWeight         = 0.7
	newWeight         = 0.3
	occurrenceBonus   = 0.05
	maxOccurrenceGain = 0.3
	preferenceStep    = 0.2
)

// Memory is the conversation memory store. It is not safe for concurrent
// use; the owning manager serializes access.
type Memory struct {
	logger    *slog.Logger
	extractor Extractor
	now       func() time.Time

	entities    map[string]*models.Entity
	facts       map[string]*models.Fact
	preferences map[string]*models.Preference
	questions   map[string]*models.Question
	topics      map[string]*models.Topic

	entityLinks map[string]*models.CoOccurrence
	topicLinks  map[string]*models.CoOccurrence
	temporal    []models.TemporalRecord

	// processed counts the messages already consumed per conversation id.
	processed map[string]int
}

// New creates an empty memory. A nil extractor selects RegexExtractor and a
// nil clock selects time.Now.
func New(logger *slog.Logger, now func() time.Time, extractor Extractor) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if extractor == nil {
		extractor = RegexExtractor{}
	}
	m := &Memory{logger: logger, now: now, extractor: extractor}
	m.Clear()
	return m
}

// Clear drops all remembered state.
func (m *Memory) Clear() {
	m.entities = make(map[string]*models.Entity)
	m.facts = make(map[string]*models.Fact)
	m.preferences = make(map[string]*models.Preference)
	m.questions = make(map[string]*models.Question)
	m.topics = make(map[string]*models.Topic)
	m.entityLinks = make(map[string]*models.CoOccurrence)
	m.topicLinks = make(map[string]*models.CoOccurrence)
	m.temporal = nil
	m.processed = make(map[string]int)
}

// Extracted is what one message contributed to memory.
type Extracted struct {
	Entities    []models.Entity
	Facts       []models.Fact
	Preferences []models.Preference
	Questions   []models.Question
	Topics      []models.Topic
}

// Items flattens the extraction into tagged memory items.
func (x Extracted) Items() []models.MemoryItem {
	var out []models.MemoryItem
	for _, e := range x.Entities {
		out = append(out, models.EntityItem(e))
	}
	for _, f := range x.Facts {
		out = append(out, models.FactItem(f))
	}
	for _, p := range x.Preferences {
		out = append(out, models.PreferenceItem(p))
	}
	for _, q := range x.Questions {
		out = append(out, models.QuestionItem(q))
	}
	for _, t := range x.Topics {
		out = append(out, models.TopicItem(t))
	}
	return out
}

// Extract runs e over msg by role: user messages yield questions and
// preferences, assistant messages entities and facts, every message topics.
func Extract(e Extractor, msg models.Message) Extracted {
	var x Extracted
	switch msg.Role {
	case models.RoleUser:
		x.Questions = e.ExtractQuestions(msg.Content)
		x.Preferences = e.ExtractPreferences(msg.Content)
	case models.RoleAssistant:
		x.Entities = e.ExtractEntities(msg.Content)
		x.Facts = e.ExtractFacts(msg.Content)
	case models.RoleSystem:
	}
	x.Topics = e.ExtractTopics(msg.Content)
	return x
}

// ProcessConversation consumes the messages of conv not seen before,
// merges what they yield, updates relationships and applies decay. It
// returns the items extracted from the new messages.
func (m *Memory) ProcessConversation(conv models.Conversation) []models.MemoryItem {
	start := m.processed[conv.ID]
	if start > len(conv.Messages) {
		start = 0
	}

	var items []models.MemoryItem
	for _, msg := range conv.Messages[start:] {
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = m.now()
		}
		x := Extract(m.extractor, msg)
		m.merge(x, conv.ID, ts)
		if msg.Role == models.RoleAssistant {
			m.markAnswered(conv.ID)
		}
		m.updateRelationships(x, conv.ID, ts)
		items = append(items, x.Items()...)
	}
	m.processed[conv.ID] = len(conv.Messages)

	m.ApplyDecay()
	if len(items) > 0 {
		m.logger.Debug("memory updated", "conversation_id", conv.ID, "items", len(items))
	}
	return items
}

// updatedConfidence blends an observation into an existing belief.
func updatedConfidence(old, observed float64, occurrences int) float64 {
	bonus := math.Min(occurrenceBonus*float64(occurrences), maxOccurrenceGain)
	return textutil.Clamp01(oldWeight*old + newWeight*observed + bonus)
}

// preferenceBase is the undecayed belief for a preference seen n times.
func preferenceBase(occurrences int) float64 {
	if occurrences <= 1 {
		return preferenceConfidence
	}
	return math.Min(preferenceStep*float64(occurrences), 1)
}

func (m *Memory) merge(x Extracted, convID string, ts time.Time) {
	for _, e := range x.Entities {
		key := models.EntityKey(e.Type, e.Value)
		cur, ok := m.entities[key]
		if !ok {
			e.BaseConfidence = e.Confidence
			e.FirstSeen, e.LastSeen = ts, ts
			m.entities[key] = &e
			continue
		}
		cur.Occurrences++
		cur.BaseConfidence = updatedConfidence(cur.Confidence, e.Confidence, cur.Occurrences)
		cur.Confidence = cur.BaseConfidence
		cur.LastSeen = ts
		for _, c := range e.Contexts {
			if !slices.Contains(cur.Contexts, c) && len(cur.Contexts) < maxContexts {
				cur.Contexts = append(cur.Contexts, c)
			}
		}
	}

	for _, f := range x.Facts {
		key := models.FactKey(f.Subject, f.Predicate, f.Object)
		cur, ok := m.facts[key]
		if !ok {
			f.BaseConfidence = f.Confidence
			f.FirstSeen, f.LastSeen = ts, ts
			m.facts[key] = &f
			continue
		}
		cur.Occurrences++
		cur.BaseConfidence = updatedConfidence(cur.Confidence, f.Confidence, cur.Occurrences)
		cur.Confidence = cur.BaseConfidence
		cur.LastSeen = ts
	}

	for _, p := range x.Preferences {
		key := models.PreferenceKey(p.Kind, p.Value)
		cur, ok := m.preferences[key]
		if !ok {
			p.LastSeen = ts
			m.preferences[key] = &p
			continue
		}
		cur.Occurrences++
		cur.Confidence = preferenceBase(cur.Occurrences)
		cur.LastSeen = ts
	}

	for _, q := range x.Questions {
		if _, ok := m.questions[q.Text]; ok {
			continue
		}
		q.ConversationID = convID
		q.Timestamp = ts
		m.questions[q.Text] = &q
	}

	for _, t := range x.Topics {
		key := models.TopicItem(t).Key()
		cur, ok := m.topics[key]
		if !ok {
			t.LastSeen = ts
			m.topics[key] = &t
			continue
		}
		cur.Occurrences++
		cur.TotalFrequency += t.TotalFrequency
		cur.LastSeen = ts
	}
}

// markAnswered flags the open questions of a conversation once the
// assistant replies.
func (m *Memory) markAnswered(convID string) {
	for _, q := range m.questions {
		if q.ConversationID == convID {
			q.Answered = true
		}
	}
}

func (m *Memory) updateRelationships(x Extracted, convID string, ts time.Time) {
	entityKeys := make([]string, 0, len(x.Entities))
	for _, e := range x.Entities {
		entityKeys = append(entityKeys, models.EntityKey(e.Type, e.Value))
	}
	topicKeys := make([]string, 0, len(x.Topics))
	for _, t := range x.Topics {
		topicKeys = append(topicKeys, models.TopicItem(t).Key())
	}
	entityKeys = textutil.SortedUnique(entityKeys)
	topicKeys = textutil.SortedUnique(topicKeys)

	countPairs(m.entityLinks, entityKeys, ts)
	countPairs(m.topicLinks, topicKeys, ts)

	if len(entityKeys) == 0 && len(topicKeys) == 0 {
		return
	}
	m.temporal = append(m.temporal, models.TemporalRecord{
		Timestamp:      ts,
		ConversationID: convID,
		Entities:       entityKeys,
		Topics:         topicKeys,
	})
	if over := len(m.temporal) - maxTemporal; over > 0 {
		m.temporal = slices.Clone(m.temporal[over:])
	}
}

func countPairs(links map[string]*models.CoOccurrence, keys []string, ts time.Time) {
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			pk := models.PairKey(keys[i], keys[j])
			link, ok := links[pk]
			if !ok {
				link = &models.CoOccurrence{A: keys[i], B: keys[j]}
				links[pk] = link
			}
			link.CoOccurrences++
			link.LastSeen = ts
		}
	}
}

// ApplyDecay recomputes entity and fact confidence from their last
// observation. Items unseen for more than 7 days decay by 0.95 per week and
// are dropped below 0.1. Preferences unseen for 30 days are dropped.
// Decay is computed from the undecayed base, so repeated calls at the same
// instant are idempotent.
func (m *Memory) ApplyDecay() {
	now := m.now()
	dropped := 0

	for k, e := range m.entities {
		e.Confidence = decayed(e.BaseConfidence, now.Sub(e.LastSeen))
		if e.Confidence < minConfidence {
			delete(m.entities, k)
			dropped++
		}
	}
	for k, f := range m.facts {
		f.Confidence = decayed(f.BaseConfidence, now.Sub(f.LastSeen))
		if f.Confidence < minConfidence {
			delete(m.facts, k)
			dropped++
		}
	}
	for k, p := range m.preferences {
		age := now.Sub(p.LastSeen)
		if age > preferenceMaxAge {
			delete(m.preferences, k)
			dropped++
			continue
		}
		p.Confidence = decayed(preferenceBase(p.Occurrences), age)
	}

	if dropped > 0 {
		m.logger.Debug("memory decay dropped items", "count", dropped)
	}
}

func decayed(base float64, age time.Duration) float64 {
	if age <= decayAfter {
		return textutil.Clamp01(base)
	}
	weeks := age.Hours() / 24 / 7
	return textutil.Clamp01(base * math.Pow(decayRate, weeks))
}
