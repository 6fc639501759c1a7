package memory

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/raphaelgruber/pagewise/internal/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMemory() (*Memory, *fakeClock) {
	clock := &fakeClock{now: t0}
	return New(nil, clock.Now, nil), clock
}

func msg(role models.Role, content string, ts time.Time) models.Message {
	return models.Message{Role: role, Content: content, Timestamp: ts}
}

func TestExtractFacts(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		subject   string
		predicate string
		object    string
	}{
		{"is", "Python is a programming language.", "Python", "is", "a programming language"},
		{"are", "Goroutines are lightweight threads.", "Goroutines", "are", "lightweight threads"},
		{"has", "Go has a garbage collector.", "Go", "has", "a garbage collector"},
		{"refers to", "A monad refers to a design pattern.", "A monad", "refers to", "a design pattern"},
		{"according to", "According to the docs, caching is optional.", "the docs", "states", "caching is optional"},
		{"earliest verb", "Rust is a language that has ownership.", "Rust", "is", "a language that has ownership"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := RegexExtractor{}.ExtractFacts(tt.text)
			if len(facts) != 1 {
				t.Fatalf("got %d facts, want 1: %+v", len(facts), facts)
			}
			f := facts[0]
			if f.Subject != tt.subject || f.Predicate != tt.predicate || f.Object != tt.object {
				t.Errorf("fact = (%q, %q, %q), want (%q, %q, %q)",
					f.Subject, f.Predicate, f.Object, tt.subject, tt.predicate, tt.object)
			}
			if f.Confidence != 0.8 {
				t.Errorf("confidence = %v, want 0.8", f.Confidence)
			}
		})
	}

	if got := (RegexExtractor{}).ExtractFacts("Is Python a language?"); len(got) != 0 {
		t.Errorf("questions should not yield facts, got %+v", got)
	}
}

func TestExtractPreferences(t *testing.T) {
	tests := []struct {
		text  string
		kind  models.PreferenceKind
		value string
	}{
		{"I prefer brief summaries.", models.PreferencePositive, "brief summaries"},
		{"I don't like long answers.", models.PreferenceNegative, "long answers"},
		{"Please use bullet points.", models.PreferenceRequest, "use bullet points"},
		{"I always read the docs first.", models.PreferenceFrequency, "read the docs first"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			prefs := RegexExtractor{}.ExtractPreferences(tt.text)
			if len(prefs) != 1 {
				t.Fatalf("got %d preferences, want 1: %+v", len(prefs), prefs)
			}
			if prefs[0].Kind != tt.kind || prefs[0].Value != tt.value {
				t.Errorf("preference = %s %q, want %s %q", prefs[0].Kind, prefs[0].Value, tt.kind, tt.value)
			}
		})
	}
}

func TestClassifyQuestion(t *testing.T) {
	tests := map[string]models.QuestionKind{
		"What is a goroutine?":    models.QuestionWhat,
		"How do channels work?":   models.QuestionHow,
		"Why is it slow?":         models.QuestionWhy,
		"When was Go released?":   models.QuestionWhen,
		"Where is the config?":    models.QuestionWhere,
		"Who wrote this?":         models.QuestionWho,
		"Is this thread safe?":    models.QuestionYesNo,
		"Tell me more?":           models.QuestionGeneral,
		"":                        models.QuestionGeneral,
	}
	for q, want := range tests {
		if got := ClassifyQuestion(q); got != want {
			t.Errorf("ClassifyQuestion(%q) = %s, want %s", q, got, want)
		}
	}
}

func TestExtractEntities(t *testing.T) {
	text := "The report by Jane Doe went to jane@example.com and https://example.com/docs. " +
		"Acme Corp moved to Berlin on 2024-03-01."
	entities := RegexExtractor{}.ExtractEntities(text)

	want := []struct {
		typ   models.EntityType
		value string
	}{
		{models.EntityEmail, "jane@example.com"},
		{models.EntityURL, "https://example.com/docs"},
		{models.EntityOrganization, "Acme Corp"},
		{models.EntityPerson, "Jane Doe"},
		{models.EntityLocation, "Berlin"},
		{models.EntityDate, "2024-03-01"},
	}
	for _, w := range want {
		found := false
		for _, e := range entities {
			if e.Type == w.typ && e.Value == w.value {
				found = true
				if e.Confidence != 0.7 || len(e.Contexts) != 1 {
					t.Errorf("%s %q: confidence %v, contexts %d", w.typ, w.value, e.Confidence, len(e.Contexts))
				}
			}
		}
		if !found {
			t.Errorf("missing %s entity %q in %+v", w.typ, w.value, entities)
		}
	}
}

func TestFactConfidenceGrows(t *testing.T) {
	m, clock := newTestMemory()

	m.ProcessConversation(models.Conversation{ID: "c1", Messages: []models.Message{
		msg(models.RoleAssistant, "Python is a programming language.", clock.Now()),
	}})
	key := models.FactKey("Python", "is", "a programming language")
	f, ok := m.facts[key]
	if !ok {
		t.Fatalf("fact %q not stored; facts = %v", key, m.facts)
	}
	if f.Subject != "Python" || f.Object != "a programming language" || f.Confidence != 0.8 {
		t.Fatalf("first fact = %+v", f)
	}

	clock.Advance(time.Hour)
	m.ProcessConversation(models.Conversation{ID: "c2", Messages: []models.Message{
		msg(models.RoleAssistant, "Python is a programming language.", clock.Now()),
	}})
	f = m.facts[key]
	if f.Confidence <= 0.8 || f.Confidence > 1 {
		t.Errorf("confidence after repeat = %v, want in (0.8, 1]", f.Confidence)
	}
	if f.Occurrences != 2 {
		t.Errorf("occurrences = %d, want 2", f.Occurrences)
	}
}

func TestPreferenceRetention(t *testing.T) {
	m, clock := newTestMemory()
	conv := models.Conversation{ID: "c1"}

	for i := 0; i < 2; i++ {
		conv.Messages = append(conv.Messages, msg(models.RoleUser, "I prefer brief summaries.", clock.Now()))
		m.ProcessConversation(conv)
		clock.Advance(time.Minute)
	}

	if len(m.preferences) != 1 {
		t.Fatalf("preferences = %d, want 1", len(m.preferences))
	}
	p := m.preferences[models.PreferenceKey(models.PreferencePositive, "brief summaries")]
	if p == nil {
		t.Fatal("preference not stored under its canonical key")
	}
	if p.Value != "brief summaries" || p.Occurrences != 2 || math.Abs(p.Confidence-0.4) > 1e-9 {
		t.Errorf("preference = %+v, want brief summaries x2 at 0.4", p)
	}
}

func TestDecay(t *testing.T) {
	m, clock := newTestMemory()
	m.ProcessConversation(models.Conversation{ID: "c1", Messages: []models.Message{
		msg(models.RoleAssistant, "Python is a programming language.", clock.Now()),
		msg(models.RoleUser, "I prefer brief summaries.", clock.Now()),
	}})
	key := models.FactKey("Python", "is", "a programming language")

	clock.Advance(14 * 24 * time.Hour)
	m.ApplyDecay()
	first := m.facts[key].Confidence
	if want := 0.8 * 0.95 * 0.95; math.Abs(first-want) > 1e-9 {
		t.Errorf("decayed confidence = %v, want %v", first, want)
	}

	m.ApplyDecay()
	if again := m.facts[key].Confidence; again != first {
		t.Errorf("decay not idempotent: %v then %v", first, again)
	}

	clock.Advance(7 * 24 * time.Hour)
	m.ApplyDecay()
	if later := m.facts[key].Confidence; later > first {
		t.Errorf("confidence rose without observation: %v -> %v", first, later)
	}

	clock.Advance(10 * 24 * time.Hour)
	m.ApplyDecay()
	if len(m.preferences) != 0 {
		t.Errorf("preference older than 30 days kept: %+v", m.preferences)
	}

	clock.Advance(300 * 24 * time.Hour)
	m.ApplyDecay()
	if _, ok := m.facts[key]; ok {
		t.Error("fact below 0.1 confidence should be dropped")
	}
}

func TestCalculateRelevance(t *testing.T) {
	tests := []struct {
		query, text string
		want        float64
	}{
		{"python", "Python", 1},
		{"python", "python is a language", 0.8},
		{"tell me about python", "python", 0.6},
		{"go channels", "channels in rust", 0.5},
		{"", "anything", 0},
	}
	for _, tt := range tests {
		if got := CalculateRelevance(tt.query, tt.text); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("CalculateRelevance(%q, %q) = %v, want %v", tt.query, tt.text, got, tt.want)
		}
	}
}

func TestQuery(t *testing.T) {
	m, clock := newTestMemory()
	m.ProcessConversation(models.Conversation{ID: "c1", Messages: []models.Message{
		msg(models.RoleUser, "I prefer python examples.", clock.Now()),
		msg(models.RoleAssistant, "Python is a programming language. Ruby is a gem.", clock.Now()),
	}})

	res := m.Query("python", QueryOptions{})
	if len(res.Facts) != 1 || res.Facts[0].Relevance != 0.8 {
		t.Fatalf("facts = %+v, want one python fact at 0.8", res.Facts)
	}
	if res.Facts[0].Item.Kind != models.MemoryFact || res.Facts[0].Item.Fact.Subject != "Python" {
		t.Errorf("unexpected fact item %+v", res.Facts[0].Item)
	}
	if len(res.Preferences) != 1 {
		t.Errorf("preferences = %+v, want the python preference", res.Preferences)
	}

	onlyFacts := m.Query("python", QueryOptions{Kinds: []models.MemoryKind{models.MemoryFact}})
	if len(onlyFacts.Preferences) != 0 || len(onlyFacts.Facts) != 1 {
		t.Errorf("kind filter ignored: %+v", onlyFacts)
	}

	if got := m.Query("", QueryOptions{}); got.Total() != 0 {
		t.Errorf("empty query returned %d results", got.Total())
	}
	if got := m.Query("haskell", QueryOptions{}); got.Total() != 0 {
		t.Errorf("unrelated query returned %+v", got)
	}
}

func TestRelationshipsAndContext(t *testing.T) {
	m, clock := newTestMemory()
	conv := models.Conversation{ID: "c1"}
	for i := 0; i < 3; i++ {
		conv.Messages = append(conv.Messages,
			msg(models.RoleAssistant, "The report by Jane Doe went to jane@example.com.", clock.Now()))
		clock.Advance(time.Minute)
	}
	m.ProcessConversation(conv)

	pk := models.PairKey("email:jane@example.com", "person:jane doe")
	link, ok := m.entityLinks[pk]
	if !ok || link.CoOccurrences != 3 {
		t.Fatalf("entity link %q = %+v", pk, link)
	}
	if len(m.temporal) != 3 {
		t.Errorf("temporal records = %d, want 3", len(m.temporal))
	}

	ctx := m.Context()
	found := false
	for _, r := range ctx.Relationships {
		if models.PairKey(r.A, r.B) == pk {
			found = true
		}
	}
	if !found {
		t.Errorf("strong relationship missing from context: %+v", ctx.Relationships)
	}
	if len(ctx.Entities) < 2 {
		t.Errorf("context entities = %+v", ctx.Entities)
	}
	for _, e := range ctx.Entities {
		if e.Confidence < 0 || e.Confidence > 1 {
			t.Errorf("entity confidence out of range: %+v", e)
		}
	}
}

func TestTemporalCap(t *testing.T) {
	m, clock := newTestMemory()
	conv := models.Conversation{ID: "c1"}
	for i := 0; i < 120; i++ {
		conv.Messages = append(conv.Messages, msg(models.RoleUser, "Tell me about kubernetes clusters.", clock.Now()))
	}
	m.ProcessConversation(conv)
	if len(m.temporal) != maxTemporal {
		t.Errorf("temporal records = %d, want %d", len(m.temporal), maxTemporal)
	}
}

func TestQuestionsAnswered(t *testing.T) {
	m, clock := newTestMemory()
	conv := models.Conversation{ID: "c1", Messages: []models.Message{
		msg(models.RoleUser, "What is a goroutine?", clock.Now()),
	}}
	m.ProcessConversation(conv)
	if open := m.OpenQuestions(); len(open) != 1 || open[0].Kind != models.QuestionWhat {
		t.Fatalf("open questions = %+v", open)
	}

	conv.Messages = append(conv.Messages, msg(models.RoleAssistant, "A goroutine is a lightweight thread.", clock.Now()))
	m.ProcessConversation(conv)
	if open := m.OpenQuestions(); len(open) != 0 {
		t.Errorf("question still open after reply: %+v", open)
	}
	if s := m.Stats(); s.Questions != 1 || s.OpenQuestions != 0 || s.Conversations != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m, clock := newTestMemory()
	m.ProcessConversation(models.Conversation{ID: "c1", Messages: []models.Message{
		msg(models.RoleUser, "I prefer brief summaries. What is Go?", clock.Now()),
		msg(models.RoleAssistant, "Go is a language by Rob Pike at https://go.dev today.", clock.Now()),
	}})

	want := m.Snapshot()
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored := New(nil, clock.Now, nil)
	restored.Restore(decoded)
	if diff := cmp.Diff(want, restored.Snapshot(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("snapshot mismatch after restore (-want +got):\n%s", diff)
	}

	// restored memory keeps counting from where it left off
	restored.ProcessConversation(models.Conversation{ID: "c1", Messages: []models.Message{
		msg(models.RoleUser, "I prefer brief summaries. What is Go?", clock.Now()),
		msg(models.RoleAssistant, "Go is a language by Rob Pike at https://go.dev today.", clock.Now()),
	}})
	if got := restored.Stats(); got != want.Stats {
		t.Errorf("reprocessing seen messages changed stats: %+v vs %+v", got, want.Stats)
	}
}
