package builder

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/raphaelgruber/pagewise/internal/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestBuilder(opts Options) (*Builder, *fakeClock) {
	clock := &fakeClock{now: t0}
	return New(nil, clock.Now, nil, nil, opts), clock
}

func testPage(id, domain, title, summary string, topics ...string) models.PageAnalysis {
	return models.PageAnalysis{
		PageID:      id,
		ContentType: models.ContentArticle,
		Metadata:    models.Metadata{Title: title, URL: "https://" + domain + "/" + id, Domain: domain},
		MainContent: models.MainContent{Text: summary, Elements: []models.Element{models.Paragraph(summary)}},
		Summary:     summary,
		Topics:      topics,
	}
}

func longPage(id string) models.PageAnalysis {
	var els []models.Element
	var text strings.Builder
	for i := 0; i < 20; i++ {
		p := fmt.Sprintf("Paragraph %d about cluster scheduling. ", i) + strings.Repeat("filler words continue on. ", 40)
		els = append(els, models.Paragraph(p))
		text.WriteString(p)
	}
	p := testPage(id, "docs.example.com", "Scheduling deep dive", "Scheduling explained.", "kubernetes", "scheduling")
	p.MainContent = models.MainContent{Text: text.String(), Elements: els}
	return p
}

func TestAddPageCapsAndRelationships(t *testing.T) {
	b, clock := newTestBuilder(Options{})
	for i := 1; i <= 12; i++ {
		clock.now = t0.Add(time.Duration(i) * time.Second)
		b.AddPage(testPage(fmt.Sprintf("p%d", i), "example.com", "Page", "text"))
	}

	pages, _ := b.Counts()
	if pages != 10 {
		t.Fatalf("pages = %d, want 10", pages)
	}
	cur, ok := b.CurrentPage()
	if !ok || cur.PageID != "p12" {
		t.Errorf("current page = %q, want p12", cur.PageID)
	}
	if _, ok := b.relationships[RelationKey(RelationSameDomain, "p1")]; ok {
		t.Error("evicted page p1 still has relationships")
	}
	rels := b.relationships[RelationKey(RelationSameDomain, "p12")]
	if len(rels) != 9 {
		t.Fatalf("p12 same-domain relations = %d, want 9", len(rels))
	}
	for _, r := range rels {
		if r.Target == "p1" || r.Target == "p2" {
			t.Errorf("relation to evicted page %s", r.Target)
		}
		if r.Strength != sameDomainStrength {
			t.Errorf("strength = %v, want %v", r.Strength, sameDomainStrength)
		}
	}
}

func TestRelationKey(t *testing.T) {
	if got := RelationKey(RelationSharedTopics, "abc"); got != "shared-topics_abc" {
		t.Errorf("RelationKey = %q", got)
	}
}

func TestSharedTopicRelations(t *testing.T) {
	b, _ := newTestBuilder(Options{})
	b.AddPage(testPage("a", "a.com", "A", "x", "go", "rust", "wasm"))
	b.AddPage(testPage("b", "b.com", "B", "y", "go", "wasm", "zig"))

	rels := b.relationships[RelationKey(RelationSharedTopics, "b")]
	if len(rels) != 1 {
		t.Fatalf("relations = %d, want 1", len(rels))
	}
	want := Relation{Kind: RelationSharedTopics, Source: "b", Target: "a", Strength: 0.5, Shared: []string{"go", "wasm"}}
	if diff := cmp.Diff(want, rels[0]); diff != "" {
		t.Errorf("relation mismatch (-want +got):\n%s", diff)
	}
	if got := b.relationships[RelationKey(RelationSharedTopics, "a")]; len(got) != 1 || got[0].Target != "b" {
		t.Errorf("mirror relation = %+v", got)
	}
	if _, ok := b.relationships[RelationKey(RelationSameDomain, "b")]; ok {
		t.Error("pages on different domains were related by domain")
	}
}

func TestReAddPageReplaces(t *testing.T) {
	b, _ := newTestBuilder(Options{})
	b.AddPage(testPage("a", "a.com", "Old", "x"))
	b.AddPage(testPage("b", "a.com", "B", "x"))
	b.AddPage(testPage("a", "a.com", "New", "x"))

	if pages, _ := b.Counts(); pages != 2 {
		t.Fatalf("pages = %d, want 2", pages)
	}
	cur, _ := b.CurrentPage()
	if cur.Metadata.Title != "New" {
		t.Errorf("current title = %q, want New", cur.Metadata.Title)
	}
	if got := b.relationships[RelationKey(RelationSameDomain, "b")]; len(got) != 1 {
		t.Errorf("b relations = %d, want 1 after re-add", len(got))
	}
}

func TestTimelineCap(t *testing.T) {
	b, _ := newTestBuilder(Options{})
	for i := 0; i < 120; i++ {
		b.AddPage(testPage(fmt.Sprintf("p%d", i), "example.com", "P", "x"))
	}
	if len(b.timeline) != 100 {
		t.Fatalf("timeline = %d, want 100", len(b.timeline))
	}
	if b.timeline[99].RefID != "p119" {
		t.Errorf("last event = %q, want p119", b.timeline[99].RefID)
	}
}

func TestAddConversationNotes(t *testing.T) {
	b, clock := newTestBuilder(Options{})
	b.AddPage(testPage("page-1", "go.dev", "Go", "x"))

	conv := models.Conversation{
		ID:        "c1",
		Timestamp: t0,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "What is a goroutine? I prefer brief summaries.", Timestamp: t0},
		},
	}
	b.AddConversation(conv)

	entry := b.conversation("c1")
	if entry == nil {
		t.Fatal("conversation not stored")
	}
	if entry.Conversation.PageID != "page-1" {
		t.Errorf("page id = %q, want current page", entry.Conversation.PageID)
	}
	var kinds []models.MemoryKind
	for _, n := range entry.Notes {
		kinds = append(kinds, n.Kind)
	}
	if diff := cmp.Diff([]models.MemoryKind{models.MemoryPreference, models.MemoryQuestion}, kinds); diff != "" {
		t.Fatalf("note kinds mismatch (-want +got):\n%s", diff)
	}
	if entry.Notes[1].Question.Answered {
		t.Error("question answered before any assistant reply")
	}

	clock.now = t0.Add(time.Minute)
	conv.Messages = append(conv.Messages, models.Message{Role: models.RoleAssistant, Content: "A lightweight thread.", Timestamp: clock.now})
	b.AddConversation(conv)

	entry = b.conversation("c1")
	if len(entry.Notes) != 2 {
		t.Errorf("notes = %d, want 2 after reprocessing", len(entry.Notes))
	}
	if !entry.Notes[1].Question.Answered {
		t.Error("question not marked answered after assistant reply")
	}
	if b.timeline[len(b.timeline)-1].Kind != EventMessage {
		t.Errorf("last event kind = %q, want message", b.timeline[len(b.timeline)-1].Kind)
	}
	if b.CurrentConversationID() != "c1" {
		t.Errorf("current conversation = %q", b.CurrentConversationID())
	}
}

func TestConversationCap(t *testing.T) {
	b, _ := newTestBuilder(Options{MaxConversations: 3})
	for i := 0; i < 5; i++ {
		b.AddConversation(models.Conversation{ID: fmt.Sprintf("c%d", i), Timestamp: t0})
	}
	if _, convs := b.Counts(); convs != 3 {
		t.Fatalf("conversations = %d, want 3", convs)
	}
	if _, ok := b.Conversation("c1"); ok {
		t.Error("oldest conversation not evicted")
	}
	if _, ok := b.Conversation("c4"); !ok {
		t.Error("newest conversation missing")
	}
}

func TestCleanup(t *testing.T) {
	b, clock := newTestBuilder(Options{MaxSessionBytes: 1})
	for i := 1; i <= 4; i++ {
		b.AddPage(testPage(fmt.Sprintf("p%d", i), "example.com", "P", "x"))
	}
	b.AddConversation(models.Conversation{
		ID:        "c1",
		Timestamp: t0,
		Messages:  []models.Message{{Role: models.RoleUser, Content: "hello", Timestamp: t0}},
	})
	if pages, convs := b.Counts(); pages != 4 || convs != 1 {
		t.Fatalf("counts before cleanup = %d/%d, want 4/1", pages, convs)
	}

	clock.now = t0.Add(31 * time.Minute)
	b.AddPage(testPage("p5", "example.com", "P", "x"))

	pages, convs := b.Counts()
	if pages != 4 || convs != 0 {
		t.Fatalf("counts after cleanup = %d/%d, want 4/0", pages, convs)
	}
	if b.page("p1") != nil {
		t.Error("oldest page survived cleanup")
	}
	if cur, _ := b.CurrentPage(); cur.PageID != "p5" {
		t.Errorf("current page = %q, want p5", cur.PageID)
	}
}

func TestSizeCheckThrottled(t *testing.T) {
	b, clock := newTestBuilder(Options{})
	for i := 1; i <= 4; i++ {
		b.AddPage(testPage(fmt.Sprintf("p%d", i), "example.com", "P", "x"))
	}

	// Growing past the bound between checks leaves the session alone.
	b.opts.MaxSessionBytes = 1
	clock.now = t0.Add(time.Minute)
	b.AddPage(testPage("p5", "example.com", "P", "x"))
	if pages, _ := b.Counts(); pages != 5 {
		t.Fatalf("pages = %d, want 5 before the next size check", pages)
	}

	clock.now = t0.Add(6 * time.Minute)
	b.AddPage(testPage("p6", "example.com", "P", "x"))
	if pages, _ := b.Counts(); pages != 5 {
		t.Fatalf("pages = %d, want 5 after cleanup", pages)
	}
	if b.page("p1") != nil {
		t.Error("oldest page survived cleanup")
	}
}

func TestBuildContext(t *testing.T) {
	b, clock := newTestBuilder(Options{})
	b.AddPage(testPage("kube", "docs.example.com", "Kubernetes basics", "Deploy kubernetes workloads with kubectl.", "kubernetes", "deploy"))
	clock.now = t0.Add(time.Minute)
	b.AddPage(testPage("pasta", "food.example.org", "Cooking pasta", "Boil water and add salt.", "cooking"))
	clock.now = t0.Add(2 * time.Minute)
	b.AddConversation(models.Conversation{
		ID:        "c1",
		Timestamp: clock.now,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "How do I deploy kubernetes?", Timestamp: clock.now},
			{Role: models.RoleAssistant, Content: "Use kubectl apply with a manifest.", Timestamp: clock.now},
		},
	})
	clock.now = t0.Add(3 * time.Minute)
	b.AddPage(longPage("current"))

	ctx := b.BuildContext(BuildOptions{
		Query:                "how to deploy kubernetes",
		Model:                "chat",
		MaxTokens:            2000,
		IncludeMemory:        true,
		IncludePages:         true,
		IncludeConversations: true,
	})

	if ctx.CurrentPage == nil || ctx.CurrentPage.PageID != "current" {
		t.Fatalf("current page = %+v", ctx.CurrentPage)
	}
	if ctx.CurrentPage.Tokens > 800 {
		t.Errorf("current page tokens = %d, want <= 800", ctx.CurrentPage.Tokens)
	}
	if len(ctx.Pages) != 2 || ctx.Pages[0].PageID != "kube" {
		t.Fatalf("pages = %+v, want kube ranked first", ctx.Pages)
	}
	if len(ctx.Conversations) != 1 {
		t.Fatalf("conversations = %d, want 1", len(ctx.Conversations))
	}
	var question *models.Question
	for _, n := range ctx.Memory {
		if n.Kind == models.MemoryQuestion {
			question = n.Question
		}
	}
	if question == nil || !question.Answered {
		t.Errorf("memory question = %+v, want answered question", question)
	}
	if len(ctx.Relationships) != 2 || ctx.Relationships[0].Kind != RelationSameDomain || ctx.Relationships[1].Kind != RelationSharedTopics {
		t.Errorf("relationships = %+v, want domain then topic link to kube", ctx.Relationships)
	}

	if ctx.Meta.Tokens > 2000 || ctx.Meta.TokenLimit != 2000 {
		t.Errorf("meta tokens = %d / %d", ctx.Meta.Tokens, ctx.Meta.TokenLimit)
	}
	if ctx.Meta.Intent != IntentAssistance {
		t.Errorf("intent = %q, want assistance", ctx.Meta.Intent)
	}
	if ctx.Meta.PageCount != 3 || ctx.Meta.ConversationCount != 1 {
		t.Errorf("counts = %d/%d", ctx.Meta.PageCount, ctx.Meta.ConversationCount)
	}
	if ctx.Meta.SessionDuration != 180 {
		t.Errorf("session duration = %v, want 180", ctx.Meta.SessionDuration)
	}
	if ctx.Meta.PrimaryTopic != "kubernetes" {
		t.Errorf("primary topic = %q, want kubernetes", ctx.Meta.PrimaryTopic)
	}
	for _, h := range []string{RelatedPagesHeader, ConversationHeader, MemoryHeader} {
		if !strings.Contains(ctx.Prompt, h) {
			t.Errorf("prompt missing %s", h)
		}
	}
}

func TestBuildContextSectionsOff(t *testing.T) {
	b, _ := newTestBuilder(Options{})
	b.AddPage(testPage("a", "a.com", "A", "alpha"))
	b.AddPage(testPage("b", "a.com", "B", "beta"))

	ctx := b.BuildContext(BuildOptions{Model: "reasoner"})
	if ctx.Meta.TokenLimit != 32000 {
		t.Errorf("token limit = %d, want reasoner limit", ctx.Meta.TokenLimit)
	}
	if ctx.Pages != nil || ctx.Conversations != nil || ctx.Memory != nil {
		t.Errorf("disabled sections populated: %+v", ctx)
	}
	if strings.Contains(ctx.Prompt, RelatedPagesHeader) {
		t.Error("prompt contains related pages")
	}
}

func TestBuildContextEmpty(t *testing.T) {
	b, _ := newTestBuilder(Options{})
	ctx := b.BuildContext(BuildOptions{IncludePages: true, IncludeConversations: true, IncludeMemory: true})
	if ctx.CurrentPage != nil || ctx.Prompt != "" {
		t.Errorf("empty session context = %+v", ctx)
	}
	if ctx.Model != "chat" || ctx.Meta.Intent != IntentGeneral {
		t.Errorf("model/intent = %q/%q", ctx.Model, ctx.Meta.Intent)
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		query string
		want  Intent
	}{
		{"", IntentGeneral},
		{"Can you summarize this page?", IntentSummarization},
		{"Give me the tl;dr", IntentSummarization},
		{"Explain the borrow checker", IntentExplanation},
		{"Why does this fail", IntentExplanation},
		{"How do I fix this build", IntentAssistance},
		{"Is Go fast?", IntentQuestion},
		{"where are the docs", IntentQuestion},
		{"kubernetes networking", IntentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := ClassifyIntent(tt.query); got != tt.want {
				t.Errorf("ClassifyIntent(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	b, _ := newTestBuilder(Options{})
	b.AddPage(testPage("a", "a.com", "A", "x", "go", "wasm"))
	b.AddPage(testPage("b", "b.com", "B", "x", "go", "rust"))
	b.AddPage(testPage("c", "c.com", "C", "x", "rust", "go"))

	if got := b.PrimaryTopic(); got != "go" {
		t.Errorf("PrimaryTopic = %q, want go", got)
	}
	if diff := cmp.Diff([]string{"go", "rust"}, b.CommonTopics()); diff != "" {
		t.Errorf("CommonTopics mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	b, clock := newTestBuilder(Options{})
	b.AddPage(testPage("a", "a.com", "A", "x", "go"))
	clock.now = t0.Add(time.Minute)
	b.AddPage(testPage("b", "a.com", "B", "y", "go"))
	b.AddConversation(models.Conversation{
		ID:        "c1",
		Timestamp: clock.now,
		Messages:  []models.Message{{Role: models.RoleUser, Content: "What is a goroutine?", Timestamp: clock.now}},
	})

	data, err := json.Marshal(b.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, _ := newTestBuilder(Options{})
	restored.Restore(snap)

	if diff := cmp.Diff(b.Snapshot(), restored.Snapshot(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if cur, _ := restored.CurrentPage(); cur.PageID != "b" {
		t.Errorf("restored current page = %q, want b", cur.PageID)
	}
}

func TestClear(t *testing.T) {
	b, _ := newTestBuilder(Options{})
	b.AddPage(testPage("a", "a.com", "A", "x"))
	b.AddConversation(models.Conversation{ID: "c1", Timestamp: t0})
	b.Clear()
	b.Clear()

	if pages, convs := b.Counts(); pages != 0 || convs != 0 {
		t.Errorf("counts after clear = %d/%d", pages, convs)
	}
	if _, ok := b.CurrentPage(); ok {
		t.Error("current page survived clear")
	}
}
