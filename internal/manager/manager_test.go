package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/metrics"
	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func counterIDs() IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestManager(t *testing.T, mutate func(*Options)) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	opts := DefaultOptions()
	opts.Clock = clock
	opts.NewID = counterIDs()
	if mutate != nil {
		mutate(&opts)
	}
	return New(nil, opts), clock
}

func repeat(seed string, n int) string {
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(seed)
		sb.WriteString(" ")
	}
	return strings.TrimSpace(sb.String())
}

func articleDoc(t *testing.T, title, url string, paragraphs ...string) dom.Document {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString("<p>" + p + "</p>")
	}
	doc, err := dom.ParseString(`<html><head><title>`+title+`</title></head><body>`+body.String()+`</body></html>`, url)
	require.NoError(t, err)
	return doc
}

func introDoc(t *testing.T) dom.Document {
	return articleDoc(t, "Intro to X", "https://example.com/intro",
		"Intro sentence about the subject matter. "+repeat("Widgets are explained here in depth.", 200),
		repeat("Second paragraph covers history and context.", 200),
		repeat("Third paragraph explains practical examples.", 200),
	)
}

func neuralDoc(t *testing.T, i int) dom.Document {
	text := repeat("Neural networks learn layered representations through gradient training.", 300)
	return articleDoc(t, "Neural networks", fmt.Sprintf("https://site%d.org/neural", i), text, text)
}

func TestInitializeArticlePage(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	res, err := m.InitializePage(ctx, introDoc(t))
	require.NoError(t, err)

	assert.Equal(t, models.ContentArticle, res.ExtractedContent.ContentType)
	assert.Equal(t, "id-1", res.ExtractedContent.PageID)
	assert.NotEmpty(t, res.ExtractedContent.Summary)
	require.NotNil(t, res.PageContext)
	assert.Equal(t, "id-1", res.PageContext.PageID)

	prompt := res.FullContext.Prompt
	assert.True(t, strings.HasPrefix(prompt, "[Page Context]\nTitle: Intro to X"), "prompt starts with %q", prompt[:min(len(prompt), 60)])
	assert.Contains(t, prompt, "[Summary]")
	assert.Contains(t, prompt, "[Content]")
	assert.LessOrEqual(t, res.FullContext.Tokens, res.FullContext.TokenLimit)
	assert.Contains(t, res.Suggestions, "Summarize this article")

	snap := m.GetMetrics()
	assert.Len(t, snap.InitializeTimes, 1)
	assert.Equal(t, int64(1), snap.ContextBuilds)
}

func TestProcessMessageFactsAndPreferences(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()
	_, err := m.InitializePage(ctx, introDoc(t))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	res, err := m.ProcessMessage(ctx, models.Message{Role: models.RoleAssistant, Content: "Python is a programming language."})
	require.NoError(t, err)
	require.NotNil(t, res.MemoryInsights)

	var fact *models.Fact
	for _, it := range res.MemoryInsights.Extracted {
		if it.Kind == models.MemoryFact {
			fact = it.Fact
		}
	}
	require.NotNil(t, fact, "expected an extracted fact")
	assert.Equal(t, "Python", fact.Subject)
	assert.Equal(t, "a programming language", fact.Object)
	assert.InDelta(t, 0.8, fact.Confidence, 1e-9)

	for i := 0; i < 2; i++ {
		clock.Advance(time.Minute)
		_, err = m.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: "I prefer brief summaries."})
		require.NoError(t, err)
	}
	_, err = m.BuildContext(ctx, BuildRequest{Query: "brief summaries"})
	require.NoError(t, err)

	doc, err := m.ExportAllContext(ctx)
	require.NoError(t, err)
	prefs := doc.ConversationMemory.Preferences
	require.Len(t, prefs, 1)
	pref := prefs[0].Value
	assert.Equal(t, models.PreferencePositive, pref.Kind)
	assert.Equal(t, "brief summaries", pref.Value)
	assert.Equal(t, 2, pref.Occurrences)
	assert.InDelta(t, 0.4, pref.Confidence, 1e-9)

	assert.Equal(t, 1, m.Summary().ConversationCount, "messages on one page share a conversation")
	assert.Equal(t, int64(3), m.GetMetrics().MemoryQueries, "one query per user message plus the explicit build")
}

func TestConversationFollowsPage(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.InitializePage(ctx, introDoc(t))
	require.NoError(t, err)
	first, err := m.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: "hello"})
	require.NoError(t, err)
	again, err := m.ProcessMessage(ctx, models.Message{Role: models.RoleAssistant, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, again.ConversationID)

	_, err = m.InitializePage(ctx, neuralDoc(t, 1))
	require.NoError(t, err)
	other, err := m.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: "next"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ConversationID, other.ConversationID)
	assert.Equal(t, 2, m.Summary().ConversationCount)
}

func TestAutoResearchSession(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.InitializePage(ctx, neuralDoc(t, i))
		require.NoError(t, err)
		clock.Advance(4 * time.Minute)
	}
	res, err := m.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: "research on neural networks"})
	require.NoError(t, err)

	require.True(t, res.ResearchMode.Active)
	require.NotNil(t, res.ResearchMode.Session)
	assert.True(t, strings.HasPrefix(res.ResearchMode.Session.Name, "Research: "))
	assert.True(t, res.ResearchMode.Session.AutoDetected)
	assert.False(t, res.ResearchMode.Started, "session was already running")
	assert.Len(t, res.ResearchMode.Session.Pages, 3)
}

func TestResearchIntentStartsSession(t *testing.T) {
	m, _ := newTestManager(t, func(o *Options) { o.Config.AutoResearch = false })
	ctx := context.Background()
	_, err := m.InitializePage(ctx, neuralDoc(t, 0))
	require.NoError(t, err)

	res, err := m.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: "I am doing research on neural networks."})
	require.NoError(t, err)
	require.True(t, res.ResearchMode.Started)
	assert.Equal(t, "Research: neural networks", res.ResearchMode.Session.Name)
	assert.Equal(t, []string{"id-1"}, res.ResearchMode.Session.Pages)

	_, err = m.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: "What is backpropagation?"})
	require.NoError(t, err)

	f, err := m.AddResearchFinding(ctx, "Backprop computes gradients layer by layer.")
	require.NoError(t, err)
	assert.Equal(t, "id-1", f.PageID)

	built, err := m.BuildContext(ctx, BuildRequest{})
	require.NoError(t, err)
	assert.Contains(t, built.Prompt, ResearchHeader)
	assert.Contains(t, built.Prompt, "Backprop computes gradients")

	ended, err := m.EndResearchSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ResearchClosed, ended.Status)
	assert.Equal(t, []string{"What is backpropagation?"}, ended.Questions)

	_, err = m.AddResearchFinding(ctx, "late")
	assert.ErrorIs(t, err, ErrNoActiveResearch)
}

func TestDetectResearchIntent(t *testing.T) {
	tests := []struct {
		in      string
		subject string
		ok      bool
	}{
		{"research on neural networks", "neural networks", true},
		{"I'm researching about solar panels!", "solar panels", true},
		{"I want to learn more about Rust lifetimes.", "Rust lifetimes", true},
		{"compare postgres and mysql", "postgres and mysql", true},
		{"find information on tax law", "tax law", true},
		{"what time is it", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			subject, ok := DetectResearchIntent(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.subject, subject)
		})
	}
}

func TestPrivacyRedaction(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	m.SetPrivacyMode(true)

	_, err := m.InitializePage(ctx, introDoc(t))
	require.NoError(t, err)
	_, err = m.ProcessMessage(ctx, models.Message{
		Role:    models.RoleUser,
		Content: "Reach me at test@example.com or 123-456-7890 about the widgets.",
	})
	require.NoError(t, err)

	built, err := m.BuildContext(ctx, BuildRequest{})
	require.NoError(t, err)
	assert.True(t, built.PrivacyApplied)

	data, err := json.Marshal(built)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "test@example.com")
	assert.NotContains(t, out, "123-456-7890")

	m.SetPrivacyMode(false)
	plain, err := m.BuildContext(ctx, BuildRequest{})
	require.NoError(t, err)
	data, err = json.Marshal(plain)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test@example.com", "redaction must not alter stored state")
}

func TestPrivacyKeepsTokenBudget(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	m.SetPrivacyMode(true)

	contacts := repeat("Write to a@b.io or x@y.io for details.", 600)
	_, err := m.InitializePage(ctx, articleDoc(t, "Contacts", "https://example.com/contacts",
		"The contact list for the widget team. "+contacts,
		"Escalations go to a@b.io first. "+contacts,
	))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = m.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: "Ping a@b.io and x@y.io about widgets. " + contacts})
		require.NoError(t, err)
	}

	for _, limit := range []int{150, 200, 500, 1000} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			built, err := m.BuildContext(ctx, BuildRequest{Query: "widget contacts", MaxTokens: limit})
			require.NoError(t, err)
			require.True(t, built.PrivacyApplied)

			assert.LessOrEqual(t, textutil.EstimateTokens(built.Prompt), limit)
			assert.Equal(t, textutil.EstimateTokens(built.Prompt), built.Tokens)
			assert.LessOrEqual(t, textutil.EstimateTokens(built.Session.Prompt), built.Session.Meta.TokenLimit)
			assert.Equal(t, textutil.EstimateTokens(built.Session.Prompt), built.Session.Meta.Tokens)
			assert.NotContains(t, built.Prompt, "a@b.io")
			assert.NotContains(t, built.Prompt, "x@y.io")
		})
	}
}

func TestBuildContextBudget(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	var paras []string
	for i := 0; i < 20; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %d opens here. ", i)+repeat("filler words continue on.", 975))
	}
	_, err := m.InitializePage(ctx, articleDoc(t, "Big", "https://example.com/big", paras...))
	require.NoError(t, err)

	built, err := m.BuildContext(ctx, BuildRequest{MaxTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1000, built.TokenLimit)
	assert.LessOrEqual(t, textutil.EstimateTokens(built.Prompt), 1000)
	assert.Equal(t, textutil.EstimateTokens(built.Prompt), built.Tokens)
	assert.Contains(t, built.Prompt, "[Summary]")
	require.NotNil(t, built.Session.CurrentPage)
	assert.True(t, built.Session.CurrentPage.Truncated, "an oversized page must be cut to fit")

	reasoner, err := m.BuildContext(ctx, BuildRequest{Model: "reasoner"})
	require.NoError(t, err)
	assert.Equal(t, 32000, reasoner.TokenLimit)

	unknown, err := m.BuildContext(ctx, BuildRequest{Model: "gpt-unknown"})
	require.NoError(t, err)
	assert.Equal(t, 16000, unknown.TokenLimit)
}

func TestBuildContextDeterministic(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	_, err := m.InitializePage(ctx, introDoc(t))
	require.NoError(t, err)
	_, err = m.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: "What are widgets?"})
	require.NoError(t, err)

	req := BuildRequest{Query: "widgets history", Model: "chat"}
	a, err := m.BuildContext(ctx, req)
	require.NoError(t, err)
	b, err := m.BuildContext(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, a.Prompt, b.Prompt)
}

func TestFeatureToggles(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	m.SetMemoryEnabled(false)
	m.SetCrossPageEnabled(false)

	res, err := m.InitializePage(ctx, introDoc(t))
	require.NoError(t, err)
	assert.Nil(t, res.PageContext)

	msg, err := m.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: "research on widgets"})
	require.NoError(t, err)
	assert.Nil(t, msg.MemoryInsights)
	assert.False(t, msg.ResearchMode.Active)
	assert.Nil(t, msg.Context.CrossPage)

	_, err = m.StartResearchSession(ctx, "x", "")
	assert.ErrorIs(t, err, ErrCrossPageDisabled)

	off := false
	m.SetMemoryEnabled(true)
	built, err := m.BuildContext(ctx, BuildRequest{IncludeMemory: &off})
	require.NoError(t, err)
	assert.Nil(t, built.Memory)

	cfg := m.Config()
	assert.Equal(t, Config{EnableMemory: true, EnableCrossPage: false, AutoResearch: true}, cfg)
}

func exportDiffOpts() cmp.Options {
	return cmp.Options{
		cmpopts.IgnoreFields(Export{}, "Exported"),
		cmpopts.IgnoreFields(metrics.Snapshot{}, "UptimeSeconds", "Operations"),
		cmpopts.EquateEmpty(),
	}
}

func populated(t *testing.T) *Manager {
	t.Helper()
	m, clock := newTestManager(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.InitializePage(ctx, neuralDoc(t, i))
		require.NoError(t, err)
		clock.Advance(2 * time.Minute)
	}
	for _, msg := range []models.Message{
		{Role: models.RoleUser, Content: "What is a neural network? I prefer brief summaries."},
		{Role: models.RoleAssistant, Content: "A neural network is a layered model. Geoffrey Hinton works in Toronto."},
	} {
		_, err := m.ProcessMessage(ctx, msg)
		require.NoError(t, err)
	}
	_, err := m.AddResearchFinding(ctx, "Layers compose features.")
	require.NoError(t, err)
	return m
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := populated(t)

	data, err := src.MarshalExport(ctx)
	require.NoError(t, err)

	dst, _ := newTestManager(t, nil)
	require.NoError(t, dst.UnmarshalImport(ctx, data))

	want, err := src.ExportAllContext(ctx)
	require.NoError(t, err)
	got, err := dst.ExportAllContext(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, exportDiffOpts()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	wantCtx, err := src.BuildContext(ctx, BuildRequest{Query: "neural"})
	require.NoError(t, err)
	gotCtx, err := dst.BuildContext(ctx, BuildRequest{Query: "neural"})
	require.NoError(t, err)
	assert.Equal(t, wantCtx.Prompt, gotCtx.Prompt)
}

func TestExportLayout(t *testing.T) {
	data, err := populated(t).MarshalExport(context.Background())
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, k := range []string{"version", "exported", "contextBuilder", "conversationMemory", "crossPageContext", "config", "metrics"} {
		assert.Contains(t, doc, k)
	}
	assert.JSONEq(t, `"1.0"`, string(doc["version"]))

	var mem struct {
		Entities [][]json.RawMessage `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(doc["conversationMemory"], &mem))
	require.NotEmpty(t, mem.Entities)
	assert.Len(t, mem.Entities[0], 2, "maps serialize as [key, value] pairs")
}

func TestImportRejectsVersion(t *testing.T) {
	ctx := context.Background()
	m := populated(t)
	before, err := m.ExportAllContext(ctx)
	require.NoError(t, err)

	err = m.ImportAllContext(ctx, &Export{Version: "2.0"})
	require.ErrorIs(t, err, ErrIncompatibleVersion)
	err = m.UnmarshalImport(ctx, []byte(`{"version":"0.9"}`))
	require.ErrorIs(t, err, ErrIncompatibleVersion)

	after, err := m.ExportAllContext(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after, exportDiffOpts()); diff != "" {
		t.Errorf("failed import changed state (-before +after):\n%s", diff)
	}
}

func TestClearIdempotent(t *testing.T) {
	ctx := context.Background()
	m := populated(t)

	require.NoError(t, m.ClearAllContext(ctx))
	once, err := m.ExportAllContext(ctx)
	require.NoError(t, err)
	require.NoError(t, m.ClearAllContext(ctx))
	twice, err := m.ExportAllContext(ctx)
	require.NoError(t, err)

	if diff := cmp.Diff(once, twice, exportDiffOpts()); diff != "" {
		t.Errorf("second clear changed state (-once +twice):\n%s", diff)
	}
	s := m.Summary()
	assert.Zero(t, s.PageCount)
	assert.Zero(t, s.ConversationCount)
	assert.Nil(t, s.Research)
	assert.Zero(t, m.GetMetrics().ContextBuilds)
}

func TestCanceledContext(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.InitializePage(ctx, introDoc(t))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.BuildContext(ctx, BuildRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
