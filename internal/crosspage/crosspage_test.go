package crosspage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
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

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestGraph(auto bool) (*CrossPage, *fakeClock) {
	clock := &fakeClock{now: t0}
	opts := DefaultOptions()
	opts.AutoResearch = auto
	return New(nil, clock.Now, counterIDs(), opts), clock
}

func testPage(id, rawURL, title, text string, ts time.Time, links ...string) models.PageAnalysis {
	u, _ := url.Parse(rawURL)
	var ls []models.Link
	for _, l := range links {
		ls = append(ls, models.Link{Href: l})
	}
	return models.PageAnalysis{
		PageID:      id,
		Metadata:    models.Metadata{Title: title, URL: rawURL, Domain: u.Hostname()},
		MainContent: models.MainContent{Text: text},
		Links:       ls,
		Timestamp:   ts,
	}
}

func (c *CrossPage) addAt(clock *fakeClock, p models.PageAnalysis) []models.Connection {
	clock.now = p.Timestamp
	_, conns := c.AddPage(p)
	return conns
}

func TestConnectionKinds(t *testing.T) {
	const (
		alphaText = "alpha bravo charlie delta"
		zuluText  = "zebra yankee whiskey victor"
	)
	tests := []struct {
		name     string
		first    models.PageAnalysis
		second   models.PageAnalysis
		wantKind models.ConnectionKind
		wantStr  float64
		none     bool
	}{
		{
			name:     "same domain",
			first:    testPage("a", "https://example.com/a", "First", alphaText, t0),
			second:   testPage("b", "https://example.com/b", "Second", zuluText, t0.Add(10*time.Minute)),
			wantKind: models.ConnectionSameDomain,
			wantStr:  0.8,
		},
		{
			name:     "linked",
			first:    testPage("a", "https://other.org/post", "First", alphaText, t0),
			second:   testPage("b", "https://mine.com/b", "Second", zuluText, t0.Add(10*time.Minute), "https://other.org/post"),
			wantKind: models.ConnectionLinked,
			wantStr:  1,
		},
		{
			name:     "similar topic",
			first:    testPage("a", "https://one.org/a", "Neural networks", alphaText, t0),
			second:   testPage("b", "https://two.org/b", "Neural networks", alphaText, t0.Add(10*time.Minute)),
			wantKind: models.ConnectionSimilarTopic,
			wantStr:  1,
		},
		{
			name:     "temporal",
			first:    testPage("a", "https://one.org/a", "First", alphaText, t0),
			second:   testPage("b", "https://two.org/b", "Second", zuluText, t0.Add(time.Minute)),
			wantKind: models.ConnectionTemporal,
			wantStr:  0.8,
		},
		{
			name:   "unrelated",
			first:  testPage("a", "https://one.org/a", "First", alphaText, t0),
			second: testPage("b", "https://two.org/b", "Second", zuluText, t0.Add(10*time.Minute)),
			none:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, clock := newTestGraph(false)
			g.addAt(clock, tt.first)
			conns := g.addAt(clock, tt.second)

			if tt.none {
				if len(conns) != 0 {
					t.Fatalf("unexpected connections %+v", conns)
				}
				return
			}
			if len(conns) != 1 {
				t.Fatalf("connections = %+v, want exactly one", conns)
			}
			c := conns[0]
			if c.Kind != tt.wantKind || math.Abs(c.Strength-tt.wantStr) > 1e-9 {
				t.Errorf("connection = %s %.3f, want %s %.3f", c.Kind, c.Strength, tt.wantKind, tt.wantStr)
			}
			if c.Source != "b" || c.Target != "a" {
				t.Errorf("edge direction = %s -> %s", c.Source, c.Target)
			}

			first, _ := g.Page("a")
			if len(first.Connections) != 1 || first.Connections[0].Target != "b" {
				t.Errorf("mirror edge missing: %+v", first.Connections)
			}
			if g.Links() != 1 {
				t.Errorf("Links() = %d, want 1", g.Links())
			}
		})
	}
}

func TestStrongestEdgeWins(t *testing.T) {
	g, clock := newTestGraph(false)
	// same domain (0.8) and temporal (0.96) at once
	g.addAt(clock, testPage("a", "https://example.com/a", "First", "alpha bravo", t0))
	conns := g.addAt(clock, testPage("b", "https://example.com/b", "Second", "zebra yankee", t0.Add(12*time.Second)))

	if len(conns) != 1 {
		t.Fatalf("connections = %+v, want one consolidated edge", conns)
	}
	if conns[0].Kind != models.ConnectionTemporal || conns[0].Strength <= 0.8 {
		t.Errorf("edge = %+v, want the stronger temporal edge", conns[0])
	}
}

func TestEviction(t *testing.T) {
	g, clock := newTestGraph(false)
	g.addAt(clock, testPage("old", "https://a.com/x", "Old page", "alpha bravo", t0))
	if _, err := g.StartResearch("history", ""); err != nil {
		t.Fatalf("StartResearch: %v", err)
	}
	g.addAt(clock, testPage("new", "https://b.com/y", "New page", "zebra yankee", t0.Add(31*time.Minute)))

	if _, ok := g.Page("old"); ok {
		t.Error("page older than the context age survived the next add")
	}
	snap := g.Snapshot()
	if len(snap.DomainGroups) != 1 || snap.DomainGroups[0].Key != "b.com" {
		t.Errorf("domain groups = %+v, want only b.com", snap.DomainGroups)
	}
	for _, cl := range g.Clusters() {
		for _, id := range cl.Pages {
			if id == "old" {
				t.Errorf("cluster %s still references evicted page", cl.ID)
			}
		}
	}
	for _, step := range g.Context("", ContextOptions{IncludeJourney: true}).Journey {
		if step.PageID == "old" {
			t.Error("journey still references evicted page")
		}
	}
	sessions := g.ResearchSessions()
	if len(sessions) != 1 {
		t.Fatalf("research sessions = %d, want 1", len(sessions))
	}
	if diff := cmp.Diff([]string{"new"}, sessions[0].Pages); diff != "" {
		t.Errorf("research pages mismatch (-want +got):\n%s", diff)
	}
}

func TestClusters(t *testing.T) {
	g, clock := newTestGraph(false)
	text := "neural networks learn representations from data"
	g.addAt(clock, testPage("a", "https://one.org/a", "Neural networks", text, t0))
	g.addAt(clock, testPage("b", "https://two.org/b", "Neural networks", text, t0.Add(time.Minute)))
	g.addAt(clock, testPage("c", "https://three.org/c", "Sourdough baking", "flour water starter bread", t0.Add(2*time.Minute)))

	clusters := g.Clusters()
	if len(clusters) != 2 {
		t.Fatalf("clusters = %+v, want 2", clusters)
	}
	if got := clusters[0].Pages; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("first cluster pages = %v", got)
	}
	if got := clusters[1].Pages; len(got) != 1 || got[0] != "c" {
		t.Errorf("second cluster pages = %v", got)
	}
}

func TestJourneyCap(t *testing.T) {
	g, clock := newTestGraph(false)
	for i := 0; i < 25; i++ {
		text := fmt.Sprintf("uniqueword%02d anotherword%02d", i, i)
		g.addAt(clock, testPage(fmt.Sprintf("p%02d", i), fmt.Sprintf("https://site%02d.com/", i),
			fmt.Sprintf("Page %02d", i), text, t0.Add(time.Duration(i)*10*time.Second)))
	}
	j := g.Context("", ContextOptions{IncludeJourney: true}).Journey
	if len(j) != maxJourney {
		t.Fatalf("journey length = %d, want %d", len(j), maxJourney)
	}
	if j[0].PageID != "p05" || j[len(j)-1].PageID != "p24" {
		t.Errorf("journey spans %s..%s, want p05..p24", j[0].PageID, j[len(j)-1].PageID)
	}
}

func TestInferAction(t *testing.T) {
	tests := []struct {
		url, title string
		want       Action
	}{
		{"https://google.com/search?q=go", "go - Search", ActionSearch},
		{"https://example.com/go-vs-rust", "Go vs Rust", ActionCompare},
		{"https://pkg.go.dev/net/http", "http package documentation", ActionReference},
		{"https://blog.example.com/2024/intro", "Intro", ActionRead},
		{"https://shop.example.com/category/shoes", "Shoes", ActionBrowse},
		{"https://example.com/", "Home", ActionExplore},
	}
	for _, tt := range tests {
		if got := InferAction(tt.url, tt.title); got != tt.want {
			t.Errorf("InferAction(%q, %q) = %s, want %s", tt.url, tt.title, got, tt.want)
		}
	}
}

func TestAutoResearch(t *testing.T) {
	text := "neural networks learn representations through training"
	add := func(g *CrossPage, clock *fakeClock) {
		for i := 0; i < 3; i++ {
			g.addAt(clock, testPage(fmt.Sprintf("n%d", i), fmt.Sprintf("https://site%d.org/neural", i),
				"Neural networks", text, t0.Add(time.Duration(i)*4*time.Minute)))
		}
	}

	g, clock := newTestGraph(true)
	add(g, clock)
	s, ok := g.ActiveResearch()
	if !ok {
		t.Fatal("expected an auto-detected research session")
	}
	if !strings.HasPrefix(s.Name, "Research: ") || !s.AutoDetected || len(s.Pages) != 3 {
		t.Errorf("session = %+v", s)
	}

	off, offClock := newTestGraph(false)
	add(off, offClock)
	if _, ok := off.ActiveResearch(); ok {
		t.Error("auto research disabled but a session started")
	}
}

func TestResearchLifecycle(t *testing.T) {
	g, clock := newTestGraph(false)
	g.addAt(clock, testPage("a", "https://example.com/a", "Page A", "alpha bravo", t0))

	if _, err := g.AddFinding("nothing yet", ""); !errors.Is(err, ErrNoActiveResearch) {
		t.Fatalf("AddFinding without session: err = %v", err)
	}

	s, err := g.StartResearch("Go generics", "learn type params")
	if err != nil {
		t.Fatalf("StartResearch: %v", err)
	}
	if s.Status != models.ResearchActive || len(s.Pages) != 1 || s.Pages[0] != "a" {
		t.Errorf("started session = %+v", s)
	}
	if _, err := g.StartResearch("again", ""); !errors.Is(err, ErrResearchActive) {
		t.Errorf("second StartResearch: err = %v", err)
	}

	f, err := g.AddFinding("constraints use interfaces", "")
	if err != nil {
		t.Fatalf("AddFinding: %v", err)
	}
	if f.PageID != "a" || f.URL != "https://example.com/a" {
		t.Errorf("finding = %+v", f)
	}
	g.AddQuestions("How do constraints work?", "How do constraints work?")

	g.addAt(clock, testPage("b", "https://example.com/b", "Page B", "charlie delta", t0.Add(time.Minute)))

	ended, err := g.EndResearch()
	if err != nil {
		t.Fatalf("EndResearch: %v", err)
	}
	if ended.Status != models.ResearchClosed || ended.EndTime == nil {
		t.Errorf("ended session = %+v", ended)
	}
	if len(ended.Pages) != 2 || len(ended.Findings) != 1 || len(ended.Questions) != 1 {
		t.Errorf("ended session contents = pages %v findings %d questions %v",
			ended.Pages, len(ended.Findings), ended.Questions)
	}
	if _, ok := g.ActiveResearch(); ok {
		t.Error("session still active after EndResearch")
	}
	if _, err := g.EndResearch(); !errors.Is(err, ErrNoActiveResearch) {
		t.Errorf("second EndResearch: err = %v", err)
	}
	if len(g.ResearchSessions()) != 1 {
		t.Errorf("sessions = %d, want 1", len(g.ResearchSessions()))
	}
}

func TestContext(t *testing.T) {
	g, clock := newTestGraph(false)
	g.addAt(clock, testPage("a", "https://example.com/a", "Go tutorial", "goroutines channels select", t0))
	g.addAt(clock, testPage("b", "https://other.org/b", "Rust tutorial", "ownership borrowing lifetimes", t0.Add(10*time.Minute)))
	g.addAt(clock, testPage("c", "https://example.com/c", "Go tutorial two", "goroutines mutexes waitgroups",
		t0.Add(20*time.Minute), "https://other.org/b"))

	ctx := g.Context("c", ContextOptions{})
	if ctx.Current == nil || ctx.Current.PageID != "c" {
		t.Fatalf("current page = %+v", ctx.Current)
	}
	if len(ctx.Related) != 2 {
		t.Fatalf("related = %+v, want 2", ctx.Related)
	}
	if ctx.Related[0].PageID != "b" || ctx.Related[0].Kind != models.ConnectionLinked {
		t.Errorf("strongest related = %+v, want linked page b", ctx.Related[0])
	}
	if ctx.Related[1].PageID != "a" || ctx.Related[1].Kind != models.ConnectionSameDomain {
		t.Errorf("second related = %+v, want same-domain page a", ctx.Related[1])
	}
	for _, r := range ctx.Related {
		if r.Strength < 0 || r.Strength > 1 {
			t.Errorf("strength out of range: %+v", r)
		}
	}
	if ctx.Journey != nil {
		t.Error("journey included without IncludeJourney")
	}

	syn := ctx.Synthesis
	if len(syn.Themes) == 0 || syn.Themes[0] != "tutorial" {
		t.Errorf("themes = %v, want tutorial first", syn.Themes)
	}
	if len(syn.Suggestions) != 1 || !strings.Contains(syn.Suggestions[0], "research session") {
		t.Errorf("suggestions = %v", syn.Suggestions)
	}
	if syn.Pattern == "" || len(syn.Insights) == 0 {
		t.Errorf("synthesis = %+v", syn)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	g, clock := newTestGraph(true)
	text := "neural networks learn representations through training"
	for i := 0; i < 3; i++ {
		g.addAt(clock, testPage(fmt.Sprintf("n%d", i), fmt.Sprintf("https://site%d.org/neural", i),
			"Neural networks", text, t0.Add(time.Duration(i)*time.Minute), "https://site0.org/neural"))
	}
	if _, err := g.AddFinding("backprop is central", ""); err != nil {
		t.Fatalf("AddFinding: %v", err)
	}

	want := g.Snapshot()
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored := New(nil, clock.Now, counterIDs(), DefaultOptions())
	restored.Restore(decoded)
	if diff := cmp.Diff(want, restored.Snapshot(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("snapshot mismatch after restore (-want +got):\n%s", diff)
	}
	if _, ok := restored.ActiveResearch(); !ok {
		t.Error("active research session lost in restore")
	}
}
