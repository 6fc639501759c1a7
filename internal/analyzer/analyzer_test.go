package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func parse(t *testing.T, src, loc string) *dom.HTMLDocument {
	t.Helper()
	doc, err := dom.ParseString(src, loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func paragraph(seed string, n int) string {
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(seed)
		sb.WriteString(" ")
	}
	return strings.TrimSpace(sb.String())
}

func TestAnalyzeArticle(t *testing.T) {
	p1 := "Intro sentence about the subject matter. " + paragraph("Widgets are explained here in depth.", 200)
	p2 := paragraph("Second paragraph covers history and context.", 200)
	p3 := paragraph("Third paragraph explains practical examples.", 200)
	src := `<html><head><title>Intro to X</title></head><body>` +
		`<p>` + p1 + `</p><p>` + p2 + `</p><p>` + p3 + `</p></body></html>`

	a := New(nil, fixedNow)
	got := a.Analyze(parse(t, src, "https://example.com/intro"), "page-1")

	if got.ContentType != models.ContentArticle {
		t.Errorf("ContentType = %q, want article", got.ContentType)
	}
	if got.Metadata.Title != "Intro to X" {
		t.Errorf("Title = %q", got.Metadata.Title)
	}
	if got.Metadata.Domain != "example.com" {
		t.Errorf("Domain = %q", got.Metadata.Domain)
	}
	if got.Metadata.Language != "en" {
		t.Errorf("Language = %q, want default en", got.Metadata.Language)
	}
	if got.Summary == "" || len(got.Summary) > summaryMaxChars+3 {
		t.Errorf("Summary length = %d", len(got.Summary))
	}
	if !strings.HasSuffix(got.Summary, "...") {
		t.Errorf("long summary should be ellipsized: %q", got.Summary)
	}
	if len(got.MainContent.Elements) != 3 {
		t.Errorf("elements = %d, want 3", len(got.MainContent.Elements))
	}
	if len(got.KeyPoints) == 0 || got.KeyPoints[0] != "Intro sentence about the subject matter." {
		t.Errorf("KeyPoints = %q", got.KeyPoints)
	}
	if got.QualityScore < 0 || got.QualityScore > 100 {
		t.Errorf("QualityScore out of range: %v", got.QualityScore)
	}
	if got.Error != "" {
		t.Errorf("unexpected error: %s", got.Error)
	}
	if !got.Timestamp.Equal(fixedNow()) {
		t.Errorf("Timestamp = %v", got.Timestamp)
	}
}

func TestDetectContentType(t *testing.T) {
	long := paragraph("Body text for the region under test.", 300)

	tests := []struct {
		name string
		src  string
		want models.ContentType
	}{
		{
			name: "product schema",
			src: `<html><head><script type="application/ld+json">{"@type":"Product","name":"Widget"}</script></head>
				<body><div class="product-details"><span class="price">$10</span><button class="add-to-cart">Add to cart</button>
				<p>` + long + ` In stock.</p></div></body></html>`,
			want: models.ContentProduct,
		},
		{
			name: "code blocks",
			src: `<html><body><div class="markdown-body">
				<pre><code class="language-go">func a() {}</code></pre>
				<pre><code class="language-go">func b() {}</code></pre>
				<pre><code class="language-go">func c() {}</code></pre></div></body></html>`,
			want: models.ContentCode,
		},
		{
			name: "nothing distinctive defaults to article",
			src:  `<html><body><div>` + long + `</div></body></html>`,
			want: models.ContentArticle,
		},
		{
			name: "news schema",
			src: `<html><head><script type="application/ld+json">{"@graph":[{"@type":"NewsArticle"}]}</script></head>
				<body><div class="byline">By a correspondent</div><p>` + long + ` Breaking: as reported today.</p></body></html>`,
			want: models.ContentNews,
		},
	}

	a := New(nil, fixedNow)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(parse(t, tt.src, "https://shop.example.com/"), "p")
			if got.ContentType != tt.want {
				t.Errorf("ContentType = %q, want %q", got.ContentType, tt.want)
			}
		})
	}
}

func TestDetectTypeTieBreak(t *testing.T) {
	scores := map[models.ContentType]int{
		models.ContentCode:          30,
		models.ContentDocumentation: 30,
	}
	if got := detectType(scores); got != models.ContentCode {
		t.Errorf("detectType tie = %q, want code (enum order)", got)
	}

	weak := map[models.ContentType]int{models.ContentNews: 10}
	if got := detectType(weak); got != models.ContentArticle {
		t.Errorf("detectType weak = %q, want article", got)
	}
}

func TestCodeElements(t *testing.T) {
	src := `<html><body><div class="markdown-body"><h2>Usage</h2>
		<pre><code class="language-go">package main

func main() {}</code></pre>
		<ul><li>one</li><li>two</li></ul>
		<table><tr><th>k</th><th>v</th></tr><tr><td>a</td><td>1</td></tr></table>
		<p>` + paragraph("Explanation of the snippet above.", 300) + `</p></div></body></html>`

	got := New(nil, fixedNow).Analyze(parse(t, src, ""), "p")

	kinds := make([]models.ElementKind, len(got.MainContent.Elements))
	for i, el := range got.MainContent.Elements {
		kinds[i] = el.Kind
	}
	want := []models.ElementKind{models.ElementHeading, models.ElementCode, models.ElementList, models.ElementTable, models.ElementParagraph}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("element %d kind = %q, want %q", i, kinds[i], want[i])
		}
	}

	code := got.MainContent.Elements[1]
	if code.Language != "go" {
		t.Errorf("code language = %q, want go", code.Language)
	}
	if !strings.Contains(code.Content, "package main\n\nfunc main() {}") {
		t.Errorf("code whitespace not preserved: %q", code.Content)
	}
	if rows := got.MainContent.Elements[3].Rows; len(rows) != 2 || rows[1][1] != "1" {
		t.Errorf("table rows = %v", rows)
	}
}

func TestHeuristicMainContent(t *testing.T) {
	body := paragraph("The real story continues with details.", 400)
	src := `<html><body>
		<div class="sidebar"><a href="/1">Link one</a> <a href="/2">Link two</a> <a href="/3">` + paragraph("more links", 220) + `</a></div>
		<div class="story"><p>` + body + `</p><p>` + body + `</p></div>
		</body></html>`

	got := New(nil, fixedNow).Analyze(parse(t, src, "https://example.com/"), "p")

	if strings.Contains(got.MainContent.Text, "Link one") {
		t.Error("sidebar selected as main content")
	}
	if !strings.Contains(got.MainContent.Text, "The real story") {
		t.Errorf("story not selected: %q", got.MainContent.Text)
	}
}

func TestExtractMetadata(t *testing.T) {
	src := `<html lang="de"><head><title></title>
		<meta property="og:title" content="OG Title">
		<meta name="description" content="A description">
		<meta name="keywords" content="go, parsing , html">
		<meta name="author" content="Jane Doe">
		<script type="application/ld+json">{"@type":["Article","BlogPosting"],"name":"Post"}</script>
		</head><body><a href="https://other.org/x">out</a><a href="/in">in</a></body></html>`

	doc := parse(t, src, "https://example.com/page")
	md := extractMetadata(doc)

	if md.Title != "OG Title" {
		t.Errorf("Title = %q, want og fallback", md.Title)
	}
	if md.Language != "de" {
		t.Errorf("Language = %q", md.Language)
	}
	if md.Description != "A description" || md.Author != "Jane Doe" {
		t.Errorf("Description/Author = %q/%q", md.Description, md.Author)
	}
	if len(md.Keywords) != 3 || md.Keywords[1] != "parsing" {
		t.Errorf("Keywords = %q", md.Keywords)
	}
	if md.OGData["title"] != "OG Title" {
		t.Errorf("OGData = %v", md.OGData)
	}
	if len(md.SchemaData) != 2 || md.SchemaData[1].Type != "BlogPosting" {
		t.Errorf("SchemaData = %+v", md.SchemaData)
	}

	links := extractLinks(doc)
	if len(links) != 2 || !links[0].External || links[1].External {
		t.Errorf("links = %+v", links)
	}
	if links[1].Href != "https://example.com/in" {
		t.Errorf("relative link not resolved: %q", links[1].Href)
	}
}

func TestQualityScore(t *testing.T) {
	many := make([]models.Element, 5)
	tests := []struct {
		name     string
		textLen  int
		elements []models.Element
		s        models.Structure
		want     float64
	}{
		{"empty", 0, nil, models.Structure{}, 0},
		{"rich", 2000, many, models.Structure{Headings: 3, Paragraphs: 4, Images: 1, Links: 10}, 70},
		{"link farm", 100, nil, models.Structure{Links: 50}, 0},
		{"medium", 600, many, models.Structure{}, 35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := qualityScore(tt.textLen, tt.elements, tt.s); got != tt.want {
				t.Errorf("qualityScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPageEntities(t *testing.T) {
	text := "Ada Lovelace wrote to info@example.org about https://example.org/notes on order 1234567."
	got := pageEntities(text)

	found := map[models.PageEntityType]string{}
	for _, e := range got {
		if _, ok := found[e.Type]; !ok {
			found[e.Type] = e.Value
		}
	}
	want := map[models.PageEntityType]string{
		models.PageEntityPhrase: "Ada Lovelace",
		models.PageEntityEmail:  "info@example.org",
		models.PageEntityURL:    "https://example.org/notes",
		models.PageEntityNumber: "1234567",
	}
	for k, v := range want {
		if found[k] != v {
			t.Errorf("%s entity = %q, want %q", k, found[k], v)
		}
	}
}

// brokenDoc panics on selector queries to exercise the fallback path.
type brokenDoc struct {
	*dom.HTMLDocument
}

func (brokenDoc) QuerySelectorAll(string) []dom.Node {
	panic("selector engine exploded")
}

func TestAnalyzeFallback(t *testing.T) {
	body := paragraph("Fallback text.", 3000)
	doc := parse(t, `<html><head><title>Broken</title></head><body><p>`+body+`</p></body></html>`, "https://example.com/b")

	got := New(nil, fixedNow).Analyze(brokenDoc{doc}, "page-x")

	if got.ContentType != models.ContentUnknown {
		t.Errorf("ContentType = %q, want unknown", got.ContentType)
	}
	if got.Error == "" {
		t.Error("Error should be set")
	}
	if got.Metadata.Title != "Broken" || got.Metadata.Domain != "example.com" {
		t.Errorf("basic metadata missing: %+v", got.Metadata)
	}
	if n := len(got.MainContent.Text); n == 0 || n > fallbackTextLen {
		t.Errorf("fallback text length = %d", n)
	}
}
