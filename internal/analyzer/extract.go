package analyzer

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/models"
)

const (
	minSelectorTextLen  = 100
	minHeuristicTextLen = 200
	maxHeadings         = 100
	maxImages           = 50
	maxLinks            = 200
)

// extractMetadata reads title, location, meta tags, Open Graph and JSON-LD.
func extractMetadata(doc dom.Document) models.Metadata {
	md := models.Metadata{
		Title:    doc.Title(),
		Language: "en",
		Meta:     map[string]string{},
		OGData:   map[string]string{},
	}
	if loc := doc.Location(); loc != nil {
		md.URL = loc.String()
		md.Domain = loc.Hostname()
	}

	for _, m := range doc.QuerySelectorAll("meta[name], meta[property]") {
		key := m.Attr("name")
		if key == "" {
			key = m.Attr("property")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		content := strings.TrimSpace(m.Attr("content"))
		if key == "" || content == "" {
			continue
		}
		if strings.HasPrefix(key, "og:") {
			md.OGData[strings.TrimPrefix(key, "og:")] = content
			continue
		}
		md.Meta[key] = content
	}

	md.Description = firstNonEmpty(md.Meta["description"], md.OGData["description"])
	md.Author = firstNonEmpty(md.Meta["author"], md.Meta["article:author"])
	md.PublishedDate = md.Meta["article:published_time"]
	if md.PublishedDate == "" {
		if t, ok := doc.QuerySelector("time[datetime]"); ok {
			md.PublishedDate = t.Attr("datetime")
		}
	}
	if kw := md.Meta["keywords"]; kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				md.Keywords = append(md.Keywords, k)
			}
		}
	}
	if md.Title == "" {
		md.Title = md.OGData["title"]
	}
	if md.Title == "" {
		if h1, ok := doc.QuerySelector("h1"); ok {
			md.Title = h1.Text()
		}
	}

	if h, ok := doc.QuerySelector("html[lang]"); ok {
		if lang := strings.TrimSpace(h.Attr("lang")); lang != "" {
			md.Language = lang
		}
	} else if lang := md.Meta["language"]; lang != "" {
		md.Language = lang
	}

	for _, s := range doc.QuerySelectorAll("script[type='application/ld+json']") {
		md.SchemaData = append(md.SchemaData, parseJSONLD(s.RawText())...)
	}
	if len(md.Meta) == 0 {
		md.Meta = nil
	}
	if len(md.OGData) == 0 {
		md.OGData = nil
	}
	return md
}

// parseJSONLD collects @type entries, following @graph arrays.
func parseJSONLD(raw string) []models.SchemaEntry {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	var out []models.SchemaEntry
	var visit func(any)
	visit = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				visit(e)
			}
		case map[string]any:
			name, _ := t["name"].(string)
			switch typ := t["@type"].(type) {
			case string:
				out = append(out, models.SchemaEntry{Type: typ, Name: name})
			case []any:
				for _, e := range typ {
					if s, ok := e.(string); ok {
						out = append(out, models.SchemaEntry{Type: s, Name: name})
					}
				}
			}
			if g, ok := t["@graph"]; ok {
				visit(g)
			}
		}
	}
	visit(v)
	return out
}

var (
	positiveClass = regexp.MustCompile(`(?i)article|body|content|entry|main|page|post|text|blog|story`)
	negativeClass = regexp.MustCompile(`(?i)comment|footer|footnote|masthead|meta|outbrain|promo|related|share|sidebar|sponsor|shopping|tags|widget|nav|menu|header|banner|advert|cookie`)
)

// findMainContent tries the type's selectors, then the scoring heuristic,
// then falls back to the body.
func (a *Analyzer) findMainContent(doc dom.Document, ct models.ContentType) dom.Node {
	for _, sel := range typeRules[ct].mainSelectors {
		for _, n := range doc.QuerySelectorAll(sel) {
			if len(n.Text()) >= minSelectorTextLen {
				return n
			}
		}
	}

	if n, ok := a.bestCandidate(doc); ok {
		return n
	}
	if body, ok := doc.QuerySelector("body"); ok {
		return body
	}
	return doc
}

func (a *Analyzer) bestCandidate(doc dom.Document) (dom.Node, bool) {
	candidates := doc.QuerySelectorAll("div, section, article, main")
	if len(candidates) > a.maxNodes {
		candidates = candidates[:a.maxNodes]
	}

	var best dom.Node
	bestScore := 0.0
	for _, c := range candidates {
		text := c.Text()
		if len(text) < minHeuristicTextLen {
			continue
		}
		if s := contentScore(c, text); best == nil || s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, best != nil
}

// contentScore rates how likely a node is the main content region.
func contentScore(n dom.Node, text string) float64 {
	score := 0.0
	classID := n.Attr("class") + " " + n.Attr("id")
	if positiveClass.MatchString(classID) {
		score += 25
	}
	if negativeClass.MatchString(classID) {
		score -= 25
	}

	score += min(float64(len(text))/100, 30)
	score += min(float64(5*len(n.QuerySelectorAll("p"))), 30)

	linkChars := 0
	for _, l := range n.QuerySelectorAll("a") {
		linkChars += len(l.Text())
	}
	score -= float64(linkChars) / float64(len(text)) * 50
	return score
}

var langClass = regexp.MustCompile(`(?:language|lang)-([A-Za-z0-9_+#-]+)`)

// extractElements walks the main content in document order and emits typed elements.
func (a *Analyzer) extractElements(root dom.Node) []models.Element {
	var out []models.Element
	dom.Walk(root, a.maxNodes, func(n dom.Node) dom.WalkAction {
		switch tag := n.Tag(); tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if text := n.Text(); text != "" {
				out = append(out, models.Heading(int(tag[1]-'0'), text))
			}
			return dom.SkipChildren
		case "p":
			if text := n.Text(); text != "" {
				out = append(out, models.Paragraph(text))
			}
			return dom.SkipChildren
		case "ul", "ol":
			var items []string
			for _, li := range n.Children() {
				if li.Tag() != "li" {
					continue
				}
				if text := li.Text(); text != "" {
					items = append(items, text)
				}
			}
			if len(items) > 0 {
				out = append(out, models.List(tag == "ol", items...))
			}
			return dom.SkipChildren
		case "table":
			var rows [][]string
			for _, tr := range n.QuerySelectorAll("tr") {
				var cells []string
				for _, cell := range tr.Children() {
					if t := cell.Tag(); t == "td" || t == "th" {
						cells = append(cells, cell.Text())
					}
				}
				if len(cells) > 0 {
					rows = append(rows, cells)
				}
			}
			if len(rows) > 0 {
				out = append(out, models.Table(rows))
			}
			return dom.SkipChildren
		case "pre":
			content := strings.Trim(n.RawText(), "\n")
			if strings.TrimSpace(content) != "" {
				out = append(out, models.Code(codeLanguage(n), content))
			}
			return dom.SkipChildren
		case "script", "style", "noscript", "template", "svg", "nav", "footer", "form":
			return dom.SkipChildren
		}
		return dom.Descend
	})
	return out
}

func codeLanguage(pre dom.Node) string {
	classes := pre.Attr("class")
	if code, ok := pre.QuerySelector("code"); ok {
		classes += " " + code.Attr("class")
	}
	if m := langClass.FindStringSubmatch(classes); m != nil {
		return strings.ToLower(m[1])
	}
	return pre.Attr("data-lang")
}

func extractHeadings(doc dom.Document) []models.HeadingRef {
	var out []models.HeadingRef
	for _, h := range doc.QuerySelectorAll("h1, h2, h3, h4, h5, h6") {
		text := h.Text()
		if text == "" {
			continue
		}
		out = append(out, models.HeadingRef{Level: int(h.Tag()[1] - '0'), Text: text, ID: h.Attr("id")})
		if len(out) == maxHeadings {
			break
		}
	}
	return out
}

func extractImages(doc dom.Document) []models.Image {
	var out []models.Image
	for _, img := range doc.QuerySelectorAll("img[src]") {
		out = append(out, models.Image{Src: img.Attr("src"), Alt: img.Attr("alt")})
		if len(out) == maxImages {
			break
		}
	}
	return out
}

func extractLinks(doc dom.Document) []models.Link {
	base := doc.Location()
	var out []models.Link
	for _, a := range doc.QuerySelectorAll("a[href]") {
		href := strings.TrimSpace(a.Attr("href"))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			continue
		}
		link := models.Link{Href: href, Text: a.Text()}
		if u, err := url.Parse(href); err == nil && base != nil {
			abs := base.ResolveReference(u)
			link.Href = abs.String()
			link.External = abs.Hostname() != "" && abs.Hostname() != base.Hostname()
		}
		out = append(out, link)
		if len(out) == maxLinks {
			break
		}
	}
	return out
}

func extractStructure(doc dom.Document) models.Structure {
	count := func(sel string) int { return len(doc.QuerySelectorAll(sel)) }
	exists := func(sel string) bool { _, ok := doc.QuerySelector(sel); return ok }
	return models.Structure{
		Headings:    count("h1, h2, h3, h4, h5, h6"),
		Paragraphs:  count("p"),
		Images:      count("img"),
		Links:       count("a[href]"),
		Lists:       count("ul, ol"),
		Tables:      count("table"),
		Forms:       count("form"),
		HasNav:      exists("nav, [role='navigation']"),
		HasFooter:   exists("footer, [role='contentinfo']"),
		HasComments: exists("#comments, .comments, .comment-list, [class*='comment']"),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
