package dom

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// FromMarkdown renders Markdown to HTML and parses it as a page. YAML
// front matter supplies the title and meta tags; without a title the first
// level-one heading is used.
func FromMarkdown(src []byte, location string) (*HTMLDocument, error) {
	fm, body := splitFrontMatter(string(src))

	var out bytes.Buffer
	if err := markdown.Convert([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}

	title := fm.title()
	if title == "" {
		title = markdownTitle(body)
	}

	var head strings.Builder
	head.WriteString("<title>" + html.EscapeString(title) + "</title>")
	for _, m := range fm.meta() {
		fmt.Fprintf(&head, `<meta name="%s" content="%s">`, html.EscapeString(m[0]), html.EscapeString(m[1]))
	}

	page := "<html><head>" + head.String() + "</head><body><article>" +
		out.String() + "</article></body></html>"
	return ParseString(page, location)
}

// frontMatter holds the YAML header of a Markdown note.
type frontMatter map[string]any

// splitFrontMatter separates a leading "---" YAML block from the body.
// Malformed YAML is treated as body text.
func splitFrontMatter(src string) (frontMatter, string) {
	src = strings.TrimPrefix(src, "\ufeff")
	if !strings.HasPrefix(src, "---\n") && !strings.HasPrefix(src, "---\r\n") {
		return nil, src
	}
	rest := src[strings.Index(src, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, src
	}
	var fm frontMatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return nil, src
	}
	body := rest[end+len("\n---"):]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return fm, body
}

func (fm frontMatter) str(key string) string {
	switch v := fm[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (fm frontMatter) title() string {
	if t := fm.str("title"); t != "" {
		return t
	}
	return fm.str("name")
}

// meta maps front matter keys onto the meta tags page analysis reads.
func (fm frontMatter) meta() [][2]string {
	var out [][2]string
	add := func(name, value string) {
		if value != "" {
			out = append(out, [2]string{name, value})
		}
	}
	add("description", fm.str("description"))
	add("author", fm.str("author"))
	add("article:published_time", fm.str("date"))

	var keywords []string
	for _, key := range []string{"keywords", "tags"} {
		switch v := fm[key].(type) {
		case []any:
			for _, k := range v {
				keywords = append(keywords, strings.TrimSpace(fmt.Sprint(k)))
			}
		case string:
			keywords = append(keywords, v)
		}
	}
	add("keywords", strings.Join(keywords, ","))
	return out
}

func markdownTitle(src string) string {
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
