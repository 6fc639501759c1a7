// Package dom provides the read-only document view the analyzer consumes.
// The default implementation parses HTML with golang.org/x/net/html and
// answers CSS selectors through goquery.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node is a read-only element of a document.
type Node interface {
	Tag() string
	// Text returns visible descendant text with whitespace collapsed.
	Text() string
	// RawText returns descendant text with whitespace preserved.
	RawText() string
	Attr(name string) string
	Matches(selector string) bool
	QuerySelector(selector string) (Node, bool)
	QuerySelectorAll(selector string) []Node
	Children() []Node
}

// Document is a parsed page plus its location.
type Document interface {
	Node
	Title() string
	Location() *url.URL
}

// skipped elements never contribute visible text.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"iframe":   true,
}

var blocks = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true, "aside": true,
	"header": true, "footer": true, "nav": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true, "table": true, "tr": true, "td": true, "th": true,
	"br": true, "figure": true, "figcaption": true, "dd": true, "dt": true,
}

// element adapts a single-node goquery selection to Node.
type element struct {
	sel *goquery.Selection
}

func wrap(sel *goquery.Selection) element {
	return element{sel: sel}
}

func (e element) Tag() string {
	return goquery.NodeName(e.sel)
}

func (e element) Text() string {
	return strings.Join(strings.Fields(e.RawText()), " ")
}

// RawText includes the node's own text children, so a script element read
// directly still yields its source. Hidden descendants are skipped.
func (e element) RawText() string {
	var sb strings.Builder
	for _, n := range e.sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectText(c, &sb)
		}
	}
	return sb.String()
}

func (e element) Attr(name string) string {
	return e.sel.AttrOr(name, "")
}

func (e element) Matches(selector string) bool {
	return e.sel.Is(selector)
}

func (e element) QuerySelector(selector string) (Node, bool) {
	found := e.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, false
	}
	return wrap(found), true
}

func (e element) QuerySelectorAll(selector string) []Node {
	found := e.sel.Find(selector)
	out := make([]Node, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, wrap(s))
	})
	return out
}

func (e element) Children() []Node {
	kids := e.sel.Children()
	out := make([]Node, 0, kids.Length())
	kids.Each(func(_ int, s *goquery.Selection) {
		out = append(out, wrap(s))
	})
	return out
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipped[n.Data] {
			return
		}
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blocks[n.Data]
	if block {
		sb.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if block {
		sb.WriteString("\n")
	}
}

// HTMLDocument is a Document backed by goquery.
type HTMLDocument struct {
	element
	doc      *goquery.Document
	location *url.URL
	title    string
}

// Parse reads HTML from r. location may be empty.
func Parse(r io.Reader, location string) (*HTMLDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	loc, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location %q: %w", location, err)
	}

	return &HTMLDocument{
		element:  wrap(doc.Selection),
		doc:      doc,
		location: loc,
		title:    strings.TrimSpace(doc.Find("title").First().Text()),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(src, location string) (*HTMLDocument, error) {
	return Parse(strings.NewReader(src), location)
}

// Title returns the document title.
func (d *HTMLDocument) Title() string {
	return d.title
}

// Location returns the page URL. Never nil.
func (d *HTMLDocument) Location() *url.URL {
	return d.location
}

// HTML renders the document back to markup.
func (d *HTMLDocument) HTML() (string, error) {
	var buf bytes.Buffer
	for _, n := range d.doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

// WalkAction controls Walk traversal.
type WalkAction int

const (
	// Descend visits the node's children.
	Descend WalkAction = iota
	// SkipChildren continues with the next sibling.
	SkipChildren
	// Stop ends the walk.
	Stop
)

// Walk visits n and its descendants in document order, calling fn on at most
// limit nodes. It returns the number of nodes visited.
func Walk(n Node, limit int, fn func(Node) WalkAction) int {
	visited := 0
	var visit func(Node) bool
	visit = func(cur Node) bool {
		if visited >= limit {
			return false
		}
		visited++
		switch fn(cur) {
		case Stop:
			return false
		case SkipChildren:
			return true
		}
		for _, c := range cur.Children() {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	visit(n)
	return visited
}
