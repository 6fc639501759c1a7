package models

import (
	"strings"
	"time"
)

// ContentType classifies a page.
type ContentType string

const (
	ContentArticle       ContentType = "article"
	ContentProduct       ContentType = "product"
	ContentCode          ContentType = "code"
	ContentDocumentation ContentType = "documentation"
	ContentSocialMedia   ContentType = "socialMedia"
	ContentNews          ContentType = "news"
	ContentUnknown       ContentType = "unknown"
)

// DetectableContentTypes lists the candidate types in tie-break order.
var DetectableContentTypes = []ContentType{
	ContentArticle,
	ContentProduct,
	ContentCode,
	ContentDocumentation,
	ContentSocialMedia,
	ContentNews,
}

// ElementKind tags the variant held by an Element.
type ElementKind string

const (
	ElementHeading   ElementKind = "heading"
	ElementParagraph ElementKind = "paragraph"
	ElementList      ElementKind = "list"
	ElementTable     ElementKind = "table"
	ElementCode      ElementKind = "code"
)

// Element is one typed unit of main content.
//
// Fields used per kind:
//   - heading: Level, Text
//   - paragraph: Text
//   - list: Ordered, Items
//   - table: Rows
//   - code: Language, Content
type Element struct {
	Kind      ElementKind `json:"type"`
	Level     int         `json:"level,omitempty"`
	Text      string      `json:"text,omitempty"`
	Ordered   bool        `json:"ordered,omitempty"`
	Items     []string    `json:"items,omitempty"`
	Rows      [][]string  `json:"rows,omitempty"`
	Language  string      `json:"language,omitempty"`
	Content   string      `json:"content,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
}

// Heading builds a heading element.
func Heading(level int, text string) Element {
	return Element{Kind: ElementHeading, Level: level, Text: text}
}

// Paragraph builds a paragraph element.
func Paragraph(text string) Element {
	return Element{Kind: ElementParagraph, Text: text}
}

// List builds a list element.
func List(ordered bool, items ...string) Element {
	return Element{Kind: ElementList, Ordered: ordered, Items: items}
}

// Table builds a table element.
func Table(rows [][]string) Element {
	return Element{Kind: ElementTable, Rows: rows}
}

// Code builds a code element.
func Code(language, content string) Element {
	return Element{Kind: ElementCode, Language: language, Content: content}
}

// PlainText returns the element's text content.
func (e Element) PlainText() string {
	switch e.Kind {
	case ElementHeading, ElementParagraph:
		return e.Text
	case ElementList:
		return strings.Join(e.Items, "\n")
	case ElementTable:
		rows := make([]string, len(e.Rows))
		for i, r := range e.Rows {
			rows[i] = strings.Join(r, " | ")
		}
		return strings.Join(rows, "\n")
	case ElementCode:
		return e.Content
	default:
		return ""
	}
}

// Metadata is the page-level metadata block.
type Metadata struct {
	Title         string            `json:"title"`
	URL           string            `json:"url"`
	Domain        string            `json:"domain"`
	Description   string            `json:"description,omitempty"`
	Keywords      []string          `json:"keywords,omitempty"`
	Author        string            `json:"author,omitempty"`
	PublishedDate string            `json:"publishedDate,omitempty"`
	Language      string            `json:"language"`
	Meta          map[string]string `json:"meta,omitempty"`
	OGData        map[string]string `json:"ogData,omitempty"`
	SchemaData    []SchemaEntry     `json:"schemaData,omitempty"`
}

// SchemaEntry is one JSON-LD block found on the page.
type SchemaEntry struct {
	Type string `json:"@type"`
	Name string `json:"name,omitempty"`
}

// MainContent is the extracted primary region.
type MainContent struct {
	Text     string    `json:"text"`
	Elements []Element `json:"elements"`
}

// HeadingRef is an entry of the page outline.
type HeadingRef struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id,omitempty"`
}

// Image is an image reference.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Link is an anchor on the page.
type Link struct {
	Href     string `json:"href"`
	Text     string `json:"text,omitempty"`
	External bool   `json:"external,omitempty"`
}

// Structure holds counts of structural page features.
type Structure struct {
	Headings    int  `json:"headings"`
	Paragraphs  int  `json:"paragraphs"`
	Images      int  `json:"images"`
	Links       int  `json:"links"`
	Lists       int  `json:"lists"`
	Tables      int  `json:"tables"`
	Forms       int  `json:"forms"`
	HasNav      bool `json:"hasNav"`
	HasFooter   bool `json:"hasFooter"`
	HasComments bool `json:"hasComments"`
}

// PageEntityType tags a pattern-matched surface form on a page.
type PageEntityType string

const (
	PageEntityPhrase PageEntityType = "phrase"
	PageEntityURL    PageEntityType = "url"
	PageEntityEmail  PageEntityType = "email"
	PageEntityNumber PageEntityType = "number"
)

// PageEntity is a surface form extracted from page text.
type PageEntity struct {
	Type  PageEntityType `json:"type"`
	Value string         `json:"value"`
}

// PageAnalysis is the typed result of analyzing one page.
type PageAnalysis struct {
	PageID         string       `json:"pageId"`
	ContentType    ContentType  `json:"contentType"`
	Metadata       Metadata     `json:"metadata"`
	MainContent    MainContent  `json:"mainContent"`
	Headings       []HeadingRef `json:"headings,omitempty"`
	Images         []Image      `json:"images,omitempty"`
	Links          []Link       `json:"links,omitempty"`
	Structure      Structure    `json:"structure"`
	Summary        string       `json:"summary"`
	KeyPoints      []string     `json:"keyPoints,omitempty"`
	Entities       []PageEntity `json:"entities,omitempty"`
	Topics         []string     `json:"topics,omitempty"`
	QualityScore   float64      `json:"qualityScore"`
	Timestamp      time.Time    `json:"timestamp"`
	AnalysisTimeMs int64        `json:"analysisTime"`
	Error          string       `json:"error,omitempty"`
}
