package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/models"
)

// AnalyzePageInput defines the input schema for the analyze_page tool.
type AnalyzePageInput struct {
	URL      string `json:"url,omitempty" jsonschema:"Page URL. Fetched when html and markdown are empty"`
	HTML     string `json:"html,omitempty" jsonschema:"Page markup"`
	Markdown string `json:"markdown,omitempty" jsonschema:"Page source as Markdown"`
}

// AnalyzePageResult is the compact page analysis returned to the client.
type AnalyzePageResult struct {
	PageID      string             `json:"pageId"`
	Title       string             `json:"title"`
	URL         string             `json:"url"`
	ContentType models.ContentType `json:"contentType"`
	Summary     string             `json:"summary"`
	KeyPoints   []string           `json:"keyPoints,omitempty"`
	Topics      []string           `json:"topics,omitempty"`
	Quality     float64            `json:"qualityScore"`
	Related     int                `json:"relatedPages"`
	Suggestions []string           `json:"suggestions"`
	Tokens      int                `json:"contextTokens"`
}

// NewAnalyzePageHandler analyzes a page and makes it the current page.
func NewAnalyzePageHandler(deps *Dependencies) mcp.ToolHandlerFor[AnalyzePageInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AnalyzePageInput) (*mcp.CallToolResult, any, error) {
		doc, errRes := loadDocument(ctx, deps, input)
		if errRes != nil {
			return errRes, nil, nil
		}

		res, err := deps.Manager.InitializePage(ctx, doc)
		if err != nil {
			deps.Logger.Error("analyze page failed", "url", input.URL, "error", err)
			return ErrorResult("Failed to analyze page", err.Error()), nil, nil
		}

		page := res.ExtractedContent
		out := AnalyzePageResult{
			PageID:      page.PageID,
			Title:       page.Metadata.Title,
			URL:         page.Metadata.URL,
			ContentType: page.ContentType,
			Summary:     page.Summary,
			KeyPoints:   page.KeyPoints,
			Topics:      page.Topics,
			Quality:     page.QualityScore,
			Suggestions: res.Suggestions,
			Tokens:      res.FullContext.Tokens,
		}
		if cp := res.FullContext.CrossPage; cp != nil {
			out.Related = len(cp.Related)
		}
		if page.Error != "" {
			deps.Logger.Warn("page analyzed with fallback", "page_id", page.PageID, "error", page.Error)
		}
		return JSONResult(out), nil, nil
	}
}

func loadDocument(ctx context.Context, deps *Dependencies, input AnalyzePageInput) (dom.Document, *mcp.CallToolResult) {
	switch {
	case strings.TrimSpace(input.HTML) != "":
		doc, err := dom.ParseString(input.HTML, input.URL)
		if err != nil {
			return nil, ErrorResult("Failed to parse html", err.Error())
		}
		return doc, nil
	case strings.TrimSpace(input.Markdown) != "":
		doc, err := dom.FromMarkdown([]byte(input.Markdown), input.URL)
		if err != nil {
			return nil, ErrorResult("Failed to parse markdown", err.Error())
		}
		return doc, nil
	case input.URL != "":
		if deps.Fetcher == nil {
			return nil, ErrorResult("Page fetching is not configured", "Pass the page html instead")
		}
		page, err := deps.Fetcher.Fetch(ctx, input.URL)
		if err != nil {
			return nil, failure(deps, "fetch_page", err)
		}
		doc, err := page.Document()
		if err != nil {
			return nil, ErrorResult("Failed to parse "+input.URL, err.Error())
		}
		return doc, nil
	}
	return nil, ErrorResult("A page is required", "Provide html, markdown or url")
}
