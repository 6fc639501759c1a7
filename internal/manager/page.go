package manager

import (
	"context"
	"fmt"
	"slices"

	"github.com/raphaelgruber/pagewise/internal/crosspage"
	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/models"
)

// PageResult is returned by InitializePage.
type PageResult struct {
	PageContext      *crosspage.PageContext `json:"pageContext,omitempty"`
	ExtractedContent models.PageAnalysis    `json:"extractedContent"`
	FullContext      Context                `json:"fullContext"`
	Suggestions      []string               `json:"suggestions"`
}

var typeSuggestions = map[models.ContentType][]string{
	models.ContentArticle:       {"Summarize this article", "What are the key points?", "What is the author's main argument?"},
	models.ContentNews:          {"Summarize this story", "What happened and when?", "Who is involved?"},
	models.ContentProduct:       {"What are the pros and cons?", "Compare this with similar products", "Is this worth the price?"},
	models.ContentDocumentation: {"Explain this concept", "Show me an example", "What are the prerequisites?"},
	models.ContentCode:          {"Explain this code", "Are there any bugs?", "How could this be improved?"},
	models.ContentSocialMedia:   {"Summarize the discussion", "What are the main opinions?"},
	models.ContentUnknown:       {"Summarize this page", "What is this page about?"},
}

const maxSuggestions = 5

// InitializePage analyzes doc, adds it to the session and the cross-page
// graph, and returns the analysis with a fresh full context and
// follow-up suggestions.
func (m *Manager) InitializePage(ctx context.Context, doc dom.Document) (PageResult, error) {
	if err := ctx.Err(); err != nil {
		return PageResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.clock.Now()
	analysis := m.analyzer.Analyze(doc, m.newID())
	m.builder.AddPage(analysis)

	var res PageResult
	res.ExtractedContent = analysis
	if m.cfg.EnableCrossPage {
		pc, conns := m.crossPage.AddPage(analysis)
		res.PageContext = &pc
		m.metrics.AddCrossPageLinks(len(conns))
	}

	full, err := m.buildContext(BuildRequest{})
	if err != nil {
		return PageResult{}, fmt.Errorf("initialize page: %w", err)
	}
	res.FullContext = full
	res.Suggestions = suggestions(analysis, full.CrossPage)

	elapsed := m.clock.Now().Sub(start)
	m.metrics.RecordInitialize(elapsed)
	m.logger.Info("page initialized",
		"page_id", analysis.PageID,
		"content_type", analysis.ContentType,
		"quality", analysis.QualityScore,
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

// suggestions offers prompts for the content type followed by the
// cross-page synthesis suggestions, without duplicates.
func suggestions(page models.PageAnalysis, cp *crosspage.Context) []string {
	base, ok := typeSuggestions[page.ContentType]
	if !ok {
		base = typeSuggestions[models.ContentUnknown]
	}
	out := append([]string(nil), base...)
	if cp != nil {
		for _, s := range cp.Synthesis.Suggestions {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return capped(out, maxSuggestions)
}
