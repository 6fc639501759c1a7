// Package analyzer turns a page DOM into a typed PageAnalysis: content type,
// metadata, main content elements, key information and a quality score.
package analyzer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

// DefaultMaxNodes bounds element walks on very large pages.
const DefaultMaxNodes = 10000

// fallbackTextLen is the body text kept when analysis fails.
const fallbackTextLen = 1000

// Analyzer extracts structured information from pages.
type Analyzer struct {
	logger   *slog.Logger
	now      func() time.Time
	maxNodes int
}

// New creates an analyzer. A nil now uses time.Now.
func New(logger *slog.Logger, now func() time.Time) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Analyzer{logger: logger, now: now, maxNodes: DefaultMaxNodes}
}

// Analyze never fails: a panic during extraction yields a fallback analysis
// with ContentType unknown and Error set.
func (a *Analyzer) Analyze(doc dom.Document, pageID string) (result models.PageAnalysis) {
	start := a.now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("analyze page: %v", r)
			a.logger.Warn("page analysis failed, using fallback", "page_id", pageID, "error", err)
			result = a.fallback(doc, pageID, start, err)
		}
	}()

	md := extractMetadata(doc)
	bodyText := doc.Text()
	if body, ok := doc.QuerySelector("body"); ok {
		bodyText = body.Text()
	}

	ct := detectType(typeScores(doc, bodyText, md.SchemaData))
	region := a.findMainContent(doc, ct)
	mainText := region.Text()
	elements := a.extractElements(region)
	if len(elements) == 0 && mainText != "" {
		elements = []models.Element{models.Paragraph(mainText)}
	}
	structure := extractStructure(doc)

	result = models.PageAnalysis{
		PageID:       pageID,
		ContentType:  ct,
		Metadata:     md,
		MainContent:  models.MainContent{Text: mainText, Elements: elements},
		Headings:     extractHeadings(doc),
		Images:       extractImages(doc),
		Links:        extractLinks(doc),
		Structure:    structure,
		Summary:      summarize(elements, mainText),
		KeyPoints:    keyPoints(elements),
		Entities:     pageEntities(mainText),
		Topics:       topics(mainText),
		QualityScore: qualityScore(len(mainText), elements, structure),
		Timestamp:    start,
	}
	result.AnalysisTimeMs = a.now().Sub(start).Milliseconds()

	a.logger.Debug("page analyzed",
		"page_id", pageID,
		"content_type", ct,
		"elements", len(elements),
		"quality", result.QualityScore,
		"duration_ms", result.AnalysisTimeMs,
	)
	return result
}

// fallback builds a minimal analysis. Every DOM read is guarded since the
// document itself may be what failed.
func (a *Analyzer) fallback(doc dom.Document, pageID string, start time.Time, cause error) models.PageAnalysis {
	out := models.PageAnalysis{
		PageID:      pageID,
		ContentType: models.ContentUnknown,
		Metadata:    models.Metadata{Language: "en"},
		Timestamp:   start,
		Error:       cause.Error(),
	}

	guard := func(fn func()) {
		defer func() { _ = recover() }()
		fn()
	}
	guard(func() { out.Metadata.Title = doc.Title() })
	guard(func() {
		if loc := doc.Location(); loc != nil {
			out.Metadata.URL = loc.String()
			out.Metadata.Domain = loc.Hostname()
		}
	})
	guard(func() {
		out.MainContent.Text = textutil.TruncateChars(doc.Text(), fallbackTextLen)
	})

	out.AnalysisTimeMs = a.now().Sub(start).Milliseconds()
	return out
}
