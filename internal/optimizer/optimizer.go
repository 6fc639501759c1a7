// Package optimizer scores page content against a query and fits the most
// relevant elements into a token budget as a structured prompt.
package optimizer

import (
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

// fallbackChars is the body text kept by the fallback prompt.
const fallbackChars = 1000

// Optimizer builds page prompts.
type Optimizer struct {
	logger  *slog.Logger
	weights Weights
}

// New creates an optimizer with DefaultWeights.
func New(logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{logger: logger, weights: DefaultWeights}
}

// Weights returns the relevance weights in use.
func (o *Optimizer) Weights() Weights {
	return o.weights
}

// Result is an optimized page context.
type Result struct {
	Prompt           string           `json:"prompt"`
	Model            string           `json:"model"`
	Relevance        Relevance        `json:"relevance"`
	Elements         []models.Element `json:"elements,omitempty"`
	Tokens           int              `json:"tokens"`
	Budget           int              `json:"budget"`
	EstimatedCost    float64          `json:"estimatedCost"`
	OriginalLength   int              `json:"originalLength"`
	OptimizedLength  int              `json:"optimizedLength"`
	CompressionRatio float64          `json:"compressionRatio"`
	Truncated        bool             `json:"truncated"`
	Error            string           `json:"error,omitempty"`
}

// Optimize runs relevance, prioritize, fit and render for page. maxTokens
// overrides the model's optimal size when positive. A panic in any stage
// yields the fallback prompt with zero relevance.
func (o *Optimizer) Optimize(page models.PageAnalysis, query, modelID string, maxTokens int) (res Result) {
	model, known := LookupModel(modelID)
	if !known && modelID != "" {
		o.logger.Debug("unknown model, using default", "model", modelID, "default", model.ID)
	}
	budget := model.OptimalSize
	if maxTokens > 0 {
		budget = maxTokens
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("optimize page: %v", r)
			o.logger.Warn("page optimization failed, using fallback", "page_id", page.PageID, "error", err)
			res = fallback(page, model, budget, err)
		}
	}()

	rel := o.Relevance(page, query)
	fitted := o.Fit(page, o.Prioritize(page, rel), budget, query)
	prompt := Render(fitted, page.Metadata, page.ContentType, query)
	if textutil.EstimateTokens(prompt) > budget {
		prompt = textutil.TruncateChars(prompt, budget*textutil.CharsPerToken)
	}

	res = Result{
		Prompt:          prompt,
		Model:           model.ID,
		Relevance:       rel,
		Elements:        fitted.Elements,
		Tokens:          textutil.EstimateTokens(prompt),
		Budget:          budget,
		OriginalLength:  len(page.MainContent.Text),
		OptimizedLength: len(prompt),
		Truncated:       fitted.Truncated,
	}
	res.EstimatedCost = float64(res.Tokens) * model.CostPerToken
	if res.OriginalLength > 0 {
		res.CompressionRatio = float64(res.OptimizedLength) / float64(res.OriginalLength)
	}
	return res
}

func fallback(page models.PageAnalysis, model Model, budget int, cause error) Result {
	prompt := "[Page: " + page.Metadata.Title + "]\n" +
		textutil.TruncateChars(page.MainContent.Text, fallbackChars)
	if textutil.EstimateTokens(prompt) > budget {
		prompt = textutil.TruncateChars(prompt, budget*textutil.CharsPerToken)
	}
	return Result{
		Prompt:          prompt,
		Model:           model.ID,
		Tokens:          textutil.EstimateTokens(prompt),
		Budget:          budget,
		EstimatedCost:   float64(textutil.EstimateTokens(prompt)) * model.CostPerToken,
		OriginalLength:  len(page.MainContent.Text),
		OptimizedLength: len(prompt),
		Error:           cause.Error(),
	}
}
