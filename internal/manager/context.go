package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/pagewise/internal/builder"
	"github.com/raphaelgruber/pagewise/internal/crosspage"
	"github.com/raphaelgruber/pagewise/internal/memory"
	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/privacy"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

// Section headers appended after the session prompt.
const (
	MemoryInsightsHeader = "[Memory Insights]"
	CrossPageHeader      = "[Cross-Page Context]"
	ResearchHeader       = "[Research Session]"
)

const (
	insightFacts       = 5
	insightPreferences = 5
	insightQuestions   = 3
)

// BuildRequest selects what BuildContext assembles. Nil flags default to
// true.
type BuildRequest struct {
	Query            string `json:"query,omitempty"`
	Model            string `json:"targetModel,omitempty"`
	MaxTokens        int    `json:"maxTokens,omitempty"`
	IncludeMemory    *bool  `json:"includeMemory,omitempty"`
	IncludeCrossPage *bool  `json:"includeCrossPage,omitempty"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// MemoryInsights is what memory contributes to a context.
type MemoryInsights struct {
	Context       memory.Context      `json:"context"`
	Relevant      memory.Results      `json:"relevant"`
	OpenQuestions []models.Question   `json:"openQuestions,omitempty"`
	Extracted     []models.MemoryItem `json:"extracted,omitempty"`
	Stats         memory.Stats        `json:"stats"`
}

// Context is the assembled model context for one query.
type Context struct {
	Model          string             `json:"model"`
	Query          string             `json:"query,omitempty"`
	Session        builder.Context    `json:"session"`
	Memory         *MemoryInsights    `json:"memoryInsights,omitempty"`
	CrossPage      *crosspage.Context `json:"crossPage,omitempty"`
	Prompt         string             `json:"prompt"`
	Tokens         int                `json:"tokens"`
	TokenLimit     int                `json:"tokenLimit"`
	PrivacyApplied bool               `json:"privacyApplied,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// BuildContext composes the session context, memory insights and the
// cross-page view into one prompt bounded by the token limit. With
// privacy mode on every string in the result is redacted.
func (m *Manager) BuildContext(ctx context.Context, req BuildRequest) (Context, error) {
	if err := ctx.Err(); err != nil {
		return Context{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buildContext(req)
}

func (m *Manager) buildContext(req BuildRequest) (Context, error) {
	start := m.clock.Now()
	if req.Model == "" {
		req.Model = m.opts.DefaultModel
	}
	withMemory := m.cfg.EnableMemory && boolOr(req.IncludeMemory, true)
	withCrossPage := m.cfg.EnableCrossPage && boolOr(req.IncludeCrossPage, true)

	sess := m.builder.BuildContext(builder.BuildOptions{
		Query:                req.Query,
		Model:                req.Model,
		MaxTokens:            req.MaxTokens,
		IncludeMemory:        withMemory,
		IncludePages:         true,
		IncludeConversations: true,
	})
	out := Context{
		Model:      sess.Model,
		Query:      req.Query,
		Session:    sess,
		TokenLimit: sess.Meta.TokenLimit,
		Timestamp:  start,
	}
	if withMemory {
		out.Memory = m.memoryInsights(req.Query)
	}
	if withCrossPage {
		out.CrossPage = m.crossPageContext()
	}

	out.Prompt = assemblePrompt(sess.Prompt, out.Memory, out.CrossPage, out.TokenLimit)
	out.Tokens = textutil.EstimateTokens(out.Prompt)

	if m.cfg.PrivacyMode {
		redacted, err := privacy.Redact(out)
		if err != nil {
			return Context{}, fmt.Errorf("redact context: %w", err)
		}
		out = redacted
		out.PrivacyApplied = true

		// The placeholder can be longer than what it replaces.
		out.Prompt = fitPrompt(out.Prompt, out.TokenLimit)
		out.Tokens = textutil.EstimateTokens(out.Prompt)
		out.Session.Prompt = fitPrompt(out.Session.Prompt, out.Session.Meta.TokenLimit)
		out.Session.Meta.Tokens = textutil.EstimateTokens(out.Session.Prompt)
	}

	m.metrics.RecordBuild(m.clock.Now().Sub(start))
	m.logger.Debug("context built",
		"model", out.Model, "tokens", out.Tokens, "limit", out.TokenLimit,
		"memory", out.Memory != nil, "cross_page", out.CrossPage != nil)
	return out, nil
}

// memoryInsights queries memory for the query. A query failure already
// yields empty groups inside memory.
func (m *Manager) memoryInsights(query string) *MemoryInsights {
	ins := &MemoryInsights{
		Context:       m.memory.Context(),
		OpenQuestions: m.memory.OpenQuestions(),
		Stats:         m.memory.Stats(),
	}
	if strings.TrimSpace(query) != "" {
		ins.Relevant = m.memory.Query(query, memory.QueryOptions{})
		m.metrics.IncMemoryQueries()
	}
	return ins
}

// crossPageContext returns nil when building the view fails.
func (m *Manager) crossPageContext() (out *crosspage.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("cross-page context failed, omitting", "error", fmt.Errorf("cross-page context: %v", r))
			out = nil
		}
	}()
	c := m.crossPage.Context("", crosspage.ContextOptions{IncludeJourney: true})
	return &c
}

// assemblePrompt appends memory and cross-page sections to the session
// prompt while they fit and clips the result to limit tokens.
func assemblePrompt(session string, mem *MemoryInsights, cp *crosspage.Context, limit int) string {
	prompt := session
	for _, section := range []string{renderInsights(mem), renderCrossPage(cp)} {
		if section == "" {
			continue
		}
		next := section
		if prompt != "" {
			next = prompt + "\n\n" + section
		}
		if textutil.EstimateTokens(next) > limit {
			continue
		}
		prompt = next
	}
	return fitPrompt(prompt, limit)
}

// fitPrompt clips prompt to limit tokens.
func fitPrompt(prompt string, limit int) string {
	if textutil.EstimateTokens(prompt) > limit {
		return textutil.TruncateChars(prompt, limit*textutil.CharsPerToken)
	}
	return prompt
}

func renderInsights(mem *MemoryInsights) string {
	if mem == nil {
		return ""
	}
	var lines []string
	for _, p := range capped(mem.Context.Preferences, insightPreferences) {
		lines = append(lines, fmt.Sprintf("• prefers (%s): %s", p.Kind, p.Value))
	}
	facts := mem.Context.Facts
	if len(mem.Relevant.Facts) > 0 {
		facts = facts[:0:0]
		for _, match := range mem.Relevant.Facts {
			facts = append(facts, *match.Item.Fact)
		}
	}
	for _, f := range capped(facts, insightFacts) {
		lines = append(lines, "• "+f.Statement())
	}
	for _, q := range capped(mem.OpenQuestions, insightQuestions) {
		lines = append(lines, "• open question: "+q.Text)
	}
	if len(lines) == 0 {
		return ""
	}
	return MemoryInsightsHeader + "\n" + strings.Join(lines, "\n")
}

func renderCrossPage(cp *crosspage.Context) string {
	if cp == nil {
		return ""
	}
	var sb strings.Builder
	if len(cp.Related) > 0 || len(cp.Synthesis.Themes) > 0 {
		sb.WriteString(CrossPageHeader + "\n")
		for _, r := range cp.Related {
			fmt.Fprintf(&sb, "• %s (%s, %s %.2f)\n", r.Title, r.URL, r.Kind, r.Strength)
		}
		if len(cp.Synthesis.Themes) > 0 {
			sb.WriteString("Themes: " + strings.Join(cp.Synthesis.Themes, ", ") + "\n")
		}
	}
	if r := cp.Research; r != nil {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(ResearchHeader + "\n" + r.Name + "\n")
		if r.Goal != "" {
			sb.WriteString("Goal: " + r.Goal + "\n")
		}
		for _, f := range r.Findings {
			sb.WriteString("• " + f.Content + "\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

func capped[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
