package builder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/optimizer"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

// Shares of the token limit given to each section.
const (
	currentPageShare  = 0.4
	historyPageShare  = 0.2
	conversationShare = 0.2
	memoryShare       = 0.1
	relevanceWeight   = 0.7
	pageRecencyWeight = 0.3
	messageWeight     = 0.5
	memoryHitWeight   = 0.3
	convRecencyWeight = 0.2
	maxRelationships  = 5
	summaryChars      = 300
	messageChars      = 200
	recentMessages    = 6
	noteConfidence    = 0.6
)

// Section headers of the rendered builder context.
const (
	RelatedPagesHeader = "[Related Pages]"
	ConversationHeader = "[Conversation History]"
	MemoryHeader       = "[Memory]"
)

// BuildOptions controls one BuildContext call.
type BuildOptions struct {
	Query                string
	Model                string
	MaxTokens            int
	IncludeMemory        bool
	IncludePages         bool
	IncludeConversations bool
}

// CurrentPage is the optimized current page.
type CurrentPage struct {
	PageID    string  `json:"pageId"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Prompt    string  `json:"prompt"`
	Relevance float64 `json:"relevance"`
	Tokens    int     `json:"tokens"`
	Truncated bool    `json:"truncated"`
	Error     string  `json:"error,omitempty"`
}

// PageSummary is a history page selected for the context.
type PageSummary struct {
	PageID  string  `json:"pageId"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
}

// ConversationSummary is a past conversation selected for the context.
type ConversationSummary struct {
	ID       string           `json:"id"`
	PageID   string           `json:"pageId,omitempty"`
	Messages []models.Message `json:"messages"`
	Score    float64          `json:"score"`
}

// Meta describes the session behind a context.
type Meta struct {
	SessionDuration   float64 `json:"sessionDuration"` // seconds
	PageCount         int     `json:"pageCount"`
	ConversationCount int     `json:"conversationCount"`
	PrimaryTopic      string  `json:"primaryTopic,omitempty"`
	Intent            Intent  `json:"userIntent"`
	TokenLimit        int     `json:"tokenLimit"`
	Tokens            int     `json:"tokens"`
}

// Context is the builder's share of a model context.
type Context struct {
	Model         string                `json:"model"`
	Query         string                `json:"query,omitempty"`
	CurrentPage   *CurrentPage          `json:"currentPage,omitempty"`
	Pages         []PageSummary         `json:"pages,omitempty"`
	Conversations []ConversationSummary `json:"conversations,omitempty"`
	Memory        []models.MemoryItem   `json:"memory,omitempty"`
	Relationships []Relation            `json:"relationships,omitempty"`
	Meta          Meta                  `json:"meta"`
	Prompt        string                `json:"prompt"`
}

// TokenLimit returns maxTokens when positive, otherwise the model's
// context limit.
func TokenLimit(model string, maxTokens int) int {
	if maxTokens > 0 {
		return maxTokens
	}
	m, _ := optimizer.LookupModel(model)
	return m.ContextLimit
}

// BuildContext assembles the current page, relevant history pages and
// conversations, memory notes and page relationships, each fitted to its
// share of the token limit.
func (b *Builder) BuildContext(opts BuildOptions) Context {
	model, _ := optimizer.LookupModel(opts.Model)
	limit := TokenLimit(model.ID, opts.MaxTokens)
	ctx := Context{Model: model.ID, Query: opts.Query}

	var current *PageEntry
	if current = b.page(b.currentPageID); current != nil {
		res := b.opt.Optimize(current.Page, opts.Query, model.ID, int(currentPageShare*float64(limit)))
		ctx.CurrentPage = &CurrentPage{
			PageID:    current.PageID,
			Title:     current.Page.Metadata.Title,
			URL:       current.Page.Metadata.URL,
			Prompt:    res.Prompt,
			Relevance: res.Relevance.Overall,
			Tokens:    res.Tokens,
			Truncated: res.Truncated,
			Error:     res.Error,
		}
		ctx.Relationships = b.relationsFor(current.PageID)
	}
	if opts.IncludePages {
		ctx.Pages = b.selectPages(current, opts.Query, int(historyPageShare*float64(limit)))
	}
	if opts.IncludeConversations {
		ctx.Conversations = b.selectConversations(opts.Query, int(conversationShare*float64(limit)))
	}
	if opts.IncludeMemory {
		ctx.Memory = b.memoryNotes(int(memoryShare * float64(limit)))
	}

	ctx.Prompt = ctx.Render()
	if textutil.EstimateTokens(ctx.Prompt) > limit {
		ctx.Prompt = textutil.TruncateChars(ctx.Prompt, limit*textutil.CharsPerToken)
	}
	ctx.Meta = b.meta(opts.Query, limit)
	ctx.Meta.Tokens = textutil.EstimateTokens(ctx.Prompt)
	return ctx
}

func (b *Builder) relationsFor(pageID string) []Relation {
	var rels []Relation
	for _, kind := range []string{RelationSameDomain, RelationSharedTopics} {
		rels = append(rels, b.relationships[RelationKey(kind, pageID)]...)
	}
	sort.SliceStable(rels, func(i, j int) bool {
		if rels[i].Strength != rels[j].Strength {
			return rels[i].Strength > rels[j].Strength
		}
		return rels[i].Target < rels[j].Target
	})
	if len(rels) > maxRelationships {
		rels = rels[:maxRelationships]
	}
	return rels
}

// selectPages ranks history pages by 0.7 relevance + 0.3 normalized
// recency and keeps those whose summaries fit budget.
func (b *Builder) selectPages(current *PageEntry, query string, budget int) []PageSummary {
	var history []*PageEntry
	for _, p := range b.pages {
		if current == nil || p.PageID != current.PageID {
			history = append(history, p)
		}
	}
	if len(history) == 0 {
		return nil
	}

	oldest, newest := history[0].Added, history[0].Added
	for _, p := range history {
		if p.Added.Before(oldest) {
			oldest = p.Added
		}
		if p.Added.After(newest) {
			newest = p.Added
		}
	}
	span := newest.Sub(oldest)

	scored := make([]PageSummary, 0, len(history))
	for _, p := range history {
		var rel float64
		if query != "" {
			rel = textutil.OverlapRatio(query, p.Page.Metadata.Title+" "+p.Page.Summary+" "+strings.Join(p.Page.Topics, " "))
		} else if current != nil {
			rel = textutil.Jaccard(p.Page.Topics, current.Page.Topics)
		}
		recency := 1.0
		if span > 0 {
			recency = float64(p.Added.Sub(oldest)) / float64(span)
		}
		scored = append(scored, PageSummary{
			PageID:  p.PageID,
			Title:   p.Page.Metadata.Title,
			URL:     p.Page.Metadata.URL,
			Summary: textutil.Ellipsize(p.Page.Summary, summaryChars),
			Score:   textutil.Clamp01(relevanceWeight*rel + pageRecencyWeight*recency),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	var out []PageSummary
	used := textutil.EstimateTokens(RelatedPagesHeader + "\n")
	for _, s := range scored {
		cost := textutil.EstimateTokens(renderPage(s) + "\n")
		if used+cost > budget {
			continue
		}
		out = append(out, s)
		used += cost
	}
	return out
}

// selectConversations ranks conversations by 0.5 message overlap + 0.3
// memory hit + 0.2 recency and keeps those whose recent messages fit budget.
func (b *Builder) selectConversations(query string, budget int) []ConversationSummary {
	if len(b.conversations) == 0 {
		return nil
	}
	n := len(b.conversations)
	scored := make([]ConversationSummary, 0, n)
	for i, c := range b.conversations {
		overlap, hit := 0.0, 0.0
		if query != "" {
			for _, m := range c.Conversation.Messages {
				overlap = max(overlap, textutil.OverlapRatio(query, m.Content))
			}
			for _, note := range c.Notes {
				if textutil.OverlapRatio(query, note.Text()) > 0 {
					hit = 1
					break
				}
			}
		}
		recency := 1.0
		if n > 1 {
			recency = float64(i) / float64(n-1)
		}
		msgs := c.Conversation.Messages
		if len(msgs) > recentMessages {
			msgs = msgs[len(msgs)-recentMessages:]
		}
		clipped := make([]models.Message, len(msgs))
		for j, m := range msgs {
			m.Content = textutil.Ellipsize(m.Content, messageChars)
			clipped[j] = m
		}
		scored = append(scored, ConversationSummary{
			ID:       c.Conversation.ID,
			PageID:   c.Conversation.PageID,
			Messages: clipped,
			Score:    textutil.Clamp01(messageWeight*overlap + memoryHitWeight*hit + convRecencyWeight*recency),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	var out []ConversationSummary
	used := textutil.EstimateTokens(ConversationHeader + "\n")
	for _, s := range scored {
		if len(s.Messages) == 0 {
			continue
		}
		cost := textutil.EstimateTokens(renderConversation(s) + "\n")
		if used+cost > budget {
			continue
		}
		out = append(out, s)
		used += cost
	}
	return out
}

// memoryNotes aggregates distinct high-confidence notes across
// conversations, newest conversation first, within budget.
func (b *Builder) memoryNotes(budget int) []models.MemoryItem {
	seen := make(map[string]bool)
	var out []models.MemoryItem
	used := textutil.EstimateTokens(MemoryHeader + "\n")
	for i := len(b.conversations) - 1; i >= 0; i-- {
		for _, note := range b.conversations[i].Notes {
			key := string(note.Kind) + "/" + note.Key()
			if seen[key] || note.Confidence() < noteConfidence {
				continue
			}
			seen[key] = true
			cost := textutil.EstimateTokens(renderNote(note) + "\n")
			if used+cost > budget {
				continue
			}
			out = append(out, note)
			used += cost
		}
	}
	return out
}

func (b *Builder) meta(query string, limit int) Meta {
	m := Meta{
		PageCount:         len(b.pages),
		ConversationCount: len(b.conversations),
		PrimaryTopic:      b.PrimaryTopic(),
		Intent:            ClassifyIntent(query),
		TokenLimit:        limit,
	}
	if n := len(b.timeline); n > 1 {
		m.SessionDuration = b.timeline[n-1].Timestamp.Sub(b.timeline[0].Timestamp).Seconds()
	}
	return m
}

// Render writes the context as prompt text: the optimized current page
// followed by related pages, conversation history and memory sections.
func (c Context) Render() string {
	var sb strings.Builder
	if c.CurrentPage != nil {
		sb.WriteString(c.CurrentPage.Prompt)
		sb.WriteString("\n")
	}
	if len(c.Pages) > 0 {
		sb.WriteString("\n" + RelatedPagesHeader + "\n")
		for _, p := range c.Pages {
			sb.WriteString(renderPage(p) + "\n")
		}
	}
	if len(c.Conversations) > 0 {
		sb.WriteString("\n" + ConversationHeader + "\n")
		for _, cv := range c.Conversations {
			sb.WriteString(renderConversation(cv) + "\n")
		}
	}
	if len(c.Memory) > 0 {
		sb.WriteString("\n" + MemoryHeader + "\n")
		for _, n := range c.Memory {
			sb.WriteString(renderNote(n) + "\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

func renderPage(p PageSummary) string {
	line := "• " + p.Title
	if p.URL != "" {
		line += " (" + p.URL + ")"
	}
	if p.Summary != "" {
		line += ": " + p.Summary
	}
	return line
}

func renderConversation(c ConversationSummary) string {
	lines := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		lines[i] = string(m.Role) + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func renderNote(n models.MemoryItem) string {
	switch n.Kind {
	case models.MemoryQuestion:
		status := "open"
		if n.Question.Answered {
			status = "answered"
		}
		return fmt.Sprintf("• question (%s): %s", status, n.Text())
	case models.MemoryPreference:
		return fmt.Sprintf("• preference (%s): %s", n.Preference.Kind, n.Text())
	case models.MemoryEntity, models.MemoryFact, models.MemoryTopic:
		return fmt.Sprintf("• %s: %s", n.Kind, n.Text())
	default:
		return "• " + n.Text()
	}
}

// Intent is the inferred purpose of a query.
type Intent string

const (
	IntentQuestion      Intent = "question"
	IntentExplanation   Intent = "explanation"
	IntentSummarization Intent = "summarization"
	IntentAssistance    Intent = "assistance"
	IntentGeneral       Intent = "general"
)

var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentSummarization, []string{"summarize", "summarise", "summary", "tldr", "tl;dr", "overview", "key points"}},
	{IntentExplanation, []string{"explain", "why", "what does", "what is", "meaning", "describe"}},
	{IntentAssistance, []string{"help", "how to", "how do i", "can you", "could you", "fix", "write", "create"}},
}

var questionStarters = map[string]struct{}{
	"what": {}, "who": {}, "when": {}, "where": {}, "which": {}, "how": {},
	"is": {}, "are": {}, "do": {}, "does": {}, "can": {}, "should": {},
}

// ClassifyIntent buckets a query by keyword.
func ClassifyIntent(query string) Intent {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return IntentGeneral
	}
	for _, ik := range intentKeywords {
		for _, k := range ik.keywords {
			if strings.Contains(q, k) {
				return ik.intent
			}
		}
	}
	if strings.HasSuffix(q, "?") {
		return IntentQuestion
	}
	if words := textutil.Tokenize(q); len(words) > 0 {
		if _, ok := questionStarters[words[0]]; ok {
			return IntentQuestion
		}
	}
	return IntentGeneral
}
