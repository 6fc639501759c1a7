package manager

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/privacy"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

// researchIntents capture the research subject of a user message.
var researchIntents = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bresearch(?:ing)?\s+(?:on|about|into|for)\s+(.+)`),
	regexp.MustCompile(`(?i)\b(?:i(?:'m| am)\s+)?(?:investigating|studying|exploring)\s+(.+)`),
	regexp.MustCompile(`(?i)\blearn(?:ing)?\s+(?:more\s+)?about\s+(.+)`),
	regexp.MustCompile(`(?i)\bcompar(?:e|ing)\s+(.+\s+(?:and|with|vs\.?|versus)\s+.+)`),
	regexp.MustCompile(`(?i)\bfind(?:ing)?\s+(?:out\s+)?(?:more\s+)?(?:information|info|sources)\s+(?:on|about)\s+(.+)`),
}

const researchSubjectChars = 60

// DetectResearchIntent returns the subject of a research request in text.
func DetectResearchIntent(text string) (string, bool) {
	for _, re := range researchIntents {
		if m := re.FindStringSubmatch(text); m != nil {
			subject := strings.TrimRight(strings.TrimSpace(m[1]), ".!?,;:")
			if subject != "" {
				return textutil.Ellipsize(subject, researchSubjectChars), true
			}
		}
	}
	return "", false
}

// ResearchMode reports the research state after a message.
type ResearchMode struct {
	Active  bool                    `json:"active"`
	Started bool                    `json:"started,omitempty"`
	Session *models.ResearchSession `json:"session,omitempty"`
}

// MessageResult is returned by ProcessMessage.
type MessageResult struct {
	ConversationID string          `json:"conversationId"`
	Context        Context         `json:"context"`
	MemoryInsights *MemoryInsights `json:"memoryInsights,omitempty"`
	ResearchMode   ResearchMode    `json:"researchMode"`
}

// ProcessMessage appends msg to the current conversation, updates memory
// and, for user messages, starts a research session when the message asks
// for research and none is active. A new conversation starts when none
// exists or the current one belongs to another page.
func (m *Manager) ProcessMessage(ctx context.Context, msg models.Message) (MessageResult, error) {
	if err := ctx.Err(); err != nil {
		return MessageResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.clock.Now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = start
	}
	conv := m.currentConversation(start)
	conv.Messages = append(conv.Messages, msg)
	m.builder.AddConversation(conv)

	var extracted []models.MemoryItem
	if m.cfg.EnableMemory {
		extracted = m.memory.ProcessConversation(conv)
	}

	research := m.updateResearch(msg)

	query := ""
	if msg.Role == models.RoleUser {
		query = msg.Content
	}
	built, err := m.buildContext(BuildRequest{Query: query})
	if err != nil {
		return MessageResult{}, fmt.Errorf("process message: %w", err)
	}

	res := MessageResult{
		ConversationID: conv.ID,
		Context:        built,
		ResearchMode:   research,
	}
	if built.Memory != nil {
		ins := *built.Memory
		ins.Extracted = extracted
		if built.PrivacyApplied {
			if ins.Extracted, err = privacy.Redact(extracted); err != nil {
				return MessageResult{}, fmt.Errorf("process message: %w", err)
			}
		}
		res.MemoryInsights = &ins
	}

	elapsed := m.clock.Now().Sub(start)
	m.metrics.RecordMessage(elapsed)
	m.logger.Debug("message processed",
		"conversation_id", conv.ID, "role", msg.Role,
		"extracted", len(extracted), "research", research.Active,
		"duration_ms", elapsed.Milliseconds())
	return res, nil
}

func (m *Manager) currentConversation(now time.Time) models.Conversation {
	page, _ := m.builder.CurrentPage()
	if id := m.builder.CurrentConversationID(); id != "" {
		if conv, ok := m.builder.Conversation(id); ok && conv.PageID == page.PageID {
			conv.Messages = slices.Clone(conv.Messages)
			return conv
		}
	}
	return models.Conversation{ID: m.newID(), PageID: page.PageID, Timestamp: now}
}

func (m *Manager) updateResearch(msg models.Message) ResearchMode {
	if !m.cfg.EnableCrossPage {
		return ResearchMode{}
	}
	var mode ResearchMode
	if msg.Role == models.RoleUser {
		if _, active := m.crossPage.ActiveResearch(); !active {
			if subject, ok := DetectResearchIntent(msg.Content); ok {
				if _, err := m.crossPage.StartResearch(researchPrefix+subject, msg.Content); err == nil {
					mode.Started = true
				}
			}
		}
		var questions []string
		for _, q := range m.opts.Extractor.ExtractQuestions(msg.Content) {
			questions = append(questions, q.Text)
		}
		m.crossPage.AddQuestions(questions...)
	}
	if s, ok := m.crossPage.ActiveResearch(); ok {
		mode.Active = true
		mode.Session = &s
	}
	return mode
}
