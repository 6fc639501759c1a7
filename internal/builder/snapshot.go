package builder

import (
	"slices"
	"sort"
	"time"

	"github.com/raphaelgruber/pagewise/internal/models"
)

// Snapshot is the serializable session state.
type Snapshot struct {
	StartTime             time.Time                `json:"startTime"`
	CurrentPageID         string                   `json:"currentPageId,omitempty"`
	CurrentConversationID string                   `json:"currentConversationId,omitempty"`
	Pages                 []PageEntry              `json:"pages"`
	Conversations         []ConversationEntry      `json:"conversations"`
	Timeline              []TimelineEvent          `json:"timeline"`
	Relationships         models.Pairs[[]Relation] `json:"relationships"`
}

// Snapshot copies the current state. Pages and conversations keep their
// insertion order.
func (b *Builder) Snapshot() Snapshot {
	s := Snapshot{
		StartTime:             b.startTime,
		CurrentPageID:         b.currentPageID,
		CurrentConversationID: b.currentConvID,
		Pages:                 make([]PageEntry, 0, len(b.pages)),
		Conversations:         make([]ConversationEntry, 0, len(b.conversations)),
		Timeline:              slices.Clone(b.timeline),
		Relationships:         make(models.Pairs[[]Relation], 0, len(b.relationships)),
	}
	for _, p := range b.pages {
		s.Pages = append(s.Pages, *p)
	}
	for _, c := range b.conversations {
		s.Conversations = append(s.Conversations, *c)
	}
	keys := make([]string, 0, len(b.relationships))
	for k := range b.relationships {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Relationships = append(s.Relationships, models.Pair[[]Relation]{Key: k, Value: slices.Clone(b.relationships[k])})
	}
	return s
}

// Restore replaces the current state with s.
func (b *Builder) Restore(s Snapshot) {
	b.Clear()
	b.startTime = s.StartTime
	b.currentPageID = s.CurrentPageID
	b.currentConvID = s.CurrentConversationID
	for _, p := range s.Pages {
		b.pages = append(b.pages, &p)
	}
	for _, c := range s.Conversations {
		c.Conversation.Messages = slices.Clone(c.Conversation.Messages)
		b.conversations = append(b.conversations, &c)
	}
	b.timeline = slices.Clone(s.Timeline)
	for _, e := range s.Relationships {
		b.relationships[e.Key] = slices.Clone(e.Value)
	}
}
