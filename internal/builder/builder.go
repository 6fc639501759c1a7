// Package builder owns the session aggregate of pages, conversations and
// their timeline, and assembles token-budgeted context from it.
package builder

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/raphaelgruber/pagewise/internal/memory"
	"github.com/raphaelgruber/pagewise/internal/models"
	"github.com/raphaelgruber/pagewise/internal/optimizer"
	"github.com/raphaelgruber/pagewise/internal/textutil"
)

// Options bounds the session.
type Options struct {
	MaxPages           int
	MaxConversations   int
	MaxTimelineEvents  int
	MaxSessionBytes    int
	CleanupInterval    time.Duration
	ConversationMaxAge time.Duration
}

// DefaultOptions returns the standard session caps.
func DefaultOptions() Options {
	return Options{
		MaxPages:           10,
		MaxConversations:   50,
		MaxTimelineEvents:  100,
		MaxSessionBytes:    50 << 20,
		CleanupInterval:    5 * time.Minute,
		ConversationMaxAge: 30 * time.Minute,
	}
}

// Relation kinds kept in the relationship map.
const (
	RelationSameDomain   = "same-domain"
	RelationSharedTopics = "shared-topics"

	sameDomainStrength = 0.8
	cleanupPageShare   = 0.3
)

// PageEntry is a page held by the session.
type PageEntry struct {
	PageID string              `json:"pageId"`
	Page   models.PageAnalysis `json:"page"`
	Added  time.Time           `json:"added"`
}

// ConversationEntry is a conversation held by the session with the memory
// notes extracted from it.
type ConversationEntry struct {
	Conversation models.Conversation `json:"conversation"`
	Notes        []models.MemoryItem `json:"notes,omitempty"`
	Updated      time.Time           `json:"updated"`
}

// EventKind tags timeline events.
type EventKind string

const (
	EventPage         EventKind = "page"
	EventConversation EventKind = "conversation"
	EventMessage      EventKind = "message"
)

// TimelineEvent records one session mutation.
type TimelineEvent struct {
	Kind      EventKind `json:"type"`
	RefID     string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label,omitempty"`
}

// Relation links a page to another page.
type Relation struct {
	Kind     string   `json:"type"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Strength float64  `json:"strength"`
	Shared   []string `json:"sharedTopics,omitempty"`
}

// RelationKey is the relationship map key "{kind}_{sourceId}".
func RelationKey(kind, source string) string {
	return kind + "_" + source
}

// Builder is the session aggregate. It is not safe for concurrent use.
type Builder struct {
	logger    *slog.Logger
	now       func() time.Time
	opt       *optimizer.Optimizer
	extractor memory.Extractor
	opts      Options

	startTime     time.Time
	currentPageID string
	currentConvID string
	pages         []*PageEntry
	conversations []*ConversationEntry
	timeline      []TimelineEvent
	relationships map[string][]Relation
	lastSizeCheck time.Time
}

// New creates an empty session. Zero option fields take their defaults.
func New(logger *slog.Logger, now func() time.Time, opt *optimizer.Optimizer, extractor memory.Extractor, opts Options) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if opt == nil {
		opt = optimizer.New(logger)
	}
	if extractor == nil {
		extractor = memory.RegexExtractor{}
	}
	def := DefaultOptions()
	if opts.MaxPages <= 0 {
		opts.MaxPages = def.MaxPages
	}
	if opts.MaxConversations <= 0 {
		opts.MaxConversations = def.MaxConversations
	}
	if opts.MaxTimelineEvents <= 0 {
		opts.MaxTimelineEvents = def.MaxTimelineEvents
	}
	if opts.MaxSessionBytes <= 0 {
		opts.MaxSessionBytes = def.MaxSessionBytes
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = def.CleanupInterval
	}
	if opts.ConversationMaxAge <= 0 {
		opts.ConversationMaxAge = def.ConversationMaxAge
	}
	b := &Builder{logger: logger, now: now, opt: opt, extractor: extractor, opts: opts}
	b.Clear()
	return b
}

// Clear empties the session.
func (b *Builder) Clear() {
	b.startTime = b.now()
	b.currentPageID = ""
	b.currentConvID = ""
	b.pages = nil
	b.conversations = nil
	b.timeline = nil
	b.relationships = make(map[string][]Relation)
	b.lastSizeCheck = time.Time{}
}

// CurrentPage returns the most recently added page.
func (b *Builder) CurrentPage() (models.PageAnalysis, bool) {
	if e := b.page(b.currentPageID); e != nil {
		return e.Page, true
	}
	return models.PageAnalysis{}, false
}

// CurrentConversationID is the id of the most recently updated conversation.
func (b *Builder) CurrentConversationID() string {
	return b.currentConvID
}

// Conversation returns the stored conversation with id.
func (b *Builder) Conversation(id string) (models.Conversation, bool) {
	if e := b.conversation(id); e != nil {
		return e.Conversation, true
	}
	return models.Conversation{}, false
}

// Counts returns the number of pages and conversations held.
func (b *Builder) Counts() (pages, conversations int) {
	return len(b.pages), len(b.conversations)
}

func (b *Builder) page(id string) *PageEntry {
	for _, p := range b.pages {
		if p.PageID == id {
			return p
		}
	}
	return nil
}

func (b *Builder) conversation(id string) *ConversationEntry {
	for _, c := range b.conversations {
		if c.Conversation.ID == id {
			return c
		}
	}
	return nil
}

// AddPage makes page the current page, links it to the pages already held
// and evicts the oldest page beyond the cap.
func (b *Builder) AddPage(page models.PageAnalysis) {
	now := b.now()
	if b.page(page.PageID) != nil {
		b.removePage(page.PageID)
	}
	entry := &PageEntry{PageID: page.PageID, Page: page, Added: now}
	b.updateRelationships(entry)
	b.pages = append(b.pages, entry)
	b.currentPageID = page.PageID

	for len(b.pages) > b.opts.MaxPages {
		b.removePage(b.pages[0].PageID)
	}
	b.record(TimelineEvent{Kind: EventPage, RefID: page.PageID, Timestamp: now, Label: page.Metadata.Title})
	b.maybeCleanup(now)
}

func (b *Builder) updateRelationships(entry *PageEntry) {
	for _, other := range b.pages {
		if d := entry.Page.Metadata.Domain; d != "" && d == other.Page.Metadata.Domain {
			b.relate(RelationSameDomain, entry.PageID, other.PageID, sameDomainStrength, nil)
		}
		shared := textutil.Intersect(entry.Page.Topics, other.Page.Topics)
		if len(shared) > 0 {
			b.relate(RelationSharedTopics, entry.PageID, other.PageID,
				textutil.Jaccard(entry.Page.Topics, other.Page.Topics), shared)
		}
	}
}

// relate stores the edge under both endpoints' keys.
func (b *Builder) relate(kind, a, c string, strength float64, shared []string) {
	strength = textutil.Clamp01(strength)
	ka, kc := RelationKey(kind, a), RelationKey(kind, c)
	b.relationships[ka] = append(b.relationships[ka], Relation{Kind: kind, Source: a, Target: c, Strength: strength, Shared: shared})
	b.relationships[kc] = append(b.relationships[kc], Relation{Kind: kind, Source: c, Target: a, Strength: strength, Shared: slices.Clone(shared)})
}

func (b *Builder) removePage(id string) {
	b.pages = slices.DeleteFunc(b.pages, func(p *PageEntry) bool { return p.PageID == id })
	for _, kind := range []string{RelationSameDomain, RelationSharedTopics} {
		delete(b.relationships, RelationKey(kind, id))
	}
	for k, rels := range b.relationships {
		rels = slices.DeleteFunc(rels, func(r Relation) bool { return r.Target == id })
		if len(rels) == 0 {
			delete(b.relationships, k)
		} else {
			b.relationships[k] = rels
		}
	}
	if b.currentPageID == id {
		b.currentPageID = ""
		if n := len(b.pages); n > 0 {
			b.currentPageID = b.pages[n-1].PageID
		}
	}
}

// AddConversation upserts conv by id, extracts notes from messages not seen
// before and marks questions answered once an assistant message follows.
func (b *Builder) AddConversation(conv models.Conversation) {
	now := b.now()
	entry := b.conversation(conv.ID)
	kind := EventMessage
	seen := 0
	if entry == nil {
		entry = &ConversationEntry{}
		b.conversations = append(b.conversations, entry)
		kind = EventConversation
	} else {
		seen = min(len(entry.Conversation.Messages), len(conv.Messages))
		if conv.PageID == "" {
			conv.PageID = entry.Conversation.PageID
		}
	}
	if conv.PageID == "" {
		conv.PageID = b.currentPageID
	}
	conv.Messages = slices.Clone(conv.Messages)
	entry.Conversation = conv
	entry.Updated = now

	for _, msg := range conv.Messages[seen:] {
		if msg.Role == models.RoleAssistant {
			markAnswered(entry.Notes)
		}
		x := memory.Extract(b.extractor, msg)
		for _, f := range x.Facts {
			entry.Notes = append(entry.Notes, models.FactItem(f))
		}
		for _, p := range x.Preferences {
			entry.Notes = append(entry.Notes, models.PreferenceItem(p))
		}
		for _, q := range x.Questions {
			q.ConversationID = conv.ID
			entry.Notes = append(entry.Notes, models.QuestionItem(q))
		}
	}
	b.currentConvID = conv.ID

	for len(b.conversations) > b.opts.MaxConversations {
		b.conversations = b.conversations[1:]
	}
	b.record(TimelineEvent{Kind: kind, RefID: conv.ID, Timestamp: now})
	b.maybeCleanup(now)
}

func markAnswered(notes []models.MemoryItem) {
	for _, n := range notes {
		if n.Kind == models.MemoryQuestion {
			n.Question.Answered = true
		}
	}
}

func (b *Builder) record(ev TimelineEvent) {
	b.timeline = append(b.timeline, ev)
	if over := len(b.timeline) - b.opts.MaxTimelineEvents; over > 0 {
		b.timeline = slices.Clone(b.timeline[over:])
	}
}

// SessionBytes estimates the in-memory size of the session as twice its
// JSON length.
func (b *Builder) SessionBytes() int {
	data, err := json.Marshal(b.Snapshot())
	if err != nil {
		return 0
	}
	return 2 * len(data)
}

// maybeCleanup drops the oldest 30% of pages and conversations idle for
// more than the conversation age when the session exceeds its size bound.
// The size is measured at most once per cleanup interval.
func (b *Builder) maybeCleanup(now time.Time) {
	if !b.lastSizeCheck.IsZero() && now.Sub(b.lastSizeCheck) < b.opts.CleanupInterval {
		return
	}
	b.lastSizeCheck = now
	size := b.SessionBytes()
	if size <= b.opts.MaxSessionBytes {
		return
	}

	drop := int(float64(len(b.pages)) * cleanupPageShare)
	for _, p := range slices.Clone(b.pages[:drop]) {
		b.removePage(p.PageID)
	}
	before := len(b.conversations)
	b.conversations = slices.DeleteFunc(b.conversations, func(c *ConversationEntry) bool {
		return now.Sub(c.Conversation.LastActivity()) > b.opts.ConversationMaxAge
	})
	b.logger.Info("session cleanup",
		"bytes", size, "pages_dropped", drop, "conversations_dropped", before-len(b.conversations))
}

// PrimaryTopic is the topic occurring on the most pages.
func (b *Builder) PrimaryTopic() string {
	counts := make(map[string]int)
	for _, p := range b.pages {
		for _, t := range textutil.SortedUnique(p.Page.Topics) {
			counts[t]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, bestN := "", 0
	for _, k := range keys {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}

// CommonTopics returns topics present on at least two pages, sorted.
func (b *Builder) CommonTopics() []string {
	counts := make(map[string]int)
	for _, p := range b.pages {
		for _, t := range textutil.SortedUnique(p.Page.Topics) {
			counts[t]++
		}
	}
	var out []string
	for t, n := range counts {
		if n >= 2 {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
