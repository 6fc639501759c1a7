package models

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single chat message within a conversation.
type Message struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Conversation represents one chat thread. Messages are append-only.
type Conversation struct {
	ID          string       `json:"id"`
	PageID      string       `json:"pageId,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Messages    []Message    `json:"messages"`
	Memory      []MemoryItem `json:"memory,omitempty"`
	Preferences []string     `json:"preferences,omitempty"`
}

// LastActivity returns the timestamp of the newest message, or the start time.
func (c Conversation) LastActivity() time.Time {
	if n := len(c.Messages); n > 0 && c.Messages[n-1].Timestamp.After(c.Timestamp) {
		return c.Messages[n-1].Timestamp
	}
	return c.Timestamp
}
