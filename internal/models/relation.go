package models

import (
	"sort"
	"time"
)

// ConnectionKind indicates why two pages are related.
type ConnectionKind string

const (
	ConnectionSameDomain   ConnectionKind = "same-domain"
	ConnectionSimilarTopic ConnectionKind = "similar-topic"
	ConnectionLinked       ConnectionKind = "linked"
	ConnectionTemporal     ConnectionKind = "temporal"
)

// Connection is an edge between two pages, referenced by page id.
type Connection struct {
	Source   string         `json:"source"`
	Target   string         `json:"target"`
	Kind     ConnectionKind `json:"type"`
	Strength float64        `json:"strength"` // 0-1
	Created  time.Time      `json:"created"`
}

// PairKey returns the order-independent key for an undirected edge.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// CoOccurrence counts how often two memory keys appeared in the same message.
type CoOccurrence struct {
	A             string    `json:"a"`
	B             string    `json:"b"`
	CoOccurrences int       `json:"coOccurrences"`
	LastSeen      time.Time `json:"lastSeen"`
}

// TemporalRecord snapshots what was mentioned in one message.
type TemporalRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversationId,omitempty"`
	Entities       []string  `json:"entities,omitempty"`
	Topics         []string  `json:"topics,omitempty"`
}

// SortConnections orders edges by descending strength, then by target id.
func SortConnections(cs []Connection) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Strength != cs[j].Strength {
			return cs[i].Strength > cs[j].Strength
		}
		return cs[i].Target < cs[j].Target
	})
}

// ResearchStatus is the lifecycle state of a research session.
type ResearchStatus string

const (
	ResearchActive ResearchStatus = "active"
	ResearchClosed ResearchStatus = "closed"
)

// Finding is a note recorded against a research session.
type Finding struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	PageID    string    `json:"pageId,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ResearchSession groups pages and findings gathered toward one goal.
type ResearchSession struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Goal         string         `json:"goal,omitempty"`
	Pages        []string       `json:"pages"`
	Findings     []Finding      `json:"findings"`
	Questions    []string       `json:"questions"`
	Status       ResearchStatus `json:"status"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      *time.Time     `json:"endTime,omitempty"`
	AutoDetected bool           `json:"autoDetected,omitempty"`
}
