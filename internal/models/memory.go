package models

import (
	"fmt"
	"strings"
)

// MemoryKind tags the variant held by a MemoryItem.
type MemoryKind string

const (
	MemoryEntity     MemoryKind = "entity"
	MemoryFact       MemoryKind = "fact"
	MemoryPreference MemoryKind = "preference"
	MemoryQuestion   MemoryKind = "question"
	MemoryTopic      MemoryKind = "topic"
)

// MemoryItem carries exactly one memory variant, selected by Kind.
type MemoryItem struct {
	Kind       MemoryKind  `json:"kind"`
	Entity     *Entity     `json:"entity,omitempty"`
	Fact       *Fact       `json:"fact,omitempty"`
	Preference *Preference `json:"preference,omitempty"`
	Question   *Question   `json:"question,omitempty"`
	Topic      *Topic      `json:"topic,omitempty"`
}

func EntityItem(e Entity) MemoryItem         { return MemoryItem{Kind: MemoryEntity, Entity: &e} }
func FactItem(f Fact) MemoryItem             { return MemoryItem{Kind: MemoryFact, Fact: &f} }
func PreferenceItem(p Preference) MemoryItem { return MemoryItem{Kind: MemoryPreference, Preference: &p} }
func QuestionItem(q Question) MemoryItem     { return MemoryItem{Kind: MemoryQuestion, Question: &q} }
func TopicItem(t Topic) MemoryItem           { return MemoryItem{Kind: MemoryTopic, Topic: &t} }

// EntityKey is the canonical merge key "type:value".
func EntityKey(t EntityType, value string) string {
	return string(t) + ":" + strings.ToLower(value)
}

// FactKey is the canonical merge key "subject:predicate:object".
func FactKey(subject, predicate, object string) string {
	return strings.ToLower(subject + ":" + predicate + ":" + object)
}

// PreferenceKey is the canonical merge key "kind:value".
func PreferenceKey(k PreferenceKind, value string) string {
	return string(k) + ":" + strings.ToLower(value)
}

// Key returns the canonical merge key of the held variant.
func (m MemoryItem) Key() string {
	switch m.Kind {
	case MemoryEntity:
		return EntityKey(m.Entity.Type, m.Entity.Value)
	case MemoryFact:
		return FactKey(m.Fact.Subject, m.Fact.Predicate, m.Fact.Object)
	case MemoryPreference:
		return PreferenceKey(m.Preference.Kind, m.Preference.Value)
	case MemoryQuestion:
		return m.Question.Text
	case MemoryTopic:
		return strings.ToLower(m.Topic.Value)
	default:
		panic(fmt.Sprintf("models: unknown memory kind %q", m.Kind))
	}
}

// Text returns the searchable text of the held variant.
func (m MemoryItem) Text() string {
	switch m.Kind {
	case MemoryEntity:
		return m.Entity.Value
	case MemoryFact:
		return m.Fact.Statement()
	case MemoryPreference:
		return m.Preference.Value
	case MemoryQuestion:
		return m.Question.Text
	case MemoryTopic:
		return m.Topic.Value
	default:
		panic(fmt.Sprintf("models: unknown memory kind %q", m.Kind))
	}
}

// Confidence returns the held variant's belief. Questions and topics are
// observations rather than beliefs and report 1.
func (m MemoryItem) Confidence() float64 {
	switch m.Kind {
	case MemoryEntity:
		return m.Entity.Confidence
	case MemoryFact:
		return m.Fact.Confidence
	case MemoryPreference:
		return m.Preference.Confidence
	case MemoryQuestion, MemoryTopic:
		return 1
	default:
		panic(fmt.Sprintf("models: unknown memory kind %q", m.Kind))
	}
}
