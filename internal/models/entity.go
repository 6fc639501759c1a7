package models

import (
	"strings"
	"time"
)

// EntityType is the kind of a remembered entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityDate         EntityType = "date"
	EntityURL          EntityType = "url"
	EntityEmail        EntityType = "email"
)

// Entity is a regex-matched surface form remembered across turns.
// BaseConfidence is the belief at the last observation; Confidence is the
// decayed value as of the last decay pass.
type Entity struct {
	Type           EntityType `json:"type"`
	Value          string     `json:"value"`
	Contexts       []string   `json:"contexts,omitempty"`
	Confidence     float64    `json:"confidence"`
	BaseConfidence float64    `json:"baseConfidence"`
	Occurrences    int        `json:"occurrences"`
	FirstSeen      time.Time  `json:"firstSeen"`
	LastSeen       time.Time  `json:"lastSeen"`
}

// Fact is a (subject, predicate, object) triple.
type Fact struct {
	Subject        string    `json:"subject"`
	Predicate      string    `json:"predicate"`
	Object         string    `json:"object"`
	Source         string    `json:"source,omitempty"`
	Confidence     float64   `json:"confidence"`
	BaseConfidence float64   `json:"baseConfidence"`
	Occurrences    int       `json:"occurrences"`
	FirstSeen      time.Time `json:"firstSeen"`
	LastSeen       time.Time `json:"lastSeen"`
}

// Statement renders the fact as "subject predicate object".
func (f Fact) Statement() string {
	return strings.Join([]string{f.Subject, f.Predicate, f.Object}, " ")
}

// PreferenceKind classifies a preference utterance.
type PreferenceKind string

const (
	PreferencePositive  PreferenceKind = "positive"
	PreferenceNegative  PreferenceKind = "negative"
	PreferenceRequest   PreferenceKind = "request"
	PreferenceFrequency PreferenceKind = "frequency"
)

// Preference is a user-directed style or direction.
type Preference struct {
	Kind        PreferenceKind `json:"kind"`
	Value       string         `json:"value"`
	Occurrences int            `json:"occurrences"`
	LastSeen    time.Time      `json:"lastSeen"`
	Confidence  float64        `json:"confidence"`
}

// QuestionKind classifies a question by its leading word.
type QuestionKind string

const (
	QuestionWhat    QuestionKind = "what"
	QuestionHow     QuestionKind = "how"
	QuestionWhy     QuestionKind = "why"
	QuestionWhen    QuestionKind = "when"
	QuestionWhere   QuestionKind = "where"
	QuestionWho     QuestionKind = "who"
	QuestionYesNo   QuestionKind = "yes/no"
	QuestionGeneral QuestionKind = "general"
)

// Question is a ?-terminated user utterance.
type Question struct {
	Text           string       `json:"text"`
	Kind           QuestionKind `json:"kind"`
	Answered       bool         `json:"answered"`
	ConversationID string       `json:"conversationId,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Topic is a frequent long word or a recognized keyword bucket.
type Topic struct {
	Value          string    `json:"value"`
	TotalFrequency int       `json:"totalFrequency"`
	Occurrences    int       `json:"occurrences"`
	LastSeen       time.Time `json:"lastSeen"`
}
