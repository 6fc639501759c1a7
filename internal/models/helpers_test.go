package models

import (
	"encoding/json"
	"testing"
)

func TestPairsJSON(t *testing.T) {
	in := PairsFromMap(map[string]int{"b": 2, "a": 1})

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(data), `[["a",1],["b",2]]`; got != want {
		t.Errorf("marshal = %s, want %s", got, want)
	}

	var out Pairs[int]
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m := out.Map()
	if m["a"] != 1 || m["b"] != 2 || len(m) != 2 {
		t.Errorf("Map() = %v", m)
	}
}

func TestPairRejectsWrongArity(t *testing.T) {
	var p Pair[string]
	if err := json.Unmarshal([]byte(`["only"]`), &p); err == nil {
		t.Error("expected error for single-element pair")
	}
}

func TestMemoryItemKey(t *testing.T) {
	tests := []struct {
		name string
		item MemoryItem
		want string
	}{
		{"entity", EntityItem(Entity{Type: EntityPerson, Value: "Ada Lovelace"}), "person:ada lovelace"},
		{"fact", FactItem(Fact{Subject: "Python", Predicate: "is", Object: "a language"}), "python:is:a language"},
		{"preference", PreferenceItem(Preference{Kind: PreferencePositive, Value: "brief summaries"}), "positive:brief summaries"},
		{"question", QuestionItem(Question{Text: "Why?"}), "Why?"},
		{"topic", TopicItem(Topic{Value: "Neural"}), "neural"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestElementPlainText(t *testing.T) {
	tests := []struct {
		el   Element
		want string
	}{
		{Heading(2, "Intro"), "Intro"},
		{Paragraph("body"), "body"},
		{List(false, "a", "b"), "a\nb"},
		{Table([][]string{{"x", "y"}, {"1", "2"}}), "x | y\n1 | 2"},
		{Code("go", "fmt.Println()"), "fmt.Println()"},
	}
	for _, tt := range tests {
		if got := tt.el.PlainText(); got != tt.want {
			t.Errorf("%s PlainText() = %q, want %q", tt.el.Kind, got, tt.want)
		}
	}
}

func TestPairKeyIsSymmetric(t *testing.T) {
	if PairKey("a", "b") != PairKey("b", "a") {
		t.Error("PairKey must not depend on argument order")
	}
}
