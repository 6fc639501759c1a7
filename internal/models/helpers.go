// Package models defines the data structures shared by the page intelligence core.
package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Pair is a single map entry serialized as a two-element JSON array [key, value].
type Pair[V any] struct {
	Key   string
	Value V
}

// MarshalJSON encodes the pair as [key, value].
func (p Pair[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Key, p.Value})
}

// UnmarshalJSON decodes a [key, value] array.
func (p *Pair[V]) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("pair: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Key); err != nil {
		return fmt.Errorf("pair key: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Value); err != nil {
		return fmt.Errorf("pair %q value: %w", p.Key, err)
	}
	return nil
}

// Pairs is the export form of a map: an array of [key, value] entries.
type Pairs[V any] []Pair[V]

// PairsFromMap converts m into pairs ordered by key.
func PairsFromMap[V any](m map[string]V) Pairs[V] {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Pairs[V], 0, len(keys))
	for _, k := range keys {
		out = append(out, Pair[V]{Key: k, Value: m[k]})
	}
	return out
}

// Map rehydrates the pairs. Later entries win on duplicate keys.
func (p Pairs[V]) Map() map[string]V {
	m := make(map[string]V, len(p))
	for _, e := range p {
		m[e.Key] = e.Value
	}
	return m
}
