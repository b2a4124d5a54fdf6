package model

import (
	"encoding/json"
	"sort"
)

// StringSet is an unordered set of strings that round-trips through JSON
// (and therefore through gorm's `serializer:json` tag) as a sorted array.
type StringSet map[string]struct{}

func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s StringSet) Contains(item string) bool {
	_, ok := s[item]
	return ok
}

func (s StringSet) Add(item string) {
	s[item] = struct{}{}
}

func (s StringSet) Remove(item string) {
	delete(s, item)
}

// Subset reports whether every member of s is present in other — used for
// the dispatcher's required_tags ⊆ worker.tags eligibility check.
func (s StringSet) Subset(other StringSet) bool {
	for item := range s {
		if !other.Contains(item) {
			return false
		}
	}
	return true
}

// Intersection counts how many members s and other have in common — used
// for preferred-tag scoring.
func (s StringSet) Intersection(other StringSet) int {
	n := 0
	for item := range s {
		if other.Contains(item) {
			n++
		}
	}
	return n
}

func (s StringSet) Slice() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	return out
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	items := s.Slice()
	sort.Strings(items)
	return json.Marshal(items)
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewStringSet(items...)
	return nil
}
