package annotation

import "fmt"

// Invocation is one tagged call found in the input, e.g. chan!('label', payload).
type Invocation struct {
	Tag     string `json:"tag" yaml:"tag"`
	Label   string `json:"label" yaml:"label"`
	Payload string `json:"payload" yaml:"payload"`
}

// String renders the invocation back into annotation syntax.
func (i Invocation) String() string {
	return fmt.Sprintf("%s!('%s', %s)", i.Tag, i.Label, i.Payload)
}

// Extractor pulls annotations out of raw text.
type Extractor interface {
	Extract(text string) *Set
}

// Set maps tag to its invocations in source order. It is sparse: a tag
// with no invocation is absent, never present with an empty list.
// Tags iterate in grammar declaration order.
type Set struct {
	order []string
	byTag map[string][]Invocation
}

func newSet(g *Grammar) *Set {
	s := &Set{byTag: make(map[string][]Invocation)}
	if g != nil {
		s.order = g.Tags()
	}
	return s
}

// NewSet builds a set directly from invocations, ordering tags by first appearance.
func NewSet(invocations ...Invocation) *Set {
	s := newSet(nil)
	for _, inv := range invocations {
		if _, seen := s.byTag[inv.Tag]; !seen {
			s.order = append(s.order, inv.Tag)
		}
		s.add(inv)
	}
	return s
}

func (s *Set) add(inv Invocation) {
	s.byTag[inv.Tag] = append(s.byTag[inv.Tag], inv)
}

// Tags returns the present tags, each once, in declaration order.
func (s *Set) Tags() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, 0, len(s.byTag))
	for _, tag := range s.order {
		if _, ok := s.byTag[tag]; ok {
			out = append(out, tag)
		}
	}
	return out
}

// Get returns the invocations for tag, or nil.
func (s *Set) Get(tag string) []Invocation {
	if s == nil {
		return nil
	}
	return s.byTag[tag]
}

// Has reports whether tag occurred at least once.
func (s *Set) Has(tag string) bool {
	if s == nil {
		return false
	}
	_, ok := s.byTag[tag]
	return ok
}

// Len is the number of distinct tags present.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byTag)
}

// Count is the total number of invocations.
func (s *Set) Count() int {
	n := 0
	for _, tag := range s.Tags() {
		n += len(s.byTag[tag])
	}
	return n
}

// All returns every invocation grouped by tag in declaration order.
func (s *Set) All() []Invocation {
	var out []Invocation
	for _, tag := range s.Tags() {
		out = append(out, s.byTag[tag]...)
	}
	return out
}

// Subset returns a set restricted to the given tags, keeping order.
func (s *Set) Subset(tags ...string) *Set {
	sub := &Set{byTag: make(map[string][]Invocation)}
	if s == nil {
		return sub
	}
	sub.order = s.order
	for _, tag := range tags {
		if invs, ok := s.byTag[tag]; ok {
			sub.byTag[tag] = append([]Invocation(nil), invs...)
		}
	}
	return sub
}
