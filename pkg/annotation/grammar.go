package annotation

import (
	"fmt"
	"regexp"
	"strings"
)

// Recognized tags of the default grammar, in declaration order.
const (
	TagChan       = "chan"
	TagOwn        = "own"
	TagEvent      = "event"
	TagAsync      = "async"
	TagSafe       = "safe"
	TagConcurrent = "concurrent"
	TagReactive   = "reactive"
)

// DefaultTags lists the tags recognized by DefaultGrammar.
var DefaultTags = []string{TagChan, TagOwn, TagEvent, TagAsync, TagSafe, TagConcurrent, TagReactive}

// Descriptions used by Info output.
var tagDescriptions = map[string]string{
	TagChan:       "Go-style channel concurrency",
	TagOwn:        "Rust-style ownership",
	TagEvent:      "JS-style event reactivity",
	TagAsync:      "async operations",
	TagSafe:       "memory safety",
	TagConcurrent: "parallel processing",
	TagReactive:   "reactive programming",
}

var tagNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Rule is the extraction rule for one tag.
//
// The payload group stops at the first closing parenthesis, so a payload
// that itself contains parentheses is cut short: `chan!('d', f(x))` yields
// payload "f(x". Callers needing nested expressions must avoid ')' in payloads.
type Rule struct {
	Tag     string
	Pattern *regexp.Regexp
}

func newRule(tag string) Rule {
	expr := `(?i)\b` + regexp.QuoteMeta(tag) + `!\s*\(\s*['"]([^'"]+)['"]\s*,\s*([^)]+)\)`
	return Rule{Tag: tag, Pattern: regexp.MustCompile(expr)}
}

// Grammar is an immutable, ordered set of extraction rules.
type Grammar struct {
	rules []Rule
	index map[string]int
}

// NewGrammar builds a grammar recognizing tags in the given order.
func NewGrammar(tags ...string) (*Grammar, error) {
	g := &Grammar{index: make(map[string]int, len(tags))}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if !tagNamePattern.MatchString(tag) {
			return nil, fmt.Errorf("invalid annotation tag %q", tag)
		}
		if _, dup := g.index[tag]; dup {
			return nil, fmt.Errorf("duplicate annotation tag %q", tag)
		}
		g.index[tag] = len(g.rules)
		g.rules = append(g.rules, newRule(tag))
	}
	return g, nil
}

// DefaultGrammar recognizes the seven built-in tags.
func DefaultGrammar() *Grammar {
	g, err := NewGrammar(DefaultTags...)
	if err != nil {
		panic(err)
	}
	return g
}

// With returns a copy of g that also recognizes tag, appended last.
func (g *Grammar) With(tag string) (*Grammar, error) {
	return NewGrammar(append(g.Tags(), tag)...)
}

// Tags returns the recognized tags in declaration order.
func (g *Grammar) Tags() []string {
	out := make([]string, len(g.rules))
	for i, r := range g.rules {
		out[i] = r.Tag
	}
	return out
}

// Recognizes reports whether tag is part of the grammar.
func (g *Grammar) Recognizes(tag string) bool {
	_, ok := g.index[strings.ToLower(tag)]
	return ok
}

// Describe returns a short human description of a tag.
func Describe(tag string) string {
	if d, ok := tagDescriptions[tag]; ok {
		return fmt.Sprintf("%s! (%s)", tag, d)
	}
	return tag + "!"
}

// Extract scans text with every rule. It never fails; text with no
// annotations yields an empty Set.
//
// A payload ends at the first ')' after its label. Nested or unbalanced
// parentheses inside a payload are not tracked and truncate it.
func (g *Grammar) Extract(text string) *Set {
	set := newSet(g)
	for _, r := range g.rules {
		for _, m := range r.Pattern.FindAllStringSubmatch(text, -1) {
			set.add(Invocation{
				Tag:     r.Tag,
				Label:   strings.TrimSpace(m[1]),
				Payload: strings.TrimSpace(m[2]),
			})
		}
	}
	return set
}
