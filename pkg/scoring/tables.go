package scoring

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iln-nexus/iln/pkg/core"
)

// Fixed bonuses added on top of the weighted capability sum.
const (
	DefaultTagBonus    = 0.3
	DefaultDomainBonus = 0.2

	weightTolerance = 1e-9
)

// Weights is one priority's weight vector over the four capability scores.
type Weights struct {
	Performance float64 `json:"performance" yaml:"performance"`
	Safety      float64 `json:"safety" yaml:"safety"`
	Reactivity  float64 `json:"reactivity" yaml:"reactivity"`
	Ecosystem   float64 `json:"ecosystem" yaml:"ecosystem"`
}

// Sum returns the total of the four weights.
func (w Weights) Sum() float64 {
	return w.Performance + w.Safety + w.Reactivity + w.Ecosystem
}

// Tables is the scorer's heuristic configuration. Build it with
// DefaultTables or LoadTables and treat it as read-only afterwards.
type Tables struct {
	Weights     map[core.Priority]Weights `json:"weights" yaml:"weights"`
	TagBackends map[string][]string       `json:"tag_backends" yaml:"tag_backends"`
	TagBonus    float64                   `json:"tag_bonus" yaml:"tag_bonus"`
	DomainBonus float64                   `json:"domain_bonus" yaml:"domain_bonus"`
}

// DefaultTables returns the built-in heuristics.
func DefaultTables() Tables {
	return Tables{
		Weights: map[core.Priority]Weights{
			core.PriorityPerformance: {Performance: 0.6, Safety: 0.15, Reactivity: 0.15, Ecosystem: 0.1},
			core.PrioritySafety:      {Performance: 0.15, Safety: 0.6, Reactivity: 0.1, Ecosystem: 0.15},
			core.PriorityReactive:    {Performance: 0.15, Safety: 0.1, Reactivity: 0.6, Ecosystem: 0.15},
			core.PriorityBalanced:    {Performance: 0.25, Safety: 0.25, Reactivity: 0.25, Ecosystem: 0.25},
		},
		TagBackends: map[string][]string{
			"chan":       {"go"},
			"concurrent": {"go"},
			"own":        {"rust"},
			"safe":       {"rust"},
			"event":      {"nodejs"},
			"reactive":   {"nodejs"},
			"async":      {"python", "nodejs"},
		},
		TagBonus:    DefaultTagBonus,
		DomainBonus: DefaultDomainBonus,
	}
}

// Validate checks that a balanced vector exists, every vector sums to 1
// and every bonus is a finite non-negative number.
func (t Tables) Validate() error {
	if _, ok := t.Weights[core.PriorityBalanced]; !ok {
		return fmt.Errorf("%w: weights table has no %q vector", core.ErrInvalidConfiguration, core.PriorityBalanced)
	}
	for p, w := range t.Weights {
		for _, c := range []float64{w.Performance, w.Safety, w.Reactivity, w.Ecosystem} {
			if !(c >= 0 && c <= 1) {
				return fmt.Errorf("%w: weights for %q contain %v, want a value in [0,1]", core.ErrInvalidConfiguration, p, c)
			}
		}
		if !(math.Abs(w.Sum()-1.0) <= weightTolerance) {
			return fmt.Errorf("%w: weights for %q sum to %v, want 1", core.ErrInvalidConfiguration, p, w.Sum())
		}
	}
	if !validBonus(t.TagBonus) || !validBonus(t.DomainBonus) {
		return fmt.Errorf("%w: bonuses must be finite and non-negative", core.ErrInvalidConfiguration)
	}
	return nil
}

// validBonus rejects NaN, infinities and negatives.
func validBonus(b float64) bool {
	return b >= 0 && !math.IsInf(b, 1)
}

// WeightsFor returns the vector for p, or the balanced vector for any
// priority without its own entry.
func (t Tables) WeightsFor(p core.Priority) Weights {
	if w, ok := t.Weights[p]; ok {
		return w
	}
	return t.Weights[core.PriorityBalanced]
}

// Clone returns a deep copy.
func (t Tables) Clone() Tables {
	out := Tables{
		Weights:     make(map[core.Priority]Weights, len(t.Weights)),
		TagBackends: make(map[string][]string, len(t.TagBackends)),
		TagBonus:    t.TagBonus,
		DomainBonus: t.DomainBonus,
	}
	for k, v := range t.Weights {
		out.Weights[k] = v
	}
	for k, v := range t.TagBackends {
		out.TagBackends[k] = append([]string(nil), v...)
	}
	return out
}

// TablesOverride is the `scoring:` section of a heuristics file. A nil
// bonus keeps the base value, so 0 can be set explicitly.
type TablesOverride struct {
	Weights     map[core.Priority]Weights `json:"weights,omitempty" yaml:"weights,omitempty"`
	TagBackends map[string][]string       `json:"tag_backends,omitempty" yaml:"tag_backends,omitempty"`
	TagBonus    *float64                  `json:"tag_bonus,omitempty" yaml:"tag_bonus,omitempty"`
	DomainBonus *float64                  `json:"domain_bonus,omitempty" yaml:"domain_bonus,omitempty"`
}

// LoadTables reads a YAML heuristics file. Sections left out keep their
// default values.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, err
	}
	var doc struct {
		Scoring *TablesOverride `yaml:"scoring"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Tables{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return MergeTables(DefaultTables(), doc.Scoring)
}

// MergeTables overlays the sections set in override onto base and
// validates the result.
func MergeTables(base Tables, override *TablesOverride) (Tables, error) {
	out := base.Clone()
	if override != nil {
		for p, w := range override.Weights {
			out.Weights[p] = w
		}
		for tag, ids := range override.TagBackends {
			out.TagBackends[tag] = append([]string(nil), ids...)
		}
		if override.TagBonus != nil {
			out.TagBonus = *override.TagBonus
		}
		if override.DomainBonus != nil {
			out.DomainBonus = *override.DomainBonus
		}
	}
	if err := out.Validate(); err != nil {
		return Tables{}, err
	}
	return out, nil
}
