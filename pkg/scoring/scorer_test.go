package scoring

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/capabilities"
	"github.com/iln-nexus/iln/pkg/core"
)

var priorities = []core.Priority{
	core.PriorityPerformance,
	core.PrioritySafety,
	core.PriorityReactive,
	core.PriorityBalanced,
}

func newTestScorer(t *testing.T) (*Scorer, *capabilities.Registry) {
	t.Helper()
	reg := capabilities.NewBuiltinRegistry()
	s, err := NewScorer(reg, DefaultTables())
	require.NoError(t, err)
	return s, reg
}

func TestWeightVectorsSumToOne(t *testing.T) {
	tables := DefaultTables()
	for _, p := range priorities {
		w, ok := tables.Weights[p]
		require.True(t, ok, p)
		assert.InDelta(t, 1.0, w.Sum(), 1e-9, p)
	}
	require.NoError(t, tables.Validate())
}

func TestUnknownPriorityUsesBalanced(t *testing.T) {
	tables := DefaultTables()
	assert.Equal(t, tables.Weights[core.PriorityBalanced], tables.WeightsFor("turbo"))
}

func TestScoreUnknownBackend(t *testing.T) {
	s, _ := newTestScorer(t)
	assert.Equal(t, 0.0, s.Score("cobol", annotation.NewSet(), core.PriorityBalanced, core.ExecutionContext{}))
}

func TestScoreComponents(t *testing.T) {
	s, _ := newTestScorer(t)
	g := annotation.DefaultGrammar()

	tests := []struct {
		name     string
		id       string
		text     string
		priority core.Priority
		domain   string
		want     float64
	}{
		{
			name:     "weighted sum only",
			id:       "python",
			text:     "",
			priority: core.PriorityBalanced,
			want:     0.25*0.4 + 0.25*0.6 + 0.25*0.5 + 0.25*0.95,
		},
		{
			name:     "tag bonus once per tag",
			id:       "nodejs",
			text:     "event!('a', x) event!('b', y)",
			priority: core.PriorityBalanced,
			want:     0.25*0.6 + 0.25*0.5 + 0.25*0.9 + 0.25*0.9 + 0.3,
		},
		{
			name:     "domain bonus",
			id:       "python",
			text:     "",
			priority: core.PrioritySafety,
			domain:   "ml",
			want:     0.15*0.4 + 0.6*0.6 + 0.1*0.5 + 0.15*0.95 + 0.2,
		},
		{
			name:     "clamped",
			id:       "go",
			text:     "chan!('a', x) concurrent!('b', y)",
			priority: core.PriorityPerformance,
			domain:   "cloud",
			want:     1.0,
		},
		{
			name:     "async prefers two backends",
			id:       "python",
			text:     "async!('io', fetch)",
			priority: core.PriorityBalanced,
			want:     0.25*0.4 + 0.25*0.6 + 0.25*0.5 + 0.25*0.95 + 0.3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.id, g.Extract(tt.text), tt.priority, core.ExecutionContext{Domain: tt.domain})
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreBounded(t *testing.T) {
	s, reg := newTestScorer(t)
	g := annotation.DefaultGrammar()
	texts := []string{
		"",
		"chan!('a', b)",
		"chan!('a', b) own!('c', d) event!('e', f) async!('g', h) safe!('i', j) concurrent!('k', l) reactive!('m', n)",
	}
	domains := []string{"", "systems", "web", "unknown"}
	for _, id := range reg.List() {
		for _, text := range texts {
			for _, p := range append(priorities, "unrecognized") {
				for _, d := range domains {
					sc := s.Score(id, g.Extract(text), p, core.ExecutionContext{Domain: d})
					assert.GreaterOrEqual(t, sc, 0.0)
					assert.LessOrEqual(t, sc, 1.0)
				}
			}
		}
	}
}

func TestChanBonusDominatesIdenticalProfile(t *testing.T) {
	reg := capabilities.NewRegistry()
	profile := capabilities.Profile{Performance: 0.5, Safety: 0.5, Reactivity: 0.5, Ecosystem: 0.5}
	require.NoError(t, reg.Register("go", profile, capabilities.Funcs{}))
	require.NoError(t, reg.Register("twin", profile, capabilities.Funcs{}))

	s, err := NewScorer(reg, DefaultTables())
	require.NoError(t, err)

	set := annotation.DefaultGrammar().Extract("chan!('d', p)")
	withBonus := s.Score("go", set, core.PriorityPerformance, core.ExecutionContext{})
	without := s.Score("twin", set, core.PriorityPerformance, core.ExecutionContext{})
	assert.GreaterOrEqual(t, withBonus, without)
	assert.InDelta(t, 0.3, withBonus-without, 1e-9)
}

func TestBestTieBreaksByListOrder(t *testing.T) {
	reg := capabilities.NewRegistry()
	profile := capabilities.Profile{Performance: 0.5, Safety: 0.5, Reactivity: 0.5, Ecosystem: 0.5}
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, reg.Register(id, profile, capabilities.Funcs{}))
	}
	s, err := NewScorer(reg, DefaultTables())
	require.NoError(t, err)

	best, score := s.Best([]string{"c", "a", "b"}, annotation.NewSet(), core.PriorityBalanced, core.ExecutionContext{})
	assert.Equal(t, "c", best)
	assert.InDelta(t, 0.5, score, 1e-9)

	best, _ = s.Best(nil, annotation.NewSet(), core.PriorityBalanced, core.ExecutionContext{})
	assert.Equal(t, "", best)
}

func TestTablesValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Tables)
	}{
		{"missing balanced", func(t *Tables) { delete(t.Weights, core.PriorityBalanced) }},
		{"bad sum", func(t *Tables) {
			t.Weights[core.PrioritySafety] = Weights{Performance: 0.5, Safety: 0.5, Reactivity: 0.5}
		}},
		{"negative weight", func(t *Tables) {
			t.Weights[core.PrioritySafety] = Weights{Performance: -0.5, Safety: 1.5}
		}},
		{"negative bonus", func(t *Tables) { t.TagBonus = -1 }},
		{"NaN bonus", func(t *Tables) { t.DomainBonus = math.NaN() }},
		{"infinite bonus", func(t *Tables) { t.TagBonus = math.Inf(1) }},
		{"NaN weight", func(t *Tables) {
			t.Weights[core.PriorityBalanced] = Weights{Performance: math.NaN(), Safety: 0.5, Reactivity: 0.25, Ecosystem: 0.25}
		}},
		{"infinite weights cancel", func(t *Tables) {
			t.Weights[core.PrioritySafety] = Weights{Performance: math.Inf(1), Safety: math.Inf(-1), Reactivity: 1}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables := DefaultTables()
			tt.mutate(&tables)
			err := tables.Validate()
			assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

			_, err = NewScorer(capabilities.NewRegistry(), tables)
			assert.Error(t, err)
		})
	}
}

func TestScorerCopiesTables(t *testing.T) {
	tables := DefaultTables()
	s, err := NewScorer(capabilities.NewBuiltinRegistry(), tables)
	require.NoError(t, err)
	tables.TagBackends["chan"] = []string{"rust"}

	set := annotation.DefaultGrammar().Extract("chan!('d', p)")
	base := s.Score("rust", annotation.NewSet(), core.PriorityBalanced, core.ExecutionContext{})
	assert.InDelta(t, base, s.Score("rust", set, core.PriorityBalanced, core.ExecutionContext{}), 1e-9)
}

func TestLoadTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heuristics.yaml")
	content := `scoring:
  weights:
    performance: {performance: 0.7, safety: 0.1, reactivity: 0.1, ecosystem: 0.1}
  tag_backends:
    spawn: [go]
  tag_bonus: 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tables, err := LoadTables(path)
	require.NoError(t, err)
	assert.Equal(t, 0.7, tables.Weights[core.PriorityPerformance].Performance)
	assert.Equal(t, []string{"go"}, tables.TagBackends["spawn"])
	assert.Equal(t, []string{"rust"}, tables.TagBackends["own"])
	assert.Equal(t, 0.25, tables.TagBonus)
	assert.Equal(t, DefaultDomainBonus, tables.DomainBonus)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("scoring:\n  weights:\n    safety: {safety: 0.9}\n"), 0o600))
	_, err = LoadTables(bad)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	assert.False(t, math.IsNaN(DefaultTables().WeightsFor("").Sum()))

	nan := filepath.Join(dir, "nan.yaml")
	require.NoError(t, os.WriteFile(nan, []byte("scoring:\n  tag_bonus: .nan\n"), 0o600))
	_, err = LoadTables(nan)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestLoadTablesZeroBonus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heuristics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  tag_bonus: 0\n  domain_bonus: 0.0\n"), 0o600))

	tables, err := LoadTables(path)
	require.NoError(t, err)
	assert.Zero(t, tables.TagBonus)
	assert.Zero(t, tables.DomainBonus)

	s, err := NewScorer(capabilities.NewBuiltinRegistry(), tables)
	require.NoError(t, err)
	set := annotation.DefaultGrammar().Extract("chan!('d', p)")
	plain := s.Score("go", annotation.NewSet(), core.PriorityBalanced, core.ExecutionContext{})
	assert.InDelta(t, plain, s.Score("go", set, core.PriorityBalanced, core.ExecutionContext{}), 1e-9)

	zero := 0.0
	merged, err := MergeTables(DefaultTables(), &TablesOverride{TagBonus: &zero})
	require.NoError(t, err)
	assert.Zero(t, merged.TagBonus)
	assert.Equal(t, DefaultDomainBonus, merged.DomainBonus)

	kept, err := MergeTables(DefaultTables(), &TablesOverride{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTagBonus, kept.TagBonus)
}
