package routing

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/capabilities"
	"github.com/iln-nexus/iln/pkg/core"
	"github.com/iln-nexus/iln/pkg/scoring"
)

func newTestSelector(t *testing.T, reg *capabilities.Registry, cfg Config) *Selector {
	t.Helper()
	scorer, err := scoring.NewScorer(reg, scoring.DefaultTables())
	require.NoError(t, err)
	sel, err := NewSelector(reg, scorer, cfg)
	require.NoError(t, err)
	return sel
}

func registryWith(t *testing.T, ids ...string) *capabilities.Registry {
	t.Helper()
	reg := capabilities.NewRegistry()
	builtin := map[string]capabilities.Profile{}
	for _, p := range capabilities.BuiltinProfiles() {
		builtin[p.ID] = p
	}
	for _, id := range ids {
		require.NoError(t, reg.Register(id, builtin[id], capabilities.BackendFor(builtin[id])))
	}
	return reg
}

func TestResolve(t *testing.T) {
	sel := newTestSelector(t, capabilities.NewBuiltinRegistry(), DefaultConfig())
	g := annotation.DefaultGrammar()

	tests := []struct {
		name      string
		text      string
		ectx      core.ExecutionContext
		want      string
		matchedBy RuleKind
	}{
		{"domain", "", core.ExecutionContext{Domain: "systems"}, StrategyHighPerformance, RuleDomain},
		{"domain case insensitive", "", core.ExecutionContext{Domain: " ML "}, StrategyDataPipeline, RuleDomain},
		{"domain beats tag", "own!('m', x)", core.ExecutionContext{Domain: "web"}, StrategyReactiveUI, RuleDomain},
		{"safety tag", "safe!('u', v)", core.ExecutionContext{}, StrategySafetyCritical, RuleTag},
		{"first tag rule wins", "chan!('c', x) own!('o', y)", core.ExecutionContext{}, StrategySafetyCritical, RuleTag},
		{"unknown domain falls through to tag", "event!('e', x)", core.ExecutionContext{Domain: "gaming"}, StrategyReactiveUI, RuleTag},
		{"tag beats priority", "chan!('c', x)", core.ExecutionContext{Priority: core.PrioritySafety}, StrategyConcurrentSystems, RuleTag},
		{"priority", "", core.ExecutionContext{Priority: core.PriorityPerformance}, StrategyHighPerformance, RulePriority},
		{"default", "async!('a', b)", core.ExecutionContext{}, StrategyBalanced, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, kind := sel.Resolve(g.Extract(tt.text), tt.ectx)
			assert.Equal(t, tt.want, st.Name)
			assert.Equal(t, tt.matchedBy, kind)
		})
	}
}

func TestSelectSafetyCriticalExcludesBase(t *testing.T) {
	sel := newTestSelector(t, capabilities.NewBuiltinRegistry(), DefaultConfig())
	set := annotation.DefaultGrammar().Extract("own!('m', x)")

	got := sel.Select(context.Background(), set, core.ExecutionContext{BaseBackend: "python"})
	assert.Equal(t, StrategySafetyCritical, got.Strategy)
	assert.Equal(t, "rust", got.Backend)
	assert.Equal(t, TierPrimary, got.Tier)
	assert.InDelta(t, 1.3, got.Score, 1e-9)

	got = sel.Select(context.Background(), set, core.ExecutionContext{BaseBackend: "rust"})
	assert.Equal(t, "go", got.Backend)
}

func TestSelectNeverReturnsBaseOrUnregistered(t *testing.T) {
	g := annotation.DefaultGrammar()
	registries := [][]string{
		{"python", "nodejs", "go", "rust", "auto"},
		{"python", "nodejs"},
		{"python"},
		{"python", "auto"},
	}
	texts := []string{"", "own!('a', b)", "chan!('a', b)", "event!('a', b)", "async!('a', b)"}
	domains := []string{"", "systems", "security", "web", "cloud", "ml", "unknown"}
	priorities := []core.Priority{core.PriorityPerformance, core.PrioritySafety, core.PriorityReactive, core.PriorityBalanced}

	for _, ids := range registries {
		reg := registryWith(t, ids...)
		sel := newTestSelector(t, reg, DefaultConfig())
		for _, text := range texts {
			for _, d := range domains {
				for _, p := range priorities {
					ectx := core.ExecutionContext{Domain: d, Priority: p, BaseBackend: "python"}
					got := sel.Select(context.Background(), g.Extract(text), ectx)
					require.NotEmpty(t, got.Backend)
					assert.NotEqual(t, "python", got.Backend)
					assert.NotEqual(t, "auto", got.Backend)
					if got.Tier != TierDefault {
						assert.True(t, reg.Has(got.Backend), got.Backend)
					} else {
						assert.Equal(t, DefaultBackend, got.Backend)
					}
				}
			}
		}
	}
}

func TestSelectFallbackTiers(t *testing.T) {
	set := annotation.DefaultGrammar().Extract("safe!('s', x)")
	ectx := core.ExecutionContext{BaseBackend: "python"}

	t.Run("secondary without bonus", func(t *testing.T) {
		reg := registryWith(t, "python", "nodejs")
		sel := newTestSelector(t, reg, DefaultConfig())
		got := sel.Select(context.Background(), set, ectx)
		assert.Equal(t, "nodejs", got.Backend)
		assert.Equal(t, TierSecondary, got.Tier)
		assert.InDelta(t, 0.25*(0.6+0.5+0.9+0.9), got.Score, 1e-9)
	})

	t.Run("default when nothing qualifies", func(t *testing.T) {
		reg := registryWith(t, "python")
		sel := newTestSelector(t, reg, DefaultConfig())
		got := sel.Select(context.Background(), set, ectx)
		assert.Equal(t, DefaultBackend, got.Backend)
		assert.Equal(t, TierDefault, got.Tier)
		assert.Equal(t, StrategySafetyCritical, got.Strategy)
	})

	t.Run("default equal to base picks another backend", func(t *testing.T) {
		// data_pipeline: python is unregistered and go is the base
		sel := newTestSelector(t, registryWith(t, "go", "nodejs"), DefaultConfig())
		got := sel.Select(context.Background(), annotation.NewSet(),
			core.ExecutionContext{Domain: "ml", BaseBackend: "go"})
		assert.Equal(t, TierDefault, got.Tier)
		assert.Equal(t, "nodejs", got.Backend)

		lone := newTestSelector(t, registryWith(t, "go"), DefaultConfig())
		got = lone.Select(context.Background(), annotation.NewSet(),
			core.ExecutionContext{Domain: "ml", BaseBackend: "go"})
		assert.Equal(t, DefaultBackend, got.Backend)
	})

	t.Run("empty registry", func(t *testing.T) {
		sel := newTestSelector(t, capabilities.NewRegistry(), DefaultConfig())
		got := sel.Select(context.Background(), annotation.NewSet(), core.ExecutionContext{})
		assert.Equal(t, DefaultBackend, got.Backend)
	})
}

func TestSelectTieBreakByDeclaredOrder(t *testing.T) {
	reg := capabilities.NewRegistry()
	same := capabilities.Profile{Performance: 0.5, Safety: 0.5, Reactivity: 0.5, Ecosystem: 0.5}
	for _, id := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, reg.Register(id, same, capabilities.Funcs{}))
	}
	cfg := Config{
		Strategies:      []Strategy{{Name: "only", Primary: []string{"gamma", "alpha", "beta"}}},
		DefaultStrategy: "only",
		DefaultBackend:  "alpha",
		PrimaryBonus:    DefaultPrimaryBonus,
	}
	sel := newTestSelector(t, reg, cfg)
	for i := 0; i < 20; i++ {
		got := sel.Select(context.Background(), annotation.NewSet(), core.ExecutionContext{})
		assert.Equal(t, "gamma", got.Backend)
	}
}

func TestSelectorStats(t *testing.T) {
	sel := newTestSelector(t, registryWith(t, "python"), DefaultConfig())
	g := annotation.DefaultGrammar()
	ctx := context.Background()

	sel.Select(ctx, g.Extract("own!('a', b)"), core.ExecutionContext{BaseBackend: "python"})
	sel.Select(ctx, g.Extract(""), core.ExecutionContext{Domain: "ml"})

	stats := sel.GetStats()
	assert.Equal(t, int64(2), stats.TotalSelections)
	assert.Equal(t, int64(1), stats.DefaultFallbacks)
	assert.Equal(t, int64(1), stats.PrimarySelections)
	assert.Equal(t, int64(1), stats.ByStrategy[StrategySafetyCritical])
	assert.Equal(t, int64(1), stats.ByStrategy[StrategyDataPipeline])
	assert.False(t, stats.LastSelectionTime.IsZero())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"empty strategy", func(c *Config) {
			c.Strategies = append(c.Strategies, Strategy{Name: "hollow"})
		}, ErrEmptyStrategy},
		{"duplicate", func(c *Config) {
			c.Strategies = append(c.Strategies, Strategy{Name: StrategyBalanced, Primary: []string{"go"}})
		}, ErrDuplicateStrategy},
		{"rule to unknown strategy", func(c *Config) {
			c.Rules = append(c.Rules, Rule{Kind: RuleTag, Match: []string{"x"}, Strategy: "nope"})
		}, ErrUnknownStrategy},
		{"bad rule kind", func(c *Config) {
			c.Rules = append(c.Rules, Rule{Kind: "mood", Match: []string{"x"}, Strategy: StrategyBalanced})
		}, ErrInvalidRule},
		{"empty match", func(c *Config) {
			c.Rules = append(c.Rules, Rule{Kind: RuleTag, Strategy: StrategyBalanced})
		}, ErrInvalidRule},
		{"unknown default strategy", func(c *Config) { c.DefaultStrategy = "nope" }, ErrUnknownStrategy},
		{"no default backend", func(c *Config) { c.DefaultBackend = " " }, ErrNoDefaultBackend},
		{"negative bonus", func(c *Config) { c.PrimaryBonus = -1 }, ErrInvalidBonus},
		{"NaN bonus", func(c *Config) { c.PrimaryBonus = math.NaN() }, ErrInvalidBonus},
		{"infinite bonus", func(c *Config) { c.PrimaryBonus = math.Inf(1) }, ErrInvalidBonus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var rerr *RoutingError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.code, rerr.Code)
			assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

			_, err = NewSelector(capabilities.NewRegistry(), nil, cfg)
			assert.Error(t, err)
		})
	}
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heuristics.yaml")
	content := `routing:
  strategies:
    - name: safety_critical
      primary: [rust]
      secondary: [go]
    - name: edge
      primary: [go]
      secondary: []
  default_backend: rust
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "rust", cfg.DefaultBackend)
	assert.Equal(t, StrategyBalanced, cfg.DefaultStrategy)
	assert.Equal(t, DefaultPrimaryBonus, cfg.PrimaryBonus)
	assert.Len(t, cfg.Strategies, 7)
	assert.Equal(t, DefaultConfig().Rules, cfg.Rules)

	var safety Strategy
	for _, s := range cfg.Strategies {
		if s.Name == StrategySafetyCritical {
			safety = s
		}
	}
	assert.Equal(t, []string{"rust"}, safety.Primary)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("routing:\n  default_strategy: missing\n"), 0o600))
	_, err = LoadConfig(bad)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestLoadConfigZeroBonus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heuristics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing:\n  primary_bonus: 0\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.PrimaryBonus)
	assert.Equal(t, DefaultBackend, cfg.DefaultBackend)

	zero := 0.0
	assert.Zero(t, DefaultConfig().Merge(&Override{PrimaryBonus: &zero}).PrimaryBonus)
	assert.Equal(t, DefaultPrimaryBonus, DefaultConfig().Merge(&Override{DefaultBackend: "rust"}).PrimaryBonus)
}

func TestLoadStrategyDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "edge.yaml"), []byte("primary: [go]\nsecondary: [rust]\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	strategies, err := LoadStrategyDir(dir)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, "edge", strategies[0].Name)
	assert.Equal(t, []string{"go"}, strategies[0].Primary)

	missing, err := LoadStrategyDir(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
