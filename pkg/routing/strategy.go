package routing

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iln-nexus/iln/pkg/core"
)

// Built-in strategy names
const (
	StrategySafetyCritical    = "safety_critical"
	StrategyHighPerformance   = "high_performance"
	StrategyConcurrentSystems = "concurrent_systems"
	StrategyReactiveUI        = "reactive_ui"
	StrategyDataPipeline      = "data_pipeline"
	StrategyBalanced          = "balanced"
)

const (
	DefaultBackend      = "go"
	DefaultPrimaryBonus = 0.3
)

// DefaultConfig returns the built-in strategies and rules
func DefaultConfig() Config {
	return Config{
		Strategies: []Strategy{
			{Name: StrategySafetyCritical, Description: "memory and type safety first",
				Primary: []string{"rust", "go"}, Secondary: []string{"go", "nodejs"}},
			{Name: StrategyHighPerformance, Description: "raw throughput",
				Primary: []string{"rust", "go"}, Secondary: []string{"nodejs"}},
			{Name: StrategyConcurrentSystems, Description: "channels and parallel workers",
				Primary: []string{"go", "rust"}, Secondary: []string{"nodejs"}},
			{Name: StrategyReactiveUI, Description: "event driven interfaces",
				Primary: []string{"nodejs"}, Secondary: []string{"go", "python"}},
			{Name: StrategyDataPipeline, Description: "data processing and ML",
				Primary: []string{"python"}, Secondary: []string{"go"}},
			{Name: StrategyBalanced, Description: "no strong preference",
				Primary: []string{"go", "nodejs", "rust", "python"}, Secondary: []string{"python"}},
		},
		Rules: []Rule{
			{Kind: RuleDomain, Match: []string{"systems"}, Strategy: StrategyHighPerformance},
			{Kind: RuleDomain, Match: []string{"embedded", "security"}, Strategy: StrategySafetyCritical},
			{Kind: RuleDomain, Match: []string{"web", "realtime", "ui"}, Strategy: StrategyReactiveUI},
			{Kind: RuleDomain, Match: []string{"cloud", "networking", "microservices"}, Strategy: StrategyConcurrentSystems},
			{Kind: RuleDomain, Match: []string{"data_science", "ml"}, Strategy: StrategyDataPipeline},
			{Kind: RuleTag, Match: []string{"own", "safe"}, Strategy: StrategySafetyCritical},
			{Kind: RuleTag, Match: []string{"chan", "concurrent"}, Strategy: StrategyConcurrentSystems},
			{Kind: RuleTag, Match: []string{"event", "reactive"}, Strategy: StrategyReactiveUI},
			{Kind: RulePriority, Match: []string{string(core.PriorityPerformance)}, Strategy: StrategyHighPerformance},
			{Kind: RulePriority, Match: []string{string(core.PrioritySafety)}, Strategy: StrategySafetyCritical},
			{Kind: RulePriority, Match: []string{string(core.PriorityReactive)}, Strategy: StrategyReactiveUI},
		},
		DefaultStrategy: StrategyBalanced,
		DefaultBackend:  DefaultBackend,
		PrimaryBonus:    DefaultPrimaryBonus,
	}
}

// Validate checks the configuration once, before any selection runs
func (c Config) Validate() error {
	names := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.Name == "" {
			return &RoutingError{Code: ErrUnknownStrategy, Message: "strategy without a name"}
		}
		if names[s.Name] {
			return &RoutingError{Code: ErrDuplicateStrategy, Message: "strategy declared twice", Details: s.Name}
		}
		names[s.Name] = true
		if len(s.Primary) == 0 && len(s.Secondary) == 0 {
			return &RoutingError{Code: ErrEmptyStrategy, Message: "strategy has no candidates", Details: s.Name}
		}
	}
	for i, r := range c.Rules {
		switch r.Kind {
		case RuleDomain, RuleTag, RulePriority:
		default:
			return &RoutingError{Code: ErrInvalidRule, Message: fmt.Sprintf("rule %d has unknown kind %q", i, r.Kind)}
		}
		if len(r.Match) == 0 {
			return &RoutingError{Code: ErrInvalidRule, Message: fmt.Sprintf("rule %d matches nothing", i)}
		}
		if !names[r.Strategy] {
			return &RoutingError{Code: ErrUnknownStrategy, Message: fmt.Sprintf("rule %d targets an undeclared strategy", i), Details: r.Strategy}
		}
	}
	if !names[c.DefaultStrategy] {
		return &RoutingError{Code: ErrUnknownStrategy, Message: "default strategy is not declared", Details: c.DefaultStrategy}
	}
	if strings.TrimSpace(c.DefaultBackend) == "" {
		return &RoutingError{Code: ErrNoDefaultBackend, Message: "default backend is required"}
	}
	if !(c.PrimaryBonus >= 0) || math.IsInf(c.PrimaryBonus, 1) {
		return &RoutingError{Code: ErrInvalidBonus, Message: "primary bonus must be finite and non-negative", Details: fmt.Sprint(c.PrimaryBonus)}
	}
	return nil
}

// Clone returns a deep copy
func (c Config) Clone() Config {
	out := c
	out.Strategies = make([]Strategy, len(c.Strategies))
	for i, s := range c.Strategies {
		s.Primary = append([]string(nil), s.Primary...)
		s.Secondary = append([]string(nil), s.Secondary...)
		out.Strategies[i] = s
	}
	out.Rules = make([]Rule, len(c.Rules))
	for i, r := range c.Rules {
		r.Match = append([]string(nil), r.Match...)
		out.Rules[i] = r
	}
	return out
}

// Merge overlays override onto c. Strategies are replaced or added by
// name and a non-empty rule list replaces the rules. Other fields apply
// only when set.
func (c Config) Merge(override *Override) Config {
	out := c.Clone()
	if override == nil {
		return out
	}
	for _, s := range override.Strategies {
		replaced := false
		for i := range out.Strategies {
			if out.Strategies[i].Name == s.Name {
				out.Strategies[i] = s
				replaced = true
				break
			}
		}
		if !replaced {
			out.Strategies = append(out.Strategies, s)
		}
	}
	if len(override.Rules) > 0 {
		out.Rules = append([]Rule(nil), override.Rules...)
	}
	if override.DefaultStrategy != "" {
		out.DefaultStrategy = override.DefaultStrategy
	}
	if override.DefaultBackend != "" {
		out.DefaultBackend = override.DefaultBackend
	}
	if override.PrimaryBonus != nil {
		out.PrimaryBonus = *override.PrimaryBonus
	}
	return out
}

// LoadConfig reads the routing section of a heuristics file and merges it
// over the defaults
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var doc struct {
		Routing *Override `yaml:"routing"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("failed to parse routing config: %w", err)
	}

	cfg := DefaultConfig().Merge(doc.Routing)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadStrategyDir loads one Strategy per .yaml/.yml file in dir. A missing
// directory yields no strategies.
func LoadStrategyDir(dir string) ([]Strategy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var strategies []Strategy
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var s Strategy
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse strategy %s: %w", name, err)
		}
		if s.Name == "" {
			s.Name = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}
