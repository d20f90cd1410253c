package iln

import (
	"context"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/core"
)

// Public links reported by Info
const (
	DocumentationURL = "https://docs.iln-nexus.com"
	RepositoryURL    = "https://github.com/iln-nexus/iln"
)

// Info describes a running nexus
type Info struct {
	Version         string   `json:"version" yaml:"version"`
	HasPro          bool     `json:"has_pro" yaml:"has_pro"`
	LevelsAvailable []int    `json:"levels_available" yaml:"levels_available"`
	GatedLevels     []int    `json:"gated_levels" yaml:"gated_levels"`
	Backends        []string `json:"backends" yaml:"backends"`
	SupportedTags   []string `json:"supported_tags" yaml:"supported_tags"`
	UpgradeURL      string   `json:"upgrade_url" yaml:"upgrade_url"`
	Documentation   string   `json:"documentation" yaml:"documentation"`
	Repository      string   `json:"repository" yaml:"repository"`
}

// Info reports version, backends, tags and the levels this caller may
// run. A gated level counts as available only if the entitler grants it;
// a failing entitlement check leaves the level out.
func (nx *Nexus) Info(ctx context.Context) Info {
	levels := make([]int, 0, 4)
	for l := core.LevelDirect; l <= core.LevelMultiSector; l++ {
		if ok, err := nx.dispatcher.Entitled(ctx, l); err == nil && ok {
			levels = append(levels, int(l))
		}
	}

	tags := nx.grammar.Tags()
	described := make([]string, 0, len(tags))
	for _, tag := range tags {
		described = append(described, annotation.Describe(tag))
	}

	return Info{
		Version:         Version,
		HasPro:          nx.config.HasPro(),
		LevelsAvailable: levels,
		GatedLevels:     append([]int(nil), nx.config.Pro.GatedLevels...),
		Backends:        nx.registry.List(),
		SupportedTags:   described,
		UpgradeURL:      core.UpgradeURL,
		Documentation:   DocumentationURL,
		Repository:      RepositoryURL,
	}
}

// Example is one demo input
type Example struct {
	Text  string
	Level core.Level
}

// Examples returns the demo inputs run by Demo
func Examples() []Example {
	return []Example{
		{Text: "chan!('data_pipeline', concurrent_processing)", Level: core.LevelDirect},
		{Text: "own!('memory_safe', allocation) && event!('reactive_ui', updates)", Level: core.LevelCoordinated},
		{Text: "async!('api_calls', parallel) && safe!('user_data', validation)", Level: core.LevelCoordinated},
	}
}

// DemoRun pairs an example with its outcome
type DemoRun struct {
	Example Example
	Result  *core.ExecutionResult
}

// Demo runs every example with automatic backend selection
func (nx *Nexus) Demo(ctx context.Context) []DemoRun {
	runs := make([]DemoRun, 0, len(Examples()))
	for _, ex := range Examples() {
		res := nx.Run(ctx, ex.Text, int(ex.Level), "auto", core.ExecutionContext{}, nil)
		runs = append(runs, DemoRun{Example: ex, Result: res})
	}
	return runs
}
