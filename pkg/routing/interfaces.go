package routing

import (
	"time"

	"github.com/iln-nexus/iln/pkg/core"
)

// RuleKind is what a selection rule inspects. Kinds are evaluated in the
// order domain, tag, priority.
type RuleKind string

const (
	RuleDomain   RuleKind = "domain"
	RuleTag      RuleKind = "tag"
	RulePriority RuleKind = "priority"
)

var ruleKindOrder = []RuleKind{RuleDomain, RuleTag, RulePriority}

// Strategy bundles ordered primary and secondary candidate backends
type Strategy struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Primary     []string `yaml:"primary" json:"primary"`
	Secondary   []string `yaml:"secondary" json:"secondary"`
}

// Rule maps any of its Match values to a strategy
type Rule struct {
	Kind     RuleKind `yaml:"kind" json:"kind"`
	Match    []string `yaml:"match" json:"match"`
	Strategy string   `yaml:"strategy" json:"strategy"`
}

// Config is the selector's heuristic configuration
type Config struct {
	Strategies      []Strategy `yaml:"strategies" json:"strategies"`
	Rules           []Rule     `yaml:"rules" json:"rules"`
	DefaultStrategy string     `yaml:"default_strategy" json:"default_strategy"`
	DefaultBackend  string     `yaml:"default_backend" json:"default_backend"`
	PrimaryBonus    float64    `yaml:"primary_bonus" json:"primary_bonus"`
}

// Override is the `routing:` section of a heuristics file. Empty fields
// keep the base value; PrimaryBonus is a pointer so 0 can be set.
type Override struct {
	Strategies      []Strategy `yaml:"strategies,omitempty" json:"strategies,omitempty"`
	Rules           []Rule     `yaml:"rules,omitempty" json:"rules,omitempty"`
	DefaultStrategy string     `yaml:"default_strategy,omitempty" json:"default_strategy,omitempty"`
	DefaultBackend  string     `yaml:"default_backend,omitempty" json:"default_backend,omitempty"`
	PrimaryBonus    *float64   `yaml:"primary_bonus,omitempty" json:"primary_bonus,omitempty"`
}

// Tier records which candidate list produced a selection
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierDefault   Tier = "default"
)

// Selection is the outcome of Select. It always names a backend.
type Selection struct {
	Backend   string        `json:"backend"`
	Strategy  string        `json:"strategy"`
	MatchedBy RuleKind      `json:"matched_by,omitempty"`
	Tier      Tier          `json:"tier"`
	Score     float64       `json:"score"`
	Priority  core.Priority `json:"priority"`
}

// SelectorStats provides metrics about selections
type SelectorStats struct {
	TotalSelections   int64            `json:"total_selections"`
	PrimarySelections int64            `json:"primary_selections"`
	SecondaryFallback int64            `json:"secondary_fallbacks"`
	DefaultFallbacks  int64            `json:"default_fallbacks"`
	ByStrategy        map[string]int64 `json:"by_strategy"`
	LastSelectionTime time.Time        `json:"last_selection_time"`
}

// RoutingError represents an invalid selector configuration
type RoutingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *RoutingError) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + " (" + e.Details + ")"
	}
	return e.Code + ": " + e.Message
}

// Unwrap lets callers match configuration failures with errors.Is
func (e *RoutingError) Unwrap() error {
	return core.ErrInvalidConfiguration
}

// Common error codes
const (
	ErrUnknownStrategy   = "UNKNOWN_STRATEGY"
	ErrEmptyStrategy     = "EMPTY_STRATEGY"
	ErrDuplicateStrategy = "DUPLICATE_STRATEGY"
	ErrInvalidRule       = "INVALID_RULE"
	ErrNoDefaultBackend  = "NO_DEFAULT_BACKEND"
	ErrInvalidBonus      = "INVALID_BONUS"
)
