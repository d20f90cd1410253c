package core

import (
	"fmt"
	"strings"
	"time"
)

// Priority selects the weight vector used when scoring backends.
type Priority string

const (
	PriorityPerformance Priority = "performance"
	PrioritySafety      Priority = "safety"
	PriorityReactive    Priority = "reactive"
	PriorityBalanced    Priority = "balanced"
)

// ParsePriority maps free-form text onto a Priority. Unknown values
// become PriorityBalanced.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityPerformance:
		return PriorityPerformance
	case PrioritySafety:
		return PrioritySafety
	case PriorityReactive:
		return PriorityReactive
	}
	return PriorityBalanced
}

// Level is an execution level from 1 (direct) to 4 (gated multi-sector).
type Level int

const (
	LevelDirect      Level = 1
	LevelCoordinated Level = 2
	LevelCascade     Level = 3
	LevelMultiSector Level = 4
)

// Valid reports whether l is a supported level.
func (l Level) Valid() bool {
	return l >= LevelDirect && l <= LevelMultiSector
}

func (l Level) String() string {
	switch l {
	case LevelDirect:
		return "direct"
	case LevelCoordinated:
		return "coordinated"
	case LevelCascade:
		return "cascade"
	case LevelMultiSector:
		return "multi_sector"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ExecutionContext carries caller hints for backend selection.
type ExecutionContext struct {
	Domain      string                 `json:"domain,omitempty" yaml:"domain,omitempty"`
	Priority    Priority               `json:"priority,omitempty" yaml:"priority,omitempty"`
	BaseBackend string                 `json:"base_backend,omitempty" yaml:"base_backend,omitempty"`
	Options     map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// EffectivePriority returns the context priority, defaulting to balanced.
func (c ExecutionContext) EffectivePriority() Priority {
	if c.Priority == "" {
		return PriorityBalanced
	}
	return ParsePriority(string(c.Priority))
}

// Request is one call into the dispatcher. It doubles as the remote
// execute payload.
type Request struct {
	Text    string                 `json:"code"`
	Level   Level                  `json:"level"`
	Backend string                 `json:"engine,omitempty"`
	Context ExecutionContext       `json:"context"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// Option reads an option from the request, falling back to the context options.
func (r Request) Option(key string) (interface{}, bool) {
	if v, ok := r.Options[key]; ok {
		return v, true
	}
	v, ok := r.Context.Options[key]
	return v, ok
}

// StringOption returns an option as a trimmed string, or "".
func (r Request) StringOption(key string) string {
	v, ok := r.Option(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// ExecutionResult is the uniform outcome of Execute. Failures are encoded
// here, never returned as Go errors.
type ExecutionResult struct {
	Success         bool                   `json:"success" yaml:"success"`
	Level           Level                  `json:"level" yaml:"level"`
	Result          interface{}            `json:"result,omitempty" yaml:"result,omitempty"`
	ExecutionTime   time.Duration          `json:"execution_time" yaml:"execution_time"`
	AnnotationsUsed []string               `json:"annotations_used" yaml:"annotations_used"`
	Backend         string                 `json:"backend,omitempty" yaml:"backend,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Error           string                 `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind       string                 `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`

	// Err keeps the typed error for errors.Is/As on the caller side.
	Err error `json:"-" yaml:"-"`
}

// FailedResult builds a failure result for level l.
func FailedResult(l Level, err error, elapsed time.Duration, tags []string) *ExecutionResult {
	if tags == nil {
		tags = []string{}
	}
	return &ExecutionResult{
		Success:         false,
		Level:           l,
		ExecutionTime:   elapsed,
		AnnotationsUsed: tags,
		Error:           err.Error(),
		ErrorKind:       KindOf(err),
		Err:             err,
	}
}
