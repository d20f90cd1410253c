package capabilities

import (
	"context"
	"fmt"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/core"
)

// Built-in backend ids.
const (
	BackendPython = "python"
	BackendNodeJS = "nodejs"
	BackendGo     = "go"
	BackendRust   = "rust"
	BackendAuto   = "auto"
)

// BuiltinProfiles returns the default profiles in registration order.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			ID:          BackendPython,
			Description: "Python runtime: data tooling and scripting",
			Performance: 0.4, Safety: 0.6, Reactivity: 0.5, Ecosystem: 0.95,
			LearningCurve: 0.9,
			Specialties:   []string{"data_science", "scripting", "ml", "web"},
		},
		{
			ID:          BackendNodeJS,
			Description: "Node.js runtime: event loop and UI",
			Performance: 0.6, Safety: 0.5, Reactivity: 0.9, Ecosystem: 0.9,
			LearningCurve: 0.8,
			Specialties:   []string{"web", "realtime", "ui"},
		},
		{
			ID:          BackendGo,
			Description: "Go runtime: goroutines and channels",
			Performance: 0.85, Safety: 0.75, Reactivity: 0.7, Ecosystem: 0.75,
			LearningCurve: 0.7,
			Specialties:   []string{"cloud", "networking", "microservices", "systems"},
		},
		{
			ID:          BackendRust,
			Description: "Rust runtime: ownership and zero-cost abstractions",
			Performance: 0.95, Safety: 0.95, Reactivity: 0.6, Ecosystem: 0.6,
			LearningCurve: 0.3,
			Specialties:   []string{"systems", "embedded", "security", "blockchain"},
		},
		{
			ID:          BackendAuto,
			Description: "automatic selection placeholder",
			Performance: 0.5, Safety: 0.5, Reactivity: 0.5, Ecosystem: 0.5,
			LearningCurve: 0.5,
			Meta:          true,
		},
	}
}

// LanguageBackend is the built-in handler shared by the default backends.
// It reports what it coordinated; it does not run user code.
type LanguageBackend struct {
	name string
}

// NewLanguageBackend creates the built-in handler for name.
func NewLanguageBackend(name string) *LanguageBackend {
	return &LanguageBackend{name: name}
}

// Name returns the backend id.
func (b *LanguageBackend) Name() string { return b.name }

func (b *LanguageBackend) ExecuteLevel1(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"backend":               b.name,
		"level":                 1,
		"annotations_processed": set.Len(),
		"invocations":           set.Count(),
		"labels":                labels(set),
	}, nil
}

func (b *LanguageBackend) ExecuteLevel2(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext, opts map[string]interface{}) (map[string]interface{}, error) {
	out, err := b.ExecuteLevel1(ctx, set, ectx)
	if err != nil {
		return nil, err
	}
	out["level"] = 2
	out["advanced"] = true
	if p, ok := opts["priority"]; ok {
		out["priority"] = fmt.Sprint(p)
	}
	if s, ok := opts["sector"]; ok {
		out["sector"] = fmt.Sprint(s)
	}
	return out, nil
}

func (b *LanguageBackend) ExecuteLevel3(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext, base string, opts map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handoff := make([]map[string]interface{}, 0, set.Len())
	for _, tag := range set.Tags() {
		handoff = append(handoff, map[string]interface{}{
			"tag":       tag,
			"from":      base,
			"to":        b.name,
			"instances": len(set.Get(tag)),
		})
	}
	return map[string]interface{}{
		"backend":  b.name,
		"base":     base,
		"level":    3,
		"handoff":  handoff,
		"coverage": set.Tags(),
	}, nil
}

func labels(set *annotation.Set) []string {
	out := []string{}
	for _, inv := range set.All() {
		out = append(out, inv.Label)
	}
	return out
}

// placeholder backs meta entries; the dispatcher never routes to it.
type placeholder struct{ name string }

func (p placeholder) fail() error {
	return &core.Error{
		Op:      "backend.Execute",
		Kind:    core.KindBackend,
		ID:      p.name,
		Message: fmt.Sprintf("%s is a selection placeholder and cannot execute", p.name),
		Err:     core.ErrBackendFault,
	}
}

func (p placeholder) ExecuteLevel1(context.Context, *annotation.Set, core.ExecutionContext) (map[string]interface{}, error) {
	return nil, p.fail()
}

func (p placeholder) ExecuteLevel2(context.Context, *annotation.Set, core.ExecutionContext, map[string]interface{}) (map[string]interface{}, error) {
	return nil, p.fail()
}

func (p placeholder) ExecuteLevel3(context.Context, *annotation.Set, core.ExecutionContext, string, map[string]interface{}) (map[string]interface{}, error) {
	return nil, p.fail()
}

// BackendFor returns the built-in handler for a profile.
func BackendFor(p Profile) Backend {
	if p.Meta {
		return placeholder{name: p.ID}
	}
	return NewLanguageBackend(p.ID)
}

// NewBuiltinRegistry returns a registry holding the built-in backends.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, p := range BuiltinProfiles() {
		if err := r.Register(p.ID, p, BackendFor(p)); err != nil {
			panic(err)
		}
	}
	return r
}
