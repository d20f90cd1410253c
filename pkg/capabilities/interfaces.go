package capabilities

import (
	"context"
	"fmt"
	"strings"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/core"
)

// Backend is the plugin contract. Any value implementing it can be
// registered under a new id; nothing else in the pipeline changes.
//
// Handlers return opaque structured data which the dispatcher wraps into
// an ExecutionResult.
type Backend interface {
	ExecuteLevel1(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext) (map[string]interface{}, error)
	ExecuteLevel2(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext, opts map[string]interface{}) (map[string]interface{}, error)
	ExecuteLevel3(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext, base string, opts map[string]interface{}) (map[string]interface{}, error)
}

// Profile is the declared capability profile of a backend.
type Profile struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Capability scores, each in [0,1]
	Performance float64 `json:"performance" yaml:"performance"`
	Safety      float64 `json:"safety" yaml:"safety"`
	Reactivity  float64 `json:"reactivity" yaml:"reactivity"`
	Ecosystem   float64 `json:"ecosystem" yaml:"ecosystem"`

	LearningCurve float64  `json:"learning_curve" yaml:"learning_curve"`
	Specialties   []string `json:"specialties,omitempty" yaml:"specialties,omitempty"`

	// Meta marks placeholder entries such as "auto" that are listed but
	// never selected or invoked.
	Meta bool `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Validate checks that every capability score lies in [0,1].
func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return core.ValidationError("profile.Validate", "profile id is required")
	}
	scores := []struct {
		name  string
		value float64
	}{
		{"performance", p.Performance},
		{"safety", p.Safety},
		{"reactivity", p.Reactivity},
		{"ecosystem", p.Ecosystem},
		{"learning_curve", p.LearningCurve},
	}
	for _, s := range scores {
		if !(s.value >= 0 && s.value <= 1) {
			return core.ValidationError("profile.Validate",
				"profile %s: %s score %v outside [0,1]", p.ID, s.name, s.value)
		}
	}
	return nil
}

// HasSpecialty reports whether domain is one of the profile's specialties.
func (p Profile) HasSpecialty(domain string) bool {
	if domain == "" {
		return false
	}
	for _, s := range p.Specialties {
		if strings.EqualFold(s, domain) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	p.Specialties = append([]string(nil), p.Specialties...)
	return p
}

// Funcs adapts plain functions to Backend. A nil handler reports the level
// as unsupported.
type Funcs struct {
	Level1 func(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext) (map[string]interface{}, error)
	Level2 func(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext, opts map[string]interface{}) (map[string]interface{}, error)
	Level3 func(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext, base string, opts map[string]interface{}) (map[string]interface{}, error)
}

func (f Funcs) ExecuteLevel1(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext) (map[string]interface{}, error) {
	if f.Level1 == nil {
		return nil, unsupported(1)
	}
	return f.Level1(ctx, set, ectx)
}

func (f Funcs) ExecuteLevel2(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext, opts map[string]interface{}) (map[string]interface{}, error) {
	if f.Level2 == nil {
		return nil, unsupported(2)
	}
	return f.Level2(ctx, set, ectx, opts)
}

func (f Funcs) ExecuteLevel3(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext, base string, opts map[string]interface{}) (map[string]interface{}, error) {
	if f.Level3 == nil {
		return nil, unsupported(3)
	}
	return f.Level3(ctx, set, ectx, base, opts)
}

func unsupported(level int) error {
	return &core.Error{
		Op:      "backend.Execute",
		Kind:    core.KindBackend,
		Message: fmt.Sprintf("backend does not support level %d", level),
		Err:     core.ErrBackendFault,
	}
}
