package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/capabilities"
	"github.com/iln-nexus/iln/pkg/core"
)

// CascadeArrow joins base and champion in a level 3 backend path
const CascadeArrow = "→"

// choice is a resolved backend for levels 1, 2 and the sectors of 4
type choice struct {
	id         string
	backend    capabilities.Backend
	auto       bool
	score      float64
	considered int
}

// choose resolves an explicit backend or, for "" and "auto", the best
// scoring non-meta registered backend.
func (d *Dispatcher) choose(requested string, set *annotation.Set, priority core.Priority, ectx core.ExecutionContext) (choice, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" && !strings.EqualFold(requested, AutoBackend) {
		b, err := d.registry.Get(requested)
		if err != nil {
			return choice{id: requested}, err
		}
		return choice{id: requested, backend: b, considered: 1}, nil
	}

	candidates := d.registry.Candidates()
	id, score := d.scorer.Best(candidates, set, priority, ectx)
	if id == "" {
		return choice{}, &core.Error{
			Op:      "dispatcher.choose",
			Kind:    core.KindNotFound,
			Message: "no backends registered",
			Err:     core.ErrNotFound,
		}
	}
	b, err := d.registry.Get(id)
	if err != nil {
		return choice{id: id}, err
	}
	return choice{id: id, backend: b, auto: true, score: score, considered: len(candidates)}, nil
}

// invoke runs a backend handler, turning panics and untyped errors into
// backend faults
func invoke(id string, level core.Level, fn func() (map[string]interface{}, error)) (out map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &core.Error{
				Op:      "backend.Execute",
				Kind:    core.KindBackend,
				ID:      id,
				Message: fmt.Sprintf("backend %s panicked at level %d: %v", id, level, r),
				Err:     core.ErrBackendFault,
			}
		}
	}()
	out, err = fn()
	if err != nil && core.KindOf(err) == core.KindInternal {
		err = &core.Error{Op: "backend.Execute", Kind: core.KindBackend, ID: id, Err: fmt.Errorf("%w: %v", core.ErrBackendFault, err)}
	}
	return out, err
}

func (d *Dispatcher) levelSpan(ctx context.Context, level core.Level) (context.Context, trace.Span) {
	return otel.Tracer("iln.orchestration").Start(ctx, fmt.Sprintf("Dispatcher.Level%d", int(level)),
		trace.WithAttributes(attribute.String("level.name", level.String())),
	)
}

func (d *Dispatcher) executeLevel1(ctx context.Context, req core.Request, start time.Time) *core.ExecutionResult {
	ctx, span := d.levelSpan(ctx, core.LevelDirect)
	defer span.End()

	set := d.extractor.Extract(req.Text)
	tags := set.Tags()
	ectx := req.Context
	c, err := d.choose(req.Backend, set, ectx.EffectivePriority(), ectx)
	if err != nil {
		return failed(req.Level, err, start, tags, c.id)
	}
	span.SetAttributes(attribute.String("backend", c.id))

	payload, err := invoke(c.id, core.LevelDirect, func() (map[string]interface{}, error) {
		return c.backend.ExecuteLevel1(ctx, set, ectx)
	})
	if err != nil {
		return failed(req.Level, err, start, tags, c.id)
	}

	return &core.ExecutionResult{
		Success:         true,
		Level:           core.LevelDirect,
		Result:          payload,
		ExecutionTime:   time.Since(start),
		AnnotationsUsed: tags,
		Backend:         c.id,
		Metadata: map[string]interface{}{
			"method":            "essence_absorption",
			"paradigms_unified": len(tags),
			"selection":         selectionMode(c),
		},
	}
}

// levelPriority prefers options["priority"] over the context priority
func levelPriority(req core.Request) core.Priority {
	if p := req.StringOption("priority"); p != "" {
		return core.ParsePriority(p)
	}
	return req.Context.EffectivePriority()
}

func (d *Dispatcher) executeLevel2(ctx context.Context, req core.Request, start time.Time) *core.ExecutionResult {
	ctx, span := d.levelSpan(ctx, core.LevelCoordinated)
	defer span.End()

	set := d.extractor.Extract(req.Text)
	tags := set.Tags()
	ectx := req.Context
	priority := levelPriority(req)
	c, err := d.choose(req.Backend, set, priority, ectx)
	if err != nil {
		return failed(req.Level, err, start, tags, c.id)
	}
	span.SetAttributes(attribute.String("backend", c.id), attribute.String("priority", string(priority)))

	opts := mergeOptions(ectx.Options, req.Options)
	opts["priority"] = string(priority)

	payload, err := invoke(c.id, core.LevelCoordinated, func() (map[string]interface{}, error) {
		return c.backend.ExecuteLevel2(ctx, set, ectx, opts)
	})
	if err != nil {
		return failed(req.Level, err, start, tags, c.id)
	}

	return &core.ExecutionResult{
		Success:         true,
		Level:           core.LevelCoordinated,
		Result:          payload,
		ExecutionTime:   time.Since(start),
		AnnotationsUsed: tags,
		Backend:         c.id,
		Metadata: map[string]interface{}{
			"coordination":       "multi_engine_coordination",
			"optimization":       string(priority),
			"engines_considered": c.considered,
			"selection":          selectionMode(c),
		},
	}
}

func (d *Dispatcher) executeLevel3(ctx context.Context, req core.Request, start time.Time) *core.ExecutionResult {
	ctx, span := d.levelSpan(ctx, core.LevelCascade)
	defer span.End()

	ectx := req.Context
	base := strings.TrimSpace(ectx.BaseBackend)
	if base == "" {
		base = d.defaultBase
	}
	ectx.BaseBackend = base

	set := d.extractor.Extract(req.Text)
	tags := set.Tags()

	metadata := map[string]interface{}{
		"base":          base,
		"handoff_count": len(tags),
	}

	champion := strings.TrimSpace(req.Backend)
	if champion == "" || strings.EqualFold(champion, AutoBackend) {
		sel := d.selector.Select(ctx, set, ectx)
		champion = sel.Backend
		metadata["strategy"] = sel.Strategy
		metadata["matched_by"] = string(sel.MatchedBy)
		metadata["tier"] = string(sel.Tier)
		metadata["score"] = sel.Score
		metadata["selection"] = "auto"
	} else {
		metadata["selection"] = "explicit"
	}
	path := base + CascadeArrow + champion
	metadata["champion"] = champion
	span.SetAttributes(attribute.String("cascade", path))

	if champion == base {
		err := core.ValidationError("dispatcher.Execute", "champion backend %q must differ from base backend %q", champion, base)
		return failed(req.Level, err, start, tags, path)
	}

	b, err := d.registry.Get(champion)
	if err != nil {
		return failed(req.Level, err, start, tags, path)
	}

	opts := mergeOptions(ectx.Options, req.Options)
	payload, err := invoke(champion, core.LevelCascade, func() (map[string]interface{}, error) {
		return b.ExecuteLevel3(ctx, set, ectx, base, opts)
	})
	if err != nil {
		return failed(req.Level, err, start, tags, path)
	}

	return &core.ExecutionResult{
		Success:         true,
		Level:           core.LevelCascade,
		Result:          payload,
		ExecutionTime:   time.Since(start),
		AnnotationsUsed: tags,
		Backend:         path,
		Metadata:        metadata,
	}
}

func failed(level core.Level, err error, start time.Time, tags []string, backend string) *core.ExecutionResult {
	res := core.FailedResult(level, err, time.Since(start), tags)
	res.Backend = backend
	return res
}

func selectionMode(c choice) string {
	if c.auto {
		return "auto"
	}
	return "explicit"
}

func mergeOptions(layers ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range layers {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
