package routing

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/core"
	"github.com/iln-nexus/iln/pkg/logger"
	"github.com/iln-nexus/iln/pkg/scoring"
)

// Catalog answers which backends exist. *capabilities.Registry implements it.
type Catalog interface {
	Has(id string) bool
	IsMeta(id string) bool
	// Candidates lists the selectable ids in registration order.
	Candidates() []string
}

// Selector resolves a strategy and picks its best candidate backend
type Selector struct {
	catalog    Catalog
	scorer     *scoring.Scorer
	cfg        Config
	strategies map[string]Strategy
	logger     logger.Logger

	mu    sync.Mutex
	stats SelectorStats
}

// SelectorOption configures the selector
type SelectorOption func(*Selector)

// WithLogger sets the logger
func WithLogger(log logger.Logger) SelectorOption {
	return func(s *Selector) {
		if log != nil {
			s.logger = log
		}
	}
}

// NewSelector validates cfg and returns a selector over catalog
func NewSelector(catalog Catalog, scorer *scoring.Scorer, cfg Config, options ...SelectorOption) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()
	s := &Selector{
		catalog:    catalog,
		scorer:     scorer,
		cfg:        cfg,
		strategies: make(map[string]Strategy, len(cfg.Strategies)),
		logger:     logger.NoOpLogger{},
		stats:      SelectorStats{ByStrategy: make(map[string]int64)},
	}
	for _, st := range cfg.Strategies {
		s.strategies[st.Name] = st
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Config returns a copy of the selector configuration
func (s *Selector) Config() Config {
	return s.cfg.Clone()
}

// Resolve returns the strategy chosen by the first matching rule. Domain
// rules are tried first, then tag rules, then priority rules, each in
// declared order. Without a match the default strategy applies.
func (s *Selector) Resolve(set *annotation.Set, ectx core.ExecutionContext) (Strategy, RuleKind) {
	domain := strings.ToLower(strings.TrimSpace(ectx.Domain))
	priority := string(ectx.EffectivePriority())

	for _, kind := range ruleKindOrder {
		for _, r := range s.cfg.Rules {
			if r.Kind != kind {
				continue
			}
			for _, m := range r.Match {
				if s.ruleMatches(kind, m, domain, priority, set) {
					return s.strategies[r.Strategy], kind
				}
			}
		}
	}
	return s.strategies[s.cfg.DefaultStrategy], ""
}

func (s *Selector) ruleMatches(kind RuleKind, match, domain, priority string, set *annotation.Set) bool {
	switch kind {
	case RuleDomain:
		return domain != "" && strings.EqualFold(match, domain)
	case RuleTag:
		return set.Has(strings.ToLower(match))
	case RulePriority:
		return strings.EqualFold(match, priority)
	}
	return false
}

// Select picks the champion backend. Primary candidates that are
// registered and differ from the base backend are scored with the primary
// bonus; if none qualify the secondary list is scored without it; if that
// is empty too the default backend is returned. When the default backend
// is the base itself, the best other registered candidate replaces it.
// Ties go to the candidate listed first.
func (s *Selector) Select(ctx context.Context, set *annotation.Set, ectx core.ExecutionContext) Selection {
	tracer := otel.Tracer("iln.routing")
	_, span := tracer.Start(ctx, "Selector.Select",
		trace.WithAttributes(
			attribute.String("domain", ectx.Domain),
			attribute.String("base_backend", ectx.BaseBackend),
			attribute.StringSlice("annotations", set.Tags()),
		),
	)
	defer span.End()

	strategy, matchedBy := s.Resolve(set, ectx)
	sel := Selection{
		Strategy:  strategy.Name,
		MatchedBy: matchedBy,
		Priority:  ectx.EffectivePriority(),
	}

	if id, score, ok := s.best(strategy.Primary, set, ectx, s.cfg.PrimaryBonus); ok {
		sel.Backend, sel.Score, sel.Tier = id, score, TierPrimary
	} else if id, score, ok := s.best(strategy.Secondary, set, ectx, 0); ok {
		sel.Backend, sel.Score, sel.Tier = id, score, TierSecondary
	} else {
		sel.Backend, sel.Tier = s.fallback(set, ectx), TierDefault
		span.AddEvent("Default backend fallback")
	}

	span.SetAttributes(
		attribute.String("strategy", sel.Strategy),
		attribute.String("backend", sel.Backend),
		attribute.String("tier", string(sel.Tier)),
		attribute.Float64("score", sel.Score),
	)
	span.SetStatus(codes.Ok, "Backend selected")

	s.record(sel)
	s.logger.Debug("Selected backend", map[string]interface{}{
		"strategy":   sel.Strategy,
		"matched_by": string(sel.MatchedBy),
		"backend":    sel.Backend,
		"tier":       string(sel.Tier),
		"score":      sel.Score,
	})
	return sel
}

func (s *Selector) fallback(set *annotation.Set, ectx core.ExecutionContext) string {
	if ectx.BaseBackend == "" || s.cfg.DefaultBackend != ectx.BaseBackend {
		return s.cfg.DefaultBackend
	}
	if id, _, ok := s.best(s.catalog.Candidates(), set, ectx, 0); ok {
		return id
	}
	return s.cfg.DefaultBackend
}

func (s *Selector) best(candidates []string, set *annotation.Set, ectx core.ExecutionContext, bonus float64) (string, float64, bool) {
	priority := ectx.EffectivePriority()
	best, bestScore, found := "", 0.0, false
	for _, id := range candidates {
		if id == ectx.BaseBackend || !s.catalog.Has(id) || s.catalog.IsMeta(id) {
			continue
		}
		score := s.scorer.Score(id, set, priority, ectx) + bonus
		if !found || score > bestScore {
			best, bestScore, found = id, score, true
		}
	}
	return best, bestScore, found
}

func (s *Selector) record(sel Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalSelections++
	switch sel.Tier {
	case TierPrimary:
		s.stats.PrimarySelections++
	case TierSecondary:
		s.stats.SecondaryFallback++
	case TierDefault:
		s.stats.DefaultFallbacks++
	}
	s.stats.ByStrategy[sel.Strategy]++
	s.stats.LastSelectionTime = time.Now()
}

// GetStats returns selection statistics
func (s *Selector) GetStats() SelectorStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.ByStrategy = make(map[string]int64, len(s.stats.ByStrategy))
	for k, v := range s.stats.ByStrategy {
		out.ByStrategy[k] = v
	}
	return out
}
