package scoring

import (
	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/capabilities"
	"github.com/iln-nexus/iln/pkg/core"
)

// ProfileSource looks up backend profiles. *capabilities.Registry implements it.
type ProfileSource interface {
	Profile(id string) (capabilities.Profile, bool)
}

// Scorer computes a backend's fitness for a set of annotations.
// Score is deterministic and has no side effects.
type Scorer struct {
	profiles ProfileSource
	tables   Tables
	// tag -> backend id -> preferred
	preferred map[string]map[string]bool
}

// NewScorer validates tables once and returns a scorer over profiles.
func NewScorer(profiles ProfileSource, tables Tables) (*Scorer, error) {
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	tables = tables.Clone()
	preferred := make(map[string]map[string]bool, len(tables.TagBackends))
	for tag, ids := range tables.TagBackends {
		preferred[tag] = make(map[string]bool, len(ids))
		for _, id := range ids {
			preferred[tag][id] = true
		}
	}
	return &Scorer{profiles: profiles, tables: tables, preferred: preferred}, nil
}

// Tables returns a copy of the scorer's tables.
func (s *Scorer) Tables() Tables {
	return s.tables.Clone()
}

// Score returns the fitness of backend id in [0,1].
//
// The weighted sum of the profile's capability scores uses the priority's
// vector. Each tag present in set whose preferred list names id adds
// TagBonus once, regardless of instance count. A context domain among the
// profile's specialties adds DomainBonus. The total is capped at 1.
// Unknown ids score 0.
func (s *Scorer) Score(id string, set *annotation.Set, priority core.Priority, ectx core.ExecutionContext) float64 {
	profile, ok := s.profiles.Profile(id)
	if !ok {
		return 0
	}

	w := s.tables.WeightsFor(priority)
	score := w.Performance*profile.Performance +
		w.Safety*profile.Safety +
		w.Reactivity*profile.Reactivity +
		w.Ecosystem*profile.Ecosystem

	for _, tag := range set.Tags() {
		if s.preferred[tag][id] {
			score += s.tables.TagBonus
		}
	}

	if profile.HasSpecialty(ectx.Domain) {
		score += s.tables.DomainBonus
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Best returns the highest-scoring id among candidates. Ties go to the
// earliest candidate. It returns "" for an empty list.
func (s *Scorer) Best(candidates []string, set *annotation.Set, priority core.Priority, ectx core.ExecutionContext) (string, float64) {
	best, bestScore := "", -1.0
	for _, id := range candidates {
		if sc := s.Score(id, set, priority, ectx); sc > bestScore {
			best, bestScore = id, sc
		}
	}
	if best == "" {
		return "", 0
	}
	return best, bestScore
}
