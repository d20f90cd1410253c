package orchestration

import (
	"time"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/communication"
	"github.com/iln-nexus/iln/pkg/core"
	"github.com/iln-nexus/iln/pkg/logger"
	"github.com/iln-nexus/iln/pkg/telemetry"
)

// AutoBackend asks the dispatcher to choose the backend
const AutoBackend = "auto"

// DefaultBaseBackend is the cascade base when the context names none
const DefaultBaseBackend = "python"

// DefaultEntitlementTimeout bounds the gate check
const DefaultEntitlementTimeout = 2 * time.Second

// Stats are the aggregate counters kept across calls
type Stats struct {
	TotalExecutions      int64 `json:"total_executions" yaml:"total_executions"`
	SuccessfulExecutions int64 `json:"successful_executions" yaml:"successful_executions"`
	FailedExecutions     int64 `json:"failed_executions" yaml:"failed_executions"`
}

// SuccessRate returns successful/total, or 0 before the first call
func (s Stats) SuccessRate() float64 {
	if s.TotalExecutions == 0 {
		return 0
	}
	return float64(s.SuccessfulExecutions) / float64(s.TotalExecutions)
}

// Option configures the dispatcher
type Option func(*Dispatcher)

// WithExtractor replaces the default annotation grammar
func WithExtractor(e annotation.Extractor) Option {
	return func(d *Dispatcher) {
		if e != nil {
			d.extractor = e
		}
	}
}

// WithEntitler sets the gate collaborator. The default refuses every gated level.
func WithEntitler(e communication.Entitler) Option {
	return func(d *Dispatcher) {
		if e != nil {
			d.entitler = e
		}
	}
}

// WithRemote runs entitled gated levels on a remote executor instead of locally
func WithRemote(r communication.RemoteExecutor) Option {
	return func(d *Dispatcher) {
		d.remote = r
	}
}

// WithGatedLevels replaces the set of levels that need entitlement
func WithGatedLevels(levels ...core.Level) Option {
	return func(d *Dispatcher) {
		d.gated = make(map[core.Level]bool, len(levels))
		for _, l := range levels {
			d.gated[l] = true
		}
	}
}

// WithEntitlementTimeout bounds the gate check
func WithEntitlementTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.entitlementTimeout = t
		}
	}
}

// WithDefaultBase sets the cascade base used when the context names none
func WithDefaultBase(id string) Option {
	return func(d *Dispatcher) {
		if id != "" {
			d.defaultBase = id
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r telemetry.Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}
