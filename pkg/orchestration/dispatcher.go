package orchestration

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/capabilities"
	"github.com/iln-nexus/iln/pkg/communication"
	"github.com/iln-nexus/iln/pkg/core"
	"github.com/iln-nexus/iln/pkg/logger"
	"github.com/iln-nexus/iln/pkg/routing"
	"github.com/iln-nexus/iln/pkg/scoring"
	"github.com/iln-nexus/iln/pkg/telemetry"
)

// Dispatcher runs requests through extraction, scoring and selection at
// one of four levels and normalizes every outcome into an ExecutionResult.
// Several dispatchers may share a registry; the counters are per dispatcher.
type Dispatcher struct {
	registry  *capabilities.Registry
	scorer    *scoring.Scorer
	selector  *routing.Selector
	extractor annotation.Extractor
	entitler  communication.Entitler
	remote    communication.RemoteExecutor
	logger    logger.Logger
	recorder  telemetry.Recorder

	gated              map[core.Level]bool
	entitlementTimeout time.Duration
	defaultBase        string

	total      atomic.Int64
	successful atomic.Int64
}

// NewDispatcher creates a dispatcher over registry, scorer and selector
func NewDispatcher(registry *capabilities.Registry, scorer *scoring.Scorer, selector *routing.Selector, opts ...Option) (*Dispatcher, error) {
	if registry == nil || scorer == nil || selector == nil {
		return nil, fmt.Errorf("%w: dispatcher needs a registry, a scorer and a selector", core.ErrMissingConfiguration)
	}
	d := &Dispatcher{
		registry:           registry,
		scorer:             scorer,
		selector:           selector,
		extractor:          annotation.DefaultGrammar(),
		entitler:           communication.DenyAll(),
		logger:             logger.NoOpLogger{},
		recorder:           telemetry.NoopRecorder{},
		gated:              map[core.Level]bool{core.LevelMultiSector: true},
		entitlementTimeout: DefaultEntitlementTimeout,
		defaultBase:        DefaultBaseBackend,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Gated reports whether level needs entitlement
func (d *Dispatcher) Gated(level core.Level) bool {
	return d.gated[level]
}

// Entitled asks the entitlement collaborator about level, bounded by the
// entitlement timeout. Ungated levels are always entitled.
func (d *Dispatcher) Entitled(ctx context.Context, level core.Level) (bool, error) {
	if !d.gated[level] {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.entitlementTimeout)
	defer cancel()
	return d.entitler.IsEntitled(ctx, level)
}

// Stats returns the aggregate counters
func (d *Dispatcher) Stats() Stats {
	total := d.total.Load()
	ok := d.successful.Load()
	return Stats{TotalExecutions: total, SuccessfulExecutions: ok, FailedExecutions: total - ok}
}

// Execute runs req. It never returns nil and never panics; failures are
// reported through the result.
func (d *Dispatcher) Execute(ctx context.Context, req core.Request) (res *core.ExecutionResult) {
	start := time.Now()
	executionID := uuid.New().String()

	tracer := otel.Tracer("iln.orchestration")
	ctx, span := tracer.Start(ctx, "Dispatcher.Execute",
		trace.WithAttributes(
			attribute.String("execution_id", executionID),
			attribute.Int("level", int(req.Level)),
			attribute.String("backend.requested", req.Backend),
			attribute.String("domain", req.Context.Domain),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := &core.Error{
				Op:      "dispatcher.Execute",
				Kind:    core.KindBackend,
				Message: fmt.Sprintf("panic during level %d execution: %v", req.Level, r),
				Err:     core.ErrBackendFault,
			}
			var tags []string
			if res != nil {
				tags = res.AnnotationsUsed
			}
			res = core.FailedResult(req.Level, err, time.Since(start), tags)
			res.Backend = req.Backend
		}
		d.finish(ctx, span, executionID, res)
	}()

	if !req.Level.Valid() {
		err := core.ValidationError("dispatcher.Execute", "invalid level %d: must be between 1 and 4", int(req.Level))
		return core.FailedResult(req.Level, err, time.Since(start), nil)
	}

	if d.gated[req.Level] {
		entitled, err := d.Entitled(ctx, req.Level)
		if err != nil {
			if core.KindOf(err) == core.KindInternal {
				err = &core.Error{Op: "dispatcher.Entitled", Kind: core.KindTransport, Err: fmt.Errorf("%w: entitlement check: %v", core.ErrTransport, err)}
			}
			res = core.FailedResult(req.Level, err, time.Since(start), nil)
			res.Backend = req.Backend
			return res
		}
		if !entitled {
			span.AddEvent("Entitlement refused")
			res = core.FailedResult(req.Level, core.EntitlementError(int(req.Level)), 0, nil)
			res.Backend = req.Backend
			return res
		}
		if d.remote != nil {
			return d.executeRemote(ctx, req, start)
		}
	}

	switch req.Level {
	case core.LevelDirect:
		res = d.executeLevel1(ctx, req, start)
	case core.LevelCoordinated:
		res = d.executeLevel2(ctx, req, start)
	case core.LevelCascade:
		res = d.executeLevel3(ctx, req, start)
	default:
		res = d.executeLevel4(ctx, req, start)
	}
	return res
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, executionID string, res *core.ExecutionResult) {
	d.total.Add(1)
	if res.Success {
		d.successful.Add(1)
	}
	if res.Metadata == nil {
		res.Metadata = make(map[string]interface{})
	}
	res.Metadata["execution_id"] = executionID

	d.recorder.RecordExecution(ctx, telemetry.ExecutionRecord{
		Level:     int(res.Level),
		Backend:   res.Backend,
		Success:   res.Success,
		ErrorKind: res.ErrorKind,
		Duration:  res.ExecutionTime,
	})

	span.SetAttributes(
		attribute.String("backend", res.Backend),
		attribute.StringSlice("annotations", res.AnnotationsUsed),
		attribute.Bool("success", res.Success),
	)
	fields := map[string]interface{}{
		"execution_id": executionID,
		"level":        int(res.Level),
		"backend":      res.Backend,
		"annotations":  res.AnnotationsUsed,
		"duration_ms":  res.ExecutionTime.Milliseconds(),
	}
	if res.Success {
		span.SetStatus(codes.Ok, "Execution completed")
		d.logger.Info("Execution completed", telemetry.EnrichLogFields(ctx, fields))
		return
	}
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	span.SetStatus(codes.Error, res.Error)
	fields["error"] = res.Error
	fields["error_kind"] = res.ErrorKind
	d.logger.Warn("Execution failed", telemetry.EnrichLogFields(ctx, fields))
}

func (d *Dispatcher) executeRemote(ctx context.Context, req core.Request, start time.Time) *core.ExecutionResult {
	resp, err := d.remote.Execute(ctx, req)
	if err != nil {
		var tags []string
		if resp != nil {
			tags = resp.AnnotationsUsed
		}
		res := core.FailedResult(req.Level, err, time.Since(start), tags)
		res.Backend = req.Backend
		return res
	}

	metadata := make(map[string]interface{}, len(resp.Metadata)+1)
	for k, v := range resp.Metadata {
		metadata[k] = v
	}
	metadata["remote"] = true

	tags := resp.AnnotationsUsed
	if tags == nil {
		tags = []string{}
	}
	return &core.ExecutionResult{
		Success:         true,
		Level:           req.Level,
		Result:          resp.Result,
		ExecutionTime:   time.Since(start),
		AnnotationsUsed: tags,
		Backend:         resp.BackendUsed,
		Metadata:        metadata,
	}
}
