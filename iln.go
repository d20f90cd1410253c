// Package iln routes text carrying intent annotations such as
// chan!('jobs', workers) to the execution backend best suited to it.
//
// A Nexus wires the pipeline together: the annotation grammar, the
// capability registry, the fitness scorer, the strategy selector and the
// leveled dispatcher, plus the ambient logger, memory store, telemetry and
// Pro collaborators chosen by Config.
//
//	nx, err := iln.New(iln.WithAPIKey(os.Getenv("ILN_API_KEY")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer nx.Close()
//
//	res := nx.Level1(ctx, "chan!('data_pipeline', concurrent_processing)", "auto")
//	fmt.Println(res.Backend, res.AnnotationsUsed)
package iln

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/capabilities"
	"github.com/iln-nexus/iln/pkg/communication"
	"github.com/iln-nexus/iln/pkg/core"
	"github.com/iln-nexus/iln/pkg/logger"
	"github.com/iln-nexus/iln/pkg/memory"
	"github.com/iln-nexus/iln/pkg/orchestration"
	"github.com/iln-nexus/iln/pkg/routing"
	"github.com/iln-nexus/iln/pkg/scoring"
	"github.com/iln-nexus/iln/pkg/telemetry"
)

// Re-export the request and result types callers need
type (
	Request          = core.Request
	ExecutionResult  = core.ExecutionResult
	ExecutionContext = core.ExecutionContext
	Priority         = core.Priority
	Level            = core.Level
	Profile          = capabilities.Profile
	Backend          = capabilities.Backend
	Stats            = orchestration.Stats
)

// Nexus owns one pipeline and everything it needs. Instances share no
// hidden state; each has its own registry and counters.
type Nexus struct {
	config     *Config
	logger     logger.Logger
	grammar    *annotation.Grammar
	registry   *capabilities.Registry
	scorer     *scoring.Scorer
	selector   *routing.Selector
	dispatcher *orchestration.Dispatcher
	memory     memory.Memory
	provider   *telemetry.Provider
}

// New builds a Nexus from NewConfig(opts...)
func New(opts ...Option) (*Nexus, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(context.Background(), cfg)
}

// NewWithConfig builds a Nexus from a validated configuration
func NewWithConfig(ctx context.Context, cfg *Config) (nx *Nexus, err error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := cfg.Logger
	if base == nil {
		base = logger.New(cfg.Logging.Format, cfg.Logging.Level)
	}
	nx = &Nexus{
		config:  cfg,
		logger:  base.With(map[string]interface{}{"component": cfg.Name}),
		grammar: annotation.DefaultGrammar(),
	}
	defer func() {
		if err != nil {
			_ = nx.Close()
			nx = nil
		}
	}()

	if nx.registry, err = buildRegistry(cfg.Heuristics); err != nil {
		return nil, err
	}

	tables, routingCfg, err := loadHeuristics(cfg.Heuristics)
	if err != nil {
		return nil, err
	}
	if nx.scorer, err = scoring.NewScorer(nx.registry, tables); err != nil {
		return nil, err
	}
	if nx.selector, err = routing.NewSelector(nx.registry, nx.scorer, routingCfg, routing.WithLogger(nx.logger)); err != nil {
		return nil, err
	}

	if nx.memory, err = buildMemory(cfg.Memory); err != nil {
		return nil, err
	}

	dispatchOpts := []orchestration.Option{
		orchestration.WithExtractor(nx.grammar),
		orchestration.WithLogger(nx.logger),
		orchestration.WithEntitlementTimeout(cfg.Pro.EntitlementTimeout),
	}
	gated := make([]core.Level, 0, len(cfg.Pro.GatedLevels))
	for _, l := range cfg.Pro.GatedLevels {
		gated = append(gated, core.Level(l))
	}
	dispatchOpts = append(dispatchOpts, orchestration.WithGatedLevels(gated...))

	entitler, err := nx.buildEntitler()
	if err != nil {
		return nil, err
	}
	dispatchOpts = append(dispatchOpts, orchestration.WithEntitler(entitler))

	if cfg.Pro.RemoteExecution && cfg.HasPro() {
		clientOpts := []communication.ProClientOption{
			communication.WithTimeout(cfg.Pro.Timeout),
			communication.WithUserAgent(UserAgent()),
			communication.WithClientLogger(nx.logger),
		}
		if inv, ok := entitler.(communication.Invalidator); ok {
			clientOpts = append(clientOpts, communication.WithInvalidator(inv))
		}
		client, err := communication.NewProClient(cfg.Pro.Endpoint, cfg.Pro.APIKey, clientOpts...)
		if err != nil {
			return nil, err
		}
		dispatchOpts = append(dispatchOpts, orchestration.WithRemote(client))
	}

	if cfg.Telemetry.Enabled {
		nx.provider, err = telemetry.NewProvider(ctx, telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: Version,
			Exporter:       cfg.Telemetry.Exporter,
			Endpoint:       cfg.Telemetry.Endpoint,
			Insecure:       cfg.Telemetry.Insecure,
			SampleRatio:    cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, err
		}
		metrics, err := telemetry.NewDispatchMetrics(nx.provider.Meter())
		if err != nil {
			return nil, err
		}
		dispatchOpts = append(dispatchOpts, orchestration.WithRecorder(metrics))
	}

	if nx.dispatcher, err = orchestration.NewDispatcher(nx.registry, nx.scorer, nx.selector, dispatchOpts...); err != nil {
		return nil, err
	}

	nx.logger.Info("Nexus initialized", map[string]interface{}{
		"version":          Version,
		"backends":         nx.registry.List(),
		"gated_levels":     cfg.Pro.GatedLevels,
		"entitlement_mode": cfg.Pro.EntitlementMode,
		"remote":           cfg.Pro.RemoteExecution && cfg.HasPro(),
		"memory":           cfg.Memory.Provider,
		"telemetry":        cfg.Telemetry.Enabled,
	})
	return nx, nil
}

func buildRegistry(h HeuristicsConfig) (*capabilities.Registry, error) {
	reg := capabilities.NewBuiltinRegistry()
	if h.ProfilesDir == "" {
		return reg, nil
	}
	profiles, err := capabilities.NewYAMLLoader().LoadDir(h.ProfilesDir)
	if err != nil {
		return nil, fmt.Errorf("loading profiles: %w", err)
	}
	if err := capabilities.Apply(reg, profiles); err != nil {
		return nil, err
	}
	return reg, nil
}

func loadHeuristics(h HeuristicsConfig) (scoring.Tables, routing.Config, error) {
	tables := scoring.DefaultTables()
	routingCfg := routing.DefaultConfig()
	if h.File != "" {
		var err error
		if tables, err = scoring.LoadTables(h.File); err != nil {
			return scoring.Tables{}, routing.Config{}, err
		}
		if routingCfg, err = routing.LoadConfig(h.File); err != nil {
			return scoring.Tables{}, routing.Config{}, err
		}
	}
	if h.StrategiesDir != "" {
		strategies, err := routing.LoadStrategyDir(h.StrategiesDir)
		if err != nil {
			return scoring.Tables{}, routing.Config{}, fmt.Errorf("loading strategies: %w", err)
		}
		routingCfg = routingCfg.Merge(&routing.Override{Strategies: strategies})
	}
	return tables, routingCfg, nil
}

func buildMemory(m MemoryConfig) (memory.Memory, error) {
	if m.Provider == "redis" {
		store, err := memory.NewRedisStore(m.RedisURL, m.Namespace)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return memory.NewInMemoryStore(), nil
}

func (nx *Nexus) buildEntitler() (communication.Entitler, error) {
	pro := nx.config.Pro
	if pro.EntitlementMode != EntitlementRemote {
		return communication.NewStaticEntitlement(pro.APIKey), nil
	}
	return communication.NewRemoteEntitlement(pro.Endpoint, pro.APIKey,
		communication.WithEntitlementCache(nx.memory, pro.EntitlementCacheTTL),
		communication.WithEntitlementTimeout(pro.EntitlementTimeout),
		communication.WithEntitlementLogger(nx.logger),
	)
}

// Config returns the configuration the nexus was built with
func (nx *Nexus) Config() *Config {
	return nx.config
}

// Registry exposes the capability registry
func (nx *Nexus) Registry() *capabilities.Registry {
	return nx.registry
}

// Selector exposes the strategy selector
func (nx *Nexus) Selector() *routing.Selector {
	return nx.selector
}

// Execute runs req through the dispatcher. It never returns nil.
func (nx *Nexus) Execute(ctx context.Context, req core.Request) *core.ExecutionResult {
	ctx, _ = telemetry.EnsureCorrelationID(ctx)
	return nx.dispatcher.Execute(ctx, req)
}

// Run is Execute with the request spelled out
func (nx *Nexus) Run(ctx context.Context, text string, level int, backend string, ectx core.ExecutionContext, options map[string]interface{}) *core.ExecutionResult {
	return nx.Execute(ctx, core.Request{
		Text:    text,
		Level:   core.Level(level),
		Backend: backend,
		Context: ectx,
		Options: options,
	})
}

// Level1 runs text at level 1 on backend ("auto" to choose)
func (nx *Nexus) Level1(ctx context.Context, text, backend string) *core.ExecutionResult {
	return nx.Run(ctx, text, int(core.LevelDirect), backend, core.ExecutionContext{}, nil)
}

// Level2 runs text at level 2 optimizing for priority
func (nx *Nexus) Level2(ctx context.Context, text, backend string, priority core.Priority) *core.ExecutionResult {
	return nx.Run(ctx, text, int(core.LevelCoordinated), backend,
		core.ExecutionContext{Priority: priority},
		map[string]interface{}{"priority": string(priority)})
}

// Pro runs text at a gated level. Levels below 3 are rejected.
func (nx *Nexus) Pro(ctx context.Context, text string, level int, options map[string]interface{}) *core.ExecutionResult {
	if level < int(core.LevelCascade) {
		err := core.ValidationError("nexus.Pro", "pro execution requires level 3 or 4, got %d", level)
		return core.FailedResult(core.Level(level), err, 0, nil)
	}
	return nx.Run(ctx, text, level, orchestration.AutoBackend, core.ExecutionContext{}, options)
}

// Register adds or replaces a backend
func (nx *Nexus) Register(id string, profile capabilities.Profile, backend capabilities.Backend) error {
	if err := nx.registry.Register(id, profile, backend); err != nil {
		return err
	}
	nx.logger.Info("Backend registered", map[string]interface{}{"backend": id})
	return nil
}

// Stats returns the execution counters
func (nx *Nexus) Stats() orchestration.Stats {
	return nx.dispatcher.Stats()
}

// Close releases the registry backends, the memory store and telemetry
func (nx *Nexus) Close() error {
	var errs []error
	if nx.registry != nil {
		if err := nx.registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c, ok := nx.memory.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing memory: %w", err))
		}
	}
	if nx.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := nx.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
		}
	}
	if s, ok := nx.logger.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
	return errors.Join(errs...)
}
