// Package app hosts the application: it attaches plugins, runs setup
// callbacks, routes invoke requests from the UI and keeps everything alive
// until the run loop ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tochemey/goakt/v2/actors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/eidwallet/eidwallet/internal/config"
	"github.com/eidwallet/eidwallet/internal/platform"
	"github.com/eidwallet/eidwallet/internal/plugin"
)

// Phase names the bootstrap step a RunError happened in
type Phase string

const (
	PhasePlatform Phase = "platform"
	PhasePlugins  Phase = "plugins"
	PhaseSetup    Phase = "setup"
	PhaseStart    Phase = "start"
	PhaseRun      Phase = "run"
)

// DefaultInvokeTimeout bounds every invoke request
const DefaultInvokeTimeout = 2 * time.Minute

// RunError is returned when the application fails to launch or run
type RunError struct {
	Phase Phase
	Cause error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("application %s failed: %v", e.Phase, e.Cause)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

// SetupFunc runs once after the builder's plugins are attached and before
// the run loop starts. A returned error aborts the launch.
type SetupFunc func(h *Handle) error

// Builder assembles an application
type Builder struct {
	factories    []plugin.Factory
	setups       []SetupFunc
	handler      InvokeHandler
	capabilities platform.Capabilities
	platform     *platform.Platform
	args         []string
	logger       zerolog.Logger
	tracer       trace.Tracer
	meter        metric.Meter
	timeout      time.Duration
}

// Default returns a builder with the global logger and no plugins
func Default() *Builder {
	return &Builder{
		capabilities: platform.NoCapabilities(),
		logger:       log.Logger,
		timeout:      DefaultInvokeTimeout,
	}
}

// Plugin attaches factory at launch, in call order
func (b *Builder) Plugin(factory plugin.Factory) *Builder {
	b.factories = append(b.factories, factory)
	return b
}

// Setup adds a setup callback. Callbacks run in call order and the first
// error stops the launch.
func (b *Builder) Setup(fn SetupFunc) *Builder {
	b.setups = append(b.setups, fn)
	return b
}

// InvokeHandler sets the handler answering UI commands
func (b *Builder) InvokeHandler(h InvokeHandler) *Builder {
	b.handler = h
	return b
}

// Capabilities sets the plugins offered to setup callbacks on mobile platforms
func (b *Builder) Capabilities(c platform.Capabilities) *Builder {
	b.capabilities = c
	return b
}

// Platform overrides platform detection
func (b *Builder) Platform(p platform.Platform) *Builder {
	b.platform = &p
	return b
}

// Args sets the arguments the application was started with
func (b *Builder) Args(args []string) *Builder {
	b.args = args
	return b
}

// Logger sets the application logger
func (b *Builder) Logger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// Telemetry sets the tracer and meter used for plugin calls
func (b *Builder) Telemetry(tracer trace.Tracer, meter metric.Meter) *Builder {
	b.tracer = tracer
	b.meter = meter
	return b
}

// InvokeTimeout bounds every invoke request. A caller deadline can only
// shorten it.
func (b *Builder) InvokeTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.timeout = d
	}
	return b
}

// Run builds the application and runs it until ctx is cancelled
func (b *Builder) Run(ctx context.Context, cfg *config.Config) error {
	a, err := b.Build(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// Build attaches plugins, runs setup and starts the bridge actors. The
// returned App is ready to serve invoke requests; Close releases it.
func (b *Builder) Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := b.logger.With().Str("component", "app").Logger()

	p, err := b.detect(cfg)
	if err != nil {
		return nil, &RunError{Phase: PhasePlatform, Cause: err}
	}
	logger.Info().Str("platform", p.String()).Str("identifier", cfg.Identifier).Msg("starting application")

	settings, err := cfg.PluginSettings()
	if err != nil {
		return nil, &RunError{Phase: PhasePlugins, Cause: err}
	}

	bus := NewBus(logger)
	registry := plugin.NewRegistry()
	for _, f := range b.factories {
		if err := registry.Register(f); err != nil {
			return nil, &RunError{Phase: PhasePlugins, Cause: err}
		}
	}

	set, err := registry.CreateSet(ctx, plugin.Config{
		Identifier:  cfg.Identifier,
		ProductName: cfg.ProductName,
		Version:     cfg.Version,
		DataDir:     cfg.DataDir,
		Args:        b.args,
		Mobile:      p.Mobile(),
		Settings:    settings,
		Events:      bus,
		Permissions: plugin.NewPermissions(cfg.Permissions...),
		Tracer:      b.tracer,
		Meter:       b.meter,
		Logger:      b.logger,
	})
	if err != nil {
		return nil, &RunError{Phase: PhasePlugins, Cause: err}
	}

	life, stop := context.WithCancel(ctx)
	a := &App{
		life:     life,
		stop:     stop,
		config:   cfg,
		platform: p,
		plugins:  set,
		handler:  b.handler,
		commands: NewRouter(),
		events:   bus,
		timeout:  b.timeout,
		logger:   logger,
	}

	h := &Handle{app: a, ctx: life, capabilities: b.capabilities}
	for _, setup := range b.setups {
		if err := setup(h); err != nil {
			stop()
			a.closePlugins()
			return nil, &RunError{Phase: PhaseSetup, Cause: err}
		}
	}

	if err := a.start(ctx, cfg.IPC.Workers); err != nil {
		stop()
		a.closePlugins()
		return nil, &RunError{Phase: PhaseStart, Cause: err}
	}

	logger.Info().
		Strs("plugins", set.Names()).
		Strs("commands", a.Commands()).
		Msg("application ready")
	return a, nil
}

func (b *Builder) detect(cfg *config.Config) (platform.Platform, error) {
	if b.platform != nil {
		return *b.platform, nil
	}
	kind, err := platform.ParseKind(cfg.Platform)
	if err != nil {
		return platform.Platform{}, err
	}
	return platform.Detect(kind)
}

// start brings up the actor system and the bridge workers
func (a *App) start(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	system, err := actors.NewActorSystem("eidwallet")
	if err != nil {
		return fmt.Errorf("failed to create actor system: %w", err)
	}
	if err := system.Start(ctx); err != nil {
		return fmt.Errorf("failed to start actor system: %w", err)
	}

	a.system = system
	a.idle = make(chan *actors.PID, workers)
	for i := 0; i < workers; i++ {
		pid, err := system.Spawn(ctx, fmt.Sprintf("bridge-%d", i), newBridge(a.dispatch, a.logger))
		if err != nil {
			return errors.Join(
				fmt.Errorf("failed to spawn bridge actor: %w", err),
				system.Stop(context.Background()),
			)
		}
		a.idle <- pid
	}
	return nil
}
