package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Set holds the plugins attached to one application instance
type Set interface {
	// Attach creates a plugin from factory and keeps it for the lifetime of the set
	Attach(ctx context.Context, factory Factory) error

	// Get retrieves an attached plugin
	Get(name string) (Plugin, bool)

	// Names returns the attached plugin names in attach order
	Names() []string

	// Methods returns the method metadata of an attached plugin
	Methods(name string) []MethodMetadata

	// Execute routes a call to the appropriate plugin
	Execute(ctx context.Context, pluginName, method string, params json.RawMessage) (json.RawMessage, error)

	// Config returns the configuration plugins are created with
	Config() Config

	// Close closes every attached plugin in reverse attach order
	Close() error
}

type attached struct {
	plugin  Plugin
	factory Factory
}

// defaultSet is the concrete implementation of Set
type defaultSet struct {
	plugins map[string]*attached
	order   []string
	config  Config
	closed  bool
	mu      sync.RWMutex
}

// Compile-time interface compliance checks
var (
	_ Set      = (*defaultSet)(nil)
	_ Registry = (*defaultRegistry)(nil)
)

// NewSet creates an empty plugin set. Missing telemetry providers and
// permission checkers are replaced by no-op and allow-all defaults.
func NewSet(config Config) Set {
	if config.Tracer == nil {
		config.Tracer = tracenoop.NewTracerProvider().Tracer("eidwallet/plugin")
	}
	if config.Meter == nil {
		config.Meter = metricnoop.NewMeterProvider().Meter("eidwallet/plugin")
	}
	if config.Permissions == nil {
		config.Permissions = AllowAll()
	}

	return &defaultSet{
		plugins: make(map[string]*attached),
		config:  config,
	}
}

// Attach creates a plugin from factory and keeps it for the lifetime of the set
func (s *defaultSet) Attach(ctx context.Context, factory Factory) error {
	if factory == nil {
		return ErrNilFactory
	}

	name := factory.Name()

	s.mu.RLock()
	closed := s.closed
	_, exists := s.plugins[name]
	s.mu.RUnlock()

	if closed {
		return &Error{Code: ErrorCodeSetClosed, Message: "plugin set has been closed"}
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, name)
	}

	p, err := factory.Create(ctx, s.config)
	if err != nil {
		return fmt.Errorf("failed to attach plugin %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plugins[name]; exists {
		closePlugin(p)
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, name)
	}
	s.plugins[name] = &attached{plugin: p, factory: factory}
	s.order = append(s.order, name)

	s.config.Logger.Debug().
		Str("plugin", name).
		Str("version", factory.Version()).
		Msg("plugin attached")

	return nil
}

// Get retrieves an attached plugin
func (s *defaultSet) Get(name string) (Plugin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.plugins[name]
	if !ok {
		return nil, false
	}
	return a.plugin, true
}

// Names returns the attached plugin names in attach order
func (s *defaultSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Methods returns the method metadata of an attached plugin
func (s *defaultSet) Methods(name string) []MethodMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.plugins[name]
	if !ok {
		return nil
	}
	return a.factory.Methods()
}

// Execute routes a call to the appropriate plugin with permission checks and telemetry
func (s *defaultSet) Execute(ctx context.Context, pluginName, method string, params json.RawMessage) (json.RawMessage, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, &Error{
			Code:    ErrorCodeSetClosed,
			Message: "plugin set has been closed",
			Details: "Execute called after Close()",
		}
	}
	a, ok := s.plugins[pluginName]
	s.mu.RUnlock()

	if !ok {
		return nil, &Error{
			Code:    ErrorCodePluginNotFound,
			Message: fmt.Sprintf("plugin %s not found", pluginName),
		}
	}

	ctx, span := s.config.Tracer.Start(ctx, fmt.Sprintf("plugin.%s.%s", pluginName, method))
	defer span.End()

	decision, err := s.config.Permissions.Check(ctx, Call{Plugin: pluginName, Method: method})
	if err != nil {
		span.RecordError(err)
		return nil, &Error{
			Code:    ErrorCodeInternalError,
			Message: fmt.Sprintf("permission check failed: %v", err),
		}
	}
	if !decision.Allowed {
		return nil, &Error{
			Code:    ErrorCodePermissionDenied,
			Message: decision.Reason,
		}
	}

	start := time.Now()
	result, executeErr := a.plugin.Execute(ctx, method, params)
	duration := time.Since(start)

	attrs := []attribute.KeyValue{
		attribute.String("plugin", pluginName),
		attribute.String("method", method),
		attribute.Bool("success", executeErr == nil),
	}

	callCounter, _ := s.config.Meter.Int64Counter("plugin_calls")
	callCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	durationHistogram, _ := s.config.Meter.Float64Histogram("plugin_call_duration_ms")
	durationHistogram.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs[:2]...))

	if executeErr != nil {
		span.RecordError(executeErr)
		s.config.Logger.Error().
			Err(executeErr).
			Str("plugin", pluginName).
			Str("method", method).
			Dur("duration", duration).
			Msg("plugin call failed")
		return nil, executeErr
	}

	return result, nil
}

// Config returns the configuration plugins are created with
func (s *defaultSet) Config() Config {
	return s.config
}

// Close closes every attached plugin in reverse attach order
func (s *defaultSet) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	order := s.order
	plugins := s.plugins
	s.order = nil
	s.plugins = make(map[string]*attached)
	s.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := closePlugin(plugins[name].plugin); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing plugins: %v", errs)
	}

	return nil
}

func closePlugin(p Plugin) error {
	if closer, ok := p.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
