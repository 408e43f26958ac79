// Package plugin defines the capability plugin contract shared by the
// application host and every plugin under internal/plugins.
package plugin

import (
	"context"
	"encoding/json"

	"github.com/go-openapi/spec"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Plugin is an attached capability instance
type Plugin interface {
	// Name returns the plugin identifier (e.g., "store")
	Name() string

	// Version returns the semantic version of the plugin
	Version() string

	// Execute handles a method call with JSON parameters
	Execute(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
}

// Factory creates plugin instances. Attaching a plugin means calling Create
// and keeping the result for the lifetime of the application.
type Factory interface {
	// Name returns the plugin identifier (e.g., "store")
	Name() string

	// Version returns the semantic version of the plugin
	Version() string

	// Create creates the plugin instance
	Create(ctx context.Context, config Config) (Plugin, error)

	// Methods returns metadata about the methods the plugin exposes
	Methods() []MethodMetadata
}

// MethodMetadata describes a plugin method for listings and permission docs
type MethodMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  *spec.Schema    `json:"parameters,omitempty"`
	Returns     *spec.Schema    `json:"returns,omitempty"`
	Errors      []ErrorMetadata `json:"errors,omitempty"`
}

// ErrorMetadata describes possible errors a method can return
type ErrorMetadata struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Emitter publishes events to the UI layer
type Emitter interface {
	Emit(name string, payload any) error
}

// EmitterFunc adapts a function to the Emitter interface
type EmitterFunc func(name string, payload any) error

// Emit calls f(name, payload)
func (f EmitterFunc) Emit(name string, payload any) error {
	return f(name, payload)
}

// Config is handed to every factory when a plugin is attached
type Config struct {
	// Application identity
	Identifier  string // reverse-DNS app identifier (e.g., "nl.dobs.eidwallet")
	ProductName string
	Version     string

	// DataDir is the per-application data directory
	DataDir string

	// Args are the process arguments the application was started with
	Args []string

	// Mobile reports whether the application runs on a mobile platform
	Mobile bool

	// Settings holds plugin-specific settings keyed by plugin name
	Settings map[string]json.RawMessage

	// Events publishes plugin events to the UI layer
	Events Emitter

	// Permissions gates method calls on the plugin set
	Permissions PermissionChecker

	// Telemetry
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger zerolog.Logger
}

// Setting decodes the plugin-specific settings for name into v.
// Missing settings leave v untouched.
func (c Config) Setting(name string, v any) error {
	raw, ok := c.Settings[name]
	if !ok || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{
			Code:    ErrorCodeInvalidConfig,
			Message: "invalid settings for plugin " + name,
			Details: err.Error(),
		}
	}
	return nil
}

// Emit publishes an event if an emitter is configured
func (c Config) Emit(name string, payload any) error {
	if c.Events == nil {
		return nil
	}
	return c.Events.Emit(name, payload)
}
