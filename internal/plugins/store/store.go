// Package store provides persistent key-value storage to the UI layer.
// Every named store lives in one SQLite database in the application data
// directory.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/go-openapi/spec"
	"github.com/rs/zerolog"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

const (
	// Name is the plugin identifier
	Name = "store"
	// Version is the plugin version
	Version = "v2.2.0"

	// ChangeEvent is emitted after every mutation
	ChangeEvent = "store://change"

	defaultFile  = "store.db"
	defaultStore = "settings.json"
)

// Settings are read from the "store" plugin settings
type Settings struct {
	Path         string                                `json:"path"`
	DefaultStore string                                `json:"defaultStore"`
	Defaults     map[string]map[string]json.RawMessage `json:"defaults"`
}

// Builder configures the store plugin
type Builder struct {
	path         string
	defaultStore string
	defaults     map[string]map[string]json.RawMessage
}

// NewBuilder returns a builder with default settings
func NewBuilder() *Builder {
	return &Builder{}
}

// Path sets the database file. Relative paths resolve against the data directory.
func (b *Builder) Path(path string) *Builder {
	b.path = path
	return b
}

// DefaultStore sets the store used when a call names none
func (b *Builder) DefaultStore(name string) *Builder {
	b.defaultStore = name
	return b
}

// Default seeds key in store with value when the key is absent
func (b *Builder) Default(store, key string, value json.RawMessage) *Builder {
	if b.defaults == nil {
		b.defaults = make(map[string]map[string]json.RawMessage)
	}
	if b.defaults[store] == nil {
		b.defaults[store] = make(map[string]json.RawMessage)
	}
	b.defaults[store][key] = value
	return b
}

// Build returns the plugin factory
func (b *Builder) Build() plugin.Factory {
	return &factory{builder: *b}
}

type factory struct {
	builder Builder
}

func (f *factory) Name() string    { return Name }
func (f *factory) Version() string { return Version }

func (f *factory) Create(ctx context.Context, config plugin.Config) (plugin.Plugin, error) {
	var settings Settings
	if err := config.Setting(Name, &settings); err != nil {
		return nil, err
	}

	path := firstNonEmpty(f.builder.path, settings.Path, defaultFile)
	if !filepath.IsAbs(path) {
		path = filepath.Join(config.DataDir, path)
	}

	defaults := make(map[string]map[string]json.RawMessage)
	for _, src := range []map[string]map[string]json.RawMessage{settings.Defaults, f.builder.defaults} {
		for store, entries := range src {
			if defaults[store] == nil {
				defaults[store] = make(map[string]json.RawMessage)
			}
			for k, v := range entries {
				defaults[store][k] = v
			}
		}
	}

	db, err := Open(path, defaults)
	if err != nil {
		return nil, err
	}

	logger := config.Logger.With().Str("plugin", Name).Logger()
	db.OnChange(func(c Change) {
		if err := config.Emit(ChangeEvent, c); err != nil {
			logger.Warn().Err(err).Str("store", c.Store).Msg("failed to emit change event")
		}
	})

	logger.Debug().Str("path", db.Path()).Msg("store opened")

	return &Plugin{
		db:           db,
		defaultStore: firstNonEmpty(f.builder.defaultStore, settings.DefaultStore, defaultStore),
		logger:       logger,
	}, nil
}

func (f *factory) Methods() []plugin.MethodMetadata {
	keyParams := func(withValue bool) *spec.Schema {
		s := &spec.Schema{}
		s.Typed("object", "")
		s.SetProperty("store", *spec.StringProperty())
		s.SetProperty("key", *spec.StringProperty())
		s.Required = []string{"key"}
		if withValue {
			s.SetProperty("value", spec.Schema{})
			s.Required = append(s.Required, "value")
		}
		return s
	}
	storeParams := func() *spec.Schema {
		s := &spec.Schema{}
		s.Typed("object", "")
		s.SetProperty("store", *spec.StringProperty())
		return s
	}

	return []plugin.MethodMetadata{
		{Name: "set", Description: "Store a JSON value under a key", Parameters: keyParams(true)},
		{Name: "get", Description: "Read the value stored under a key", Parameters: keyParams(false)},
		{Name: "has", Description: "Report whether a key exists", Parameters: keyParams(false), Returns: spec.BooleanProperty()},
		{Name: "delete", Description: "Remove a key", Parameters: keyParams(false), Returns: spec.BooleanProperty()},
		{Name: "keys", Description: "List the keys of a store", Parameters: storeParams(), Returns: spec.ArrayProperty(spec.StringProperty())},
		{Name: "values", Description: "List the values of a store", Parameters: storeParams()},
		{Name: "entries", Description: "List the entries of a store", Parameters: storeParams()},
		{Name: "length", Description: "Count the entries of a store", Parameters: storeParams(), Returns: spec.Int64Property()},
		{Name: "clear", Description: "Remove every entry of a store", Parameters: storeParams()},
		{Name: "reset", Description: "Restore the default entries of a store", Parameters: storeParams()},
	}
}

// Plugin is the attached store plugin
type Plugin struct {
	db           *DB
	defaultStore string
	logger       zerolog.Logger
}

type storeArgs struct {
	Store string          `json:"store"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// GetResult is returned by the get method
type GetResult struct {
	Value  json.RawMessage `json:"value"`
	Exists bool            `json:"exists"`
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return Version }

// DB exposes the database to in-process users
func (p *Plugin) DB() *DB {
	return p.db
}

// DefaultStore returns the store used when a call names none
func (p *Plugin) DefaultStore() string {
	return p.defaultStore
}

// Close closes the database
func (p *Plugin) Close() error {
	return p.db.Close()
}

// Execute implements plugin.Plugin
func (p *Plugin) Execute(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	var args storeArgs
	if err := plugin.DecodeArgs(params, &args); err != nil {
		return nil, err
	}
	if args.Store == "" {
		args.Store = p.defaultStore
	}
	if p.db.Reserved(args.Store) {
		return nil, &plugin.Error{
			Code:    plugin.ErrorCodePermissionDenied,
			Message: fmt.Sprintf("store %s is reserved", args.Store),
		}
	}

	requireKey := func() error {
		if args.Key == "" {
			return &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "key is required"}
		}
		return nil
	}

	switch method {
	case "set":
		if err := requireKey(); err != nil {
			return nil, err
		}
		if len(args.Value) == 0 {
			return nil, &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "value is required"}
		}
		if err := p.db.Set(ctx, args.Store, args.Key, args.Value); err != nil {
			return nil, err
		}
		return plugin.Result(nil)

	case "get":
		if err := requireKey(); err != nil {
			return nil, err
		}
		value, ok, err := p.db.Get(ctx, args.Store, args.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			value = json.RawMessage("null")
		}
		return plugin.Result(GetResult{Value: value, Exists: ok})

	case "has":
		if err := requireKey(); err != nil {
			return nil, err
		}
		ok, err := p.db.Has(ctx, args.Store, args.Key)
		if err != nil {
			return nil, err
		}
		return plugin.Result(ok)

	case "delete":
		if err := requireKey(); err != nil {
			return nil, err
		}
		ok, err := p.db.Delete(ctx, args.Store, args.Key)
		if err != nil {
			return nil, err
		}
		return plugin.Result(ok)

	case "keys":
		keys, err := p.db.Keys(ctx, args.Store)
		if err != nil {
			return nil, err
		}
		return plugin.Result(keys)

	case "values":
		values, err := p.db.Values(ctx, args.Store)
		if err != nil {
			return nil, err
		}
		return plugin.Result(values)

	case "entries":
		entries, err := p.db.Entries(ctx, args.Store)
		if err != nil {
			return nil, err
		}
		return plugin.Result(entries)

	case "length":
		n, err := p.db.Length(ctx, args.Store)
		if err != nil {
			return nil, err
		}
		return plugin.Result(n)

	case "clear":
		if err := p.db.Clear(ctx, args.Store); err != nil {
			return nil, err
		}
		return plugin.Result(nil)

	case "reset":
		if err := p.db.Reset(ctx, args.Store); err != nil {
			return nil, err
		}
		return plugin.Result(nil)

	default:
		return nil, plugin.MethodNotFound(Name, method)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
