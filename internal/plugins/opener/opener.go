// Package opener opens URLs and files with the operating system's default
// handler.
package opener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-openapi/spec"
	"github.com/rs/zerolog"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

const (
	// Name is the plugin identifier
	Name = "opener"
	// Version is the plugin version
	Version = "v2.2.0"
)

// defaultSchemes are always accepted by open_url
var defaultSchemes = []string{"http", "https", "mailto", "tel"}

// Settings are read from the "opener" plugin settings
type Settings struct {
	AllowedSchemes []string `json:"allowedSchemes"`
}

// Option configures the opener factory
type Option func(*factory)

// WithLauncher replaces the OS launcher, mainly for tests
func WithLauncher(l Launcher) Option {
	return func(f *factory) {
		f.launcher = l
	}
}

type factory struct {
	launcher Launcher
}

// Init returns the opener plugin factory
func Init(opts ...Option) plugin.Factory {
	f := &factory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *factory) Name() string    { return Name }
func (f *factory) Version() string { return Version }

func (f *factory) Create(ctx context.Context, config plugin.Config) (plugin.Plugin, error) {
	var settings Settings
	if err := config.Setting(Name, &settings); err != nil {
		return nil, err
	}

	launcher := f.launcher
	if launcher == nil {
		launcher = NewOSLauncher()
	}

	allowed := make(map[string]struct{})
	for _, s := range append(append([]string{}, defaultSchemes...), settings.AllowedSchemes...) {
		allowed[strings.ToLower(s)] = struct{}{}
	}

	return &Opener{
		launcher: launcher,
		allowed:  allowed,
		logger:   config.Logger.With().Str("plugin", Name).Logger(),
	}, nil
}

func (f *factory) Methods() []plugin.MethodMetadata {
	withParam := func(required string) *spec.Schema {
		s := &spec.Schema{}
		s.Typed("object", "")
		s.SetProperty(required, *spec.StringProperty())
		s.SetProperty("with", *spec.StringProperty())
		s.Required = []string{required}
		return s
	}
	return []plugin.MethodMetadata{
		{
			Name:        "open_url",
			Description: "Open a URL with the default or the given application",
			Parameters:  withParam("url"),
			Errors: []plugin.ErrorMetadata{
				{Code: plugin.ErrorCodeInvalidArgs, Description: "URL is malformed or its scheme is not allowed"},
			},
		},
		{
			Name:        "open_path",
			Description: "Open a file or directory with the default or the given application",
			Parameters:  withParam("path"),
		},
		{
			Name:        "reveal_item_in_dir",
			Description: "Reveal a path in the system file manager",
			Parameters:  withParam("path"),
		},
	}
}

// Opener is the attached opener plugin
type Opener struct {
	launcher Launcher
	allowed  map[string]struct{}
	logger   zerolog.Logger
}

type openArgs struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	With string `json:"with"`
}

func (o *Opener) Name() string    { return Name }
func (o *Opener) Version() string { return Version }

// Execute implements plugin.Plugin
func (o *Opener) Execute(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	var args openArgs
	if err := plugin.DecodeArgs(params, &args); err != nil {
		return nil, err
	}

	var err error
	switch method {
	case "open_url":
		err = o.OpenURL(ctx, args.URL, args.With)
	case "open_path":
		err = o.OpenPath(ctx, args.Path, args.With)
	case "reveal_item_in_dir":
		err = o.Reveal(ctx, args.Path)
	default:
		return nil, plugin.MethodNotFound(Name, method)
	}
	if err != nil {
		return nil, err
	}
	return plugin.Result(nil)
}

// OpenURL opens target with the default handler, or with the named application
func (o *Opener) OpenURL(ctx context.Context, target, with string) error {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" {
		return &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "invalid url", Details: target}
	}
	if _, ok := o.allowed[strings.ToLower(u.Scheme)]; !ok {
		return &plugin.Error{
			Code:    plugin.ErrorCodeInvalidArgs,
			Message: fmt.Sprintf("scheme %s is not allowed", u.Scheme),
		}
	}

	o.logger.Debug().Str("url", target).Msg("opening url")
	return o.launcher.Open(ctx, u.String(), with)
}

// OpenPath opens a local path with the default handler, or with the named application
func (o *Opener) OpenPath(ctx context.Context, path, with string) error {
	abs, err := existingPath(path)
	if err != nil {
		return err
	}

	o.logger.Debug().Str("path", abs).Msg("opening path")
	return o.launcher.Open(ctx, abs, with)
}

// Reveal shows a path in the file manager
func (o *Opener) Reveal(ctx context.Context, path string) error {
	abs, err := existingPath(path)
	if err != nil {
		return err
	}
	return o.launcher.Reveal(ctx, abs)
}

func existingPath(path string) (string, error) {
	if path == "" {
		return "", &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "path is required"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "invalid path", Details: err.Error()}
	}
	if _, err := os.Stat(abs); err != nil {
		return "", &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "path does not exist", Details: abs}
	}
	return abs, nil
}
