// Package deeplink lets the application handle its own URL schemes. URLs
// arrive as process arguments at start and, while the application runs,
// through an inbox directory other processes hand URLs to.
package deeplink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-openapi/spec"
	"github.com/rs/zerolog"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

const (
	// Name is the plugin identifier
	Name = "deep-link"
	// Version is the plugin version
	Version = "v2.4.0"

	// OpenURLEvent is emitted with the list of URLs the application was opened with
	OpenURLEvent = "deep-link://new-url"
)

// Settings are read from the "deep-link" plugin settings
type Settings struct {
	Desktop struct {
		Schemes []string `json:"schemes"`
	} `json:"desktop"`
	Mobile []MobileDomain `json:"mobile"`
	// Inbox is the directory watched for handed-off URLs; empty disables it
	Inbox string `json:"inbox"`
}

// MobileDomain is an app-link domain handled on mobile
type MobileDomain struct {
	Host       string   `json:"host"`
	PathPrefix []string `json:"pathPrefix"`
}

type factory struct{}

// Init returns the deep-link plugin factory
func Init() plugin.Factory {
	return &factory{}
}

func (f *factory) Name() string    { return Name }
func (f *factory) Version() string { return Version }

func (f *factory) Create(ctx context.Context, config plugin.Config) (plugin.Plugin, error) {
	var settings Settings
	if err := config.Setting(Name, &settings); err != nil {
		return nil, err
	}

	d := &DeepLink{
		schemes: make(map[string]struct{}),
		domains: settings.Mobile,
		mobile:  config.Mobile,
		emit:    config.Emit,
		logger:  config.Logger.With().Str("plugin", Name).Logger(),
		done:    make(chan struct{}),
	}
	for _, s := range settings.Desktop.Schemes {
		d.schemes[strings.ToLower(s)] = struct{}{}
	}

	// URLs the process was started with
	for _, arg := range config.Args {
		if _, err := d.accept(arg); err == nil {
			d.current = append(d.current, arg)
		}
	}

	if settings.Inbox != "" && !config.Mobile {
		inbox, err := NewInbox(settings.Inbox, d.logger, func(rawURL string) {
			if err := d.Open(rawURL); err != nil {
				d.logger.Warn().Err(err).Str("url", rawURL).Msg("rejected deep link")
			}
		})
		if err != nil {
			return nil, err
		}
		d.inbox = inbox

		watchCtx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		go func() {
			defer close(d.done)
			inbox.Drain()
			if err := inbox.Start(watchCtx); err != nil && err != context.Canceled {
				d.logger.Error().Err(err).Msg("inbox watcher stopped")
			}
		}()
	} else {
		close(d.done)
	}

	return d, nil
}

func (f *factory) Methods() []plugin.MethodMetadata {
	schemeParams := func() *spec.Schema {
		s := &spec.Schema{}
		s.Typed("object", "")
		s.SetProperty("scheme", *spec.StringProperty())
		s.Required = []string{"scheme"}
		return s
	}
	return []plugin.MethodMetadata{
		{Name: "get_current", Description: "URLs the application was most recently opened with", Returns: spec.ArrayProperty(spec.StringProperty())},
		{Name: "is_registered", Description: "Report whether a scheme is handled", Parameters: schemeParams(), Returns: spec.BooleanProperty()},
		{Name: "register", Description: "Handle a scheme at runtime (desktop only)", Parameters: schemeParams()},
		{Name: "unregister", Description: "Stop handling a scheme (desktop only)", Parameters: schemeParams()},
	}
}

// DeepLink is the attached deep-link plugin
type DeepLink struct {
	mu      sync.RWMutex
	schemes map[string]struct{}
	current []string

	domains []MobileDomain
	mobile  bool
	emit    func(name string, payload any) error
	logger  zerolog.Logger

	inbox  *Inbox
	cancel context.CancelFunc
	done   chan struct{}
}

type schemeArgs struct {
	Scheme string `json:"scheme"`
}

func (d *DeepLink) Name() string    { return Name }
func (d *DeepLink) Version() string { return Version }

// Execute implements plugin.Plugin
func (d *DeepLink) Execute(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "get_current":
		return plugin.Result(d.Current())
	case "is_registered", "register", "unregister":
	default:
		return nil, plugin.MethodNotFound(Name, method)
	}

	var args schemeArgs
	if err := plugin.DecodeArgs(params, &args); err != nil {
		return nil, err
	}
	if args.Scheme == "" {
		return nil, &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "scheme is required"}
	}

	switch method {
	case "is_registered":
		return plugin.Result(d.IsRegistered(args.Scheme))
	case "register":
		if err := d.Register(args.Scheme); err != nil {
			return nil, err
		}
	case "unregister":
		if err := d.Unregister(args.Scheme); err != nil {
			return nil, err
		}
	}
	return plugin.Result(nil)
}

// Current returns the URLs the application was most recently opened with
func (d *DeepLink) Current() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	current := make([]string, len(d.current))
	copy(current, d.current)
	return current
}

// IsRegistered reports whether scheme is handled
func (d *DeepLink) IsRegistered(scheme string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.schemes[strings.ToLower(scheme)]
	return ok
}

// Register handles scheme from now on
func (d *DeepLink) Register(scheme string) error {
	if d.mobile {
		return plugin.Unavailable(Name, "runtime registration is desktop only")
	}
	d.mu.Lock()
	d.schemes[strings.ToLower(scheme)] = struct{}{}
	d.mu.Unlock()
	return nil
}

// Unregister stops handling scheme
func (d *DeepLink) Unregister(scheme string) error {
	if d.mobile {
		return plugin.Unavailable(Name, "runtime registration is desktop only")
	}
	d.mu.Lock()
	delete(d.schemes, strings.ToLower(scheme))
	d.mu.Unlock()
	return nil
}

// Open accepts an incoming URL, records it as current and emits OpenURLEvent
func (d *DeepLink) Open(rawURL string) error {
	if _, err := d.accept(rawURL); err != nil {
		return err
	}

	d.mu.Lock()
	d.current = []string{rawURL}
	d.mu.Unlock()

	d.logger.Info().Str("url", rawURL).Msg("opened with deep link")
	if d.emit == nil {
		return nil
	}
	return d.emit(OpenURLEvent, []string{rawURL})
}

// Close stops the inbox watcher
func (d *DeepLink) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	var err error
	if d.inbox != nil {
		err = d.inbox.Close()
	}
	<-d.done
	return err
}

func (d *DeepLink) accept(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "invalid url", Details: rawURL}
	}

	if d.IsRegistered(u.Scheme) {
		return u, nil
	}

	if u.Scheme == "https" || u.Scheme == "http" {
		for _, domain := range d.domains {
			if !strings.EqualFold(u.Hostname(), domain.Host) {
				continue
			}
			if len(domain.PathPrefix) == 0 {
				return u, nil
			}
			for _, prefix := range domain.PathPrefix {
				if strings.HasPrefix(u.Path, prefix) {
					return u, nil
				}
			}
		}
	}

	return nil, &plugin.Error{
		Code:    plugin.ErrorCodeInvalidArgs,
		Message: fmt.Sprintf("scheme %s is not registered", u.Scheme),
	}
}
