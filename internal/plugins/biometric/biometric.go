// Package biometric prompts the user for biometric authentication on
// mobile devices. The prompt itself is implemented by a platform Provider.
package biometric

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-openapi/spec"
	"github.com/rs/zerolog"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

const (
	// Name is the plugin identifier
	Name = "biometric"
	// Version is the plugin version
	Version = "v2.2.0"

	// ErrorCodeAuthFailed indicates the user did not authenticate
	ErrorCodeAuthFailed = "AUTHENTICATION_FAILED"
)

// BiometryType is the kind of biometry a device offers
type BiometryType int

const (
	BiometryNone BiometryType = iota
	BiometryTouchID
	BiometryFaceID
	BiometryIris
)

// Status reports biometric availability
type Status struct {
	IsAvailable  bool         `json:"isAvailable"`
	BiometryType BiometryType `json:"biometryType"`
	Error        string       `json:"error,omitempty"`
	ErrorCode    string       `json:"errorCode,omitempty"`
}

// AuthOptions customizes the authentication prompt
type AuthOptions struct {
	AllowDeviceCredential bool   `json:"allowDeviceCredential"`
	CancelTitle           string `json:"cancelTitle,omitempty"`
	FallbackTitle         string `json:"fallbackTitle,omitempty"`
	Title                 string `json:"title,omitempty"`
	Subtitle              string `json:"subtitle,omitempty"`
	ConfirmationRequired  bool   `json:"confirmationRequired"`
}

// ErrAuthFailed is returned by providers when the user fails or cancels
var ErrAuthFailed = errors.New("biometric authentication failed")

// Provider is the platform bridge to the biometric prompt
type Provider interface {
	// Status reports availability. An error means the plugin cannot be hosted.
	Status(ctx context.Context) (Status, error)

	// Authenticate shows the prompt with reason and blocks until it resolves
	Authenticate(ctx context.Context, reason string, opts AuthOptions) error
}

// Option configures the biometric factory
type Option func(*factory)

// WithProvider sets the platform provider
func WithProvider(p Provider) Option {
	return func(f *factory) {
		f.provider = p
	}
}

type factory struct {
	provider Provider
}

// Init returns the biometric plugin factory. Without a provider the
// plugin cannot be attached.
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
	if f.provider == nil {
		return nil, plugin.Unavailable(Name, "no platform provider")
	}
	if _, err := f.provider.Status(ctx); err != nil {
		return nil, plugin.Unavailable(Name, err.Error())
	}
	return &Biometric{
		provider: f.provider,
		logger:   config.Logger.With().Str("plugin", Name).Logger(),
	}, nil
}

func (f *factory) Methods() []plugin.MethodMetadata {
	auth := &spec.Schema{}
	auth.Typed("object", "")
	auth.SetProperty("reason", *spec.StringProperty())
	auth.SetProperty("allowDeviceCredential", *spec.BooleanProperty())
	auth.SetProperty("cancelTitle", *spec.StringProperty())
	auth.SetProperty("fallbackTitle", *spec.StringProperty())
	auth.SetProperty("title", *spec.StringProperty())
	auth.SetProperty("subtitle", *spec.StringProperty())
	auth.SetProperty("confirmationRequired", *spec.BooleanProperty())
	auth.Required = []string{"reason"}

	return []plugin.MethodMetadata{
		{Name: "status", Description: "Report biometric availability"},
		{
			Name:        "authenticate",
			Description: "Prompt the user to authenticate",
			Parameters:  auth,
			Errors: []plugin.ErrorMetadata{
				{Code: ErrorCodeAuthFailed, Description: "the user failed or cancelled authentication"},
				{Code: plugin.ErrorCodeUnavailable, Description: "no biometry is enrolled"},
			},
		},
	}
}

// Biometric is the attached biometric plugin
type Biometric struct {
	provider Provider
	logger   zerolog.Logger
}

type authArgs struct {
	Reason string `json:"reason"`
	AuthOptions
}

func (b *Biometric) Name() string    { return Name }
func (b *Biometric) Version() string { return Version }

// Execute implements plugin.Plugin
func (b *Biometric) Execute(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "status":
		status, err := b.provider.Status(ctx)
		if err != nil {
			return nil, plugin.Unavailable(Name, err.Error())
		}
		return plugin.Result(status)

	case "authenticate":
		var args authArgs
		if err := plugin.DecodeArgs(params, &args); err != nil {
			return nil, err
		}
		if err := b.Authenticate(ctx, args.Reason, args.AuthOptions); err != nil {
			return nil, err
		}
		return plugin.Result(nil)

	default:
		return nil, plugin.MethodNotFound(Name, method)
	}
}

// Authenticate prompts the user. It fails with UNAVAILABLE when no biometry
// is usable and AUTHENTICATION_FAILED when the user does not authenticate.
func (b *Biometric) Authenticate(ctx context.Context, reason string, opts AuthOptions) error {
	if reason == "" {
		return &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "reason is required"}
	}

	status, err := b.provider.Status(ctx)
	if err != nil {
		return plugin.Unavailable(Name, err.Error())
	}
	if !status.IsAvailable && !opts.AllowDeviceCredential {
		return plugin.Unavailable(Name, status.Error)
	}

	if err := b.provider.Authenticate(ctx, reason, opts); err != nil {
		b.logger.Info().Err(err).Msg("biometric authentication rejected")
		if errors.Is(err, ErrAuthFailed) {
			return &plugin.Error{Code: ErrorCodeAuthFailed, Message: err.Error()}
		}
		return err
	}
	return nil
}
