// Package cryptohw exposes keys held in the device secure hardware
// (Secure Enclave, StrongBox) on mobile platforms. Private keys never leave
// the Keystore; callers only see public keys and signatures.
package cryptohw

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
	Name = "crypto-hw"
	// Version is the plugin version
	Version = "v0.1.0"

	// ErrorCodeKeyNotFound indicates no key exists under the requested id
	ErrorCodeKeyNotFound = "KEY_NOT_FOUND"
)

// ErrKeyNotFound is returned by keystores for unknown key ids
var ErrKeyNotFound = errors.New("key not found")

// Keystore is the platform bridge to the secure hardware
type Keystore interface {
	// Available reports whether the hardware can be used
	Available(ctx context.Context) error

	Exists(ctx context.Context, keyID string) (bool, error)
	// Generate creates a key under keyID and returns a status string
	Generate(ctx context.Context, keyID string) (string, error)
	// PublicKey returns the multibase encoded public key
	PublicKey(ctx context.Context, keyID string) (string, error)
	// Sign returns the base64 signature of payload
	Sign(ctx context.Context, keyID string, payload []byte) (string, error)
	Verify(ctx context.Context, keyID string, payload []byte, signature string) (bool, error)
}

// Option configures the crypto-hw factory
type Option func(*factory)

// WithKeystore sets the platform keystore
func WithKeystore(k Keystore) Option {
	return func(f *factory) {
		f.keystore = k
	}
}

type factory struct {
	keystore Keystore
}

// Init returns the crypto-hw plugin factory. Without a usable keystore the
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
	if f.keystore == nil {
		return nil, plugin.Unavailable(Name, "no secure hardware keystore")
	}
	if err := f.keystore.Available(ctx); err != nil {
		return nil, plugin.Unavailable(Name, err.Error())
	}
	return &Plugin{
		keystore: f.keystore,
		logger:   config.Logger.With().Str("plugin", Name).Logger(),
	}, nil
}

func (f *factory) Methods() []plugin.MethodMetadata {
	params := func(fields ...string) *spec.Schema {
		s := &spec.Schema{}
		s.Typed("object", "")
		s.SetProperty("keyId", *spec.StringProperty())
		for _, field := range fields {
			s.SetProperty(field, *spec.StringProperty())
		}
		s.Required = append([]string{"keyId"}, fields...)
		return s
	}
	notFound := []plugin.ErrorMetadata{{Code: ErrorCodeKeyNotFound, Description: "no key exists under keyId"}}

	return []plugin.MethodMetadata{
		{Name: "exists", Description: "Report whether a hardware key exists", Parameters: params(), Returns: spec.BooleanProperty()},
		{Name: "generate", Description: "Generate a hardware key", Parameters: params(), Returns: spec.StringProperty()},
		{Name: "get_public_key", Description: "Return the multibase public key", Parameters: params(), Returns: spec.StringProperty(), Errors: notFound},
		{Name: "sign_payload", Description: "Sign a payload", Parameters: params("payload"), Returns: spec.StringProperty(), Errors: notFound},
		{Name: "verify_signature", Description: "Verify a signature", Parameters: params("payload", "signature"), Returns: spec.BooleanProperty(), Errors: notFound},
	}
}

// Plugin is the attached crypto-hw plugin
type Plugin struct {
	keystore Keystore
	logger   zerolog.Logger
}

type keyArgs struct {
	KeyID     string `json:"keyId"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return Version }

// Keystore returns the underlying keystore
func (p *Plugin) Keystore() Keystore {
	return p.keystore
}

// Execute implements plugin.Plugin
func (p *Plugin) Execute(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	var args keyArgs
	if err := plugin.DecodeArgs(params, &args); err != nil {
		return nil, err
	}
	if args.KeyID == "" {
		return nil, &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "keyId is required"}
	}

	var (
		result any
		err    error
	)
	switch method {
	case "exists":
		result, err = p.keystore.Exists(ctx, args.KeyID)
	case "generate":
		result, err = p.keystore.Generate(ctx, args.KeyID)
	case "get_public_key":
		result, err = p.keystore.PublicKey(ctx, args.KeyID)
	case "sign_payload":
		result, err = p.keystore.Sign(ctx, args.KeyID, []byte(args.Payload))
	case "verify_signature":
		result, err = p.keystore.Verify(ctx, args.KeyID, []byte(args.Payload), args.Signature)
	default:
		return nil, plugin.MethodNotFound(Name, method)
	}
	if err != nil {
		p.logger.Warn().Err(err).Str("method", method).Str("keyId", args.KeyID).Msg("keystore call failed")
		if errors.Is(err, ErrKeyNotFound) {
			return nil, &plugin.Error{Code: ErrorCodeKeyNotFound, Message: err.Error(), Details: args.KeyID}
		}
		return nil, err
	}
	return plugin.Result(result)
}
