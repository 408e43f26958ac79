package keys

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/eidwallet/eidwallet/internal/plugin"
)

// Command names
const (
	CommandGenerate = "key_generate"
	CommandPublic   = "key_public"
	CommandSign     = "key_sign"
	CommandVerify   = "key_verify"
)

// CommandArgs are the arguments of the key commands
type CommandArgs struct {
	KeyID     string `json:"keyId"`
	Context   string `json:"context"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// Result is returned by the key commands
type Result struct {
	KeyID   string `json:"keyId"`
	Manager Type   `json:"manager"`
	Value   any    `json:"value"`
}

// Commands returns the key commands bound to f
func Commands(f *Factory) map[string]func(ctx context.Context, args json.RawMessage) (any, error) {
	run := func(op func(ctx context.Context, m KeyManager, args CommandArgs) (any, error)) func(context.Context, json.RawMessage) (any, error) {
		return func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args CommandArgs
			if err := plugin.DecodeArgs(raw, &args); err != nil {
				return nil, err
			}
			if args.KeyID == "" {
				return nil, &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "keyId is required"}
			}
			use, err := ParseContext(args.Context)
			if err != nil {
				return nil, &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: err.Error()}
			}

			m := f.ForContext(ctx, args.KeyID, use)
			value, err := op(ctx, m, args)
			if err != nil {
				return nil, err
			}
			return Result{KeyID: args.KeyID, Manager: m.Type(), Value: value}, nil
		}
	}

	return map[string]func(context.Context, json.RawMessage) (any, error){
		CommandGenerate: run(func(ctx context.Context, m KeyManager, args CommandArgs) (any, error) {
			return m.Generate(ctx, args.KeyID)
		}),
		CommandPublic: run(func(ctx context.Context, m KeyManager, args CommandArgs) (any, error) {
			return m.PublicKey(ctx, args.KeyID)
		}),
		CommandSign: run(func(ctx context.Context, m KeyManager, args CommandArgs) (any, error) {
			return m.Sign(ctx, args.KeyID, []byte(args.Payload))
		}),
		CommandVerify: run(func(ctx context.Context, m KeyManager, args CommandArgs) (any, error) {
			if args.Signature == "" {
				return nil, &plugin.Error{Code: plugin.ErrorCodeInvalidArgs, Message: "signature is required"}
			}
			return m.Verify(ctx, args.KeyID, []byte(args.Payload), args.Signature)
		}),
	}
}

// Code returns the key error code of err, or "" if err is not a key error
func Code(err error) string {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code
	}
	return ""
}
