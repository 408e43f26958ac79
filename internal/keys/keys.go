// Package keys manages the signing keys of the wallet. A KeyManager is
// backed either by the device secure hardware (crypto-hw plugin) or by
// software P-256 keys persisted in the store plugin; Factory picks one per
// use case.
package keys

import (
	"context"
	"fmt"
)

// Type identifies the backing of a KeyManager
type Type string

const (
	TypeHardware Type = "hardware"
	TypeSoftware Type = "software"
)

// Generate results
const (
	KeyGenerated = "key-generated"
	KeyExists    = "key-exists"
)

// KeyManager abstracts hardware and software key storage
type KeyManager interface {
	// Exists reports whether a key exists for keyID
	Exists(ctx context.Context, keyID string) (bool, error)

	// Generate creates a key pair for keyID
	Generate(ctx context.Context, keyID string) (string, error)

	// PublicKey returns the multibase public key for keyID
	PublicKey(ctx context.Context, keyID string) (string, error)

	// Sign signs payload and returns a base64 signature
	Sign(ctx context.Context, keyID string, payload []byte) (string, error)

	// Verify checks a base64 signature over payload
	Verify(ctx context.Context, keyID string, payload []byte, signature string) (bool, error)

	// Type returns the backing of the manager
	Type() Type
}

const (
	ErrorCodeKeyNotFound         = "KEY_NOT_FOUND"
	ErrorCodeKeyGenerationFailed = "KEY_GENERATION_FAILED"
	ErrorCodeSigningFailed       = "SIGNING_FAILED"
	ErrorCodeVerificationFailed  = "VERIFICATION_FAILED"
	ErrorCodeHardwareUnavailable = "HARDWARE_UNAVAILABLE"
	ErrorCodeStorageError        = "STORAGE_ERROR"
)

// Error is returned by key managers
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	KeyID   string `json:"keyId,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Code + ": " + e.Message
	if e.KeyID != "" {
		msg = fmt.Sprintf("%s (key %s)", msg, e.KeyID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// ErrorCode returns the key error code
func (e *Error) ErrorCode() string {
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message, keyID string, err error) *Error {
	return &Error{Code: code, Message: message, KeyID: keyID, Err: err}
}
