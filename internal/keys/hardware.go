package keys

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/eidwallet/eidwallet/internal/plugins/cryptohw"
)

// HardwareManager delegates to the crypto-hw keystore
type HardwareManager struct {
	keystore cryptohw.Keystore
	logger   zerolog.Logger
}

var _ KeyManager = (*HardwareManager)(nil)

// NewHardwareManager creates a manager over keystore. A nil keystore yields
// a manager whose every call fails with HARDWARE_UNAVAILABLE.
func NewHardwareManager(keystore cryptohw.Keystore, logger zerolog.Logger) *HardwareManager {
	return &HardwareManager{
		keystore: keystore,
		logger:   logger.With().Str("component", "keys.hardware").Logger(),
	}
}

func (m *HardwareManager) Type() Type { return TypeHardware }

func (m *HardwareManager) Exists(ctx context.Context, keyID string) (bool, error) {
	if m.keystore == nil {
		return false, newError(ErrorCodeHardwareUnavailable, "hardware keystore not attached", keyID, nil)
	}
	ok, err := m.keystore.Exists(ctx, keyID)
	if err != nil {
		m.logger.Error().Err(err).Str("keyId", keyID).Msg("hardware key exists check failed")
		return false, newError(ErrorCodeHardwareUnavailable, "failed to check if hardware key exists", keyID, err)
	}
	return ok, nil
}

func (m *HardwareManager) Generate(ctx context.Context, keyID string) (string, error) {
	if m.keystore == nil {
		return "", newError(ErrorCodeHardwareUnavailable, "hardware keystore not attached", keyID, nil)
	}
	result, err := m.keystore.Generate(ctx, keyID)
	if err != nil {
		m.logger.Error().Err(err).Str("keyId", keyID).Msg("hardware key generation failed")
		return "", newError(ErrorCodeKeyGenerationFailed, "failed to generate hardware key", keyID, err)
	}
	m.logger.Info().Str("keyId", keyID).Str("result", result).Msg("hardware key generated")
	return result, nil
}

func (m *HardwareManager) PublicKey(ctx context.Context, keyID string) (string, error) {
	if m.keystore == nil {
		return "", newError(ErrorCodeHardwareUnavailable, "hardware keystore not attached", keyID, nil)
	}
	pub, err := m.keystore.PublicKey(ctx, keyID)
	if err != nil {
		return "", newError(ErrorCodeKeyNotFound, "failed to get hardware public key", keyID, err)
	}
	return pub, nil
}

func (m *HardwareManager) Sign(ctx context.Context, keyID string, payload []byte) (string, error) {
	if m.keystore == nil {
		return "", newError(ErrorCodeHardwareUnavailable, "hardware keystore not attached", keyID, nil)
	}
	sig, err := m.keystore.Sign(ctx, keyID, payload)
	if err != nil {
		code := ErrorCodeSigningFailed
		if errors.Is(err, cryptohw.ErrKeyNotFound) {
			code = ErrorCodeKeyNotFound
		}
		return "", newError(code, "failed to sign payload with hardware key", keyID, err)
	}
	return sig, nil
}

func (m *HardwareManager) Verify(ctx context.Context, keyID string, payload []byte, signature string) (bool, error) {
	if m.keystore == nil {
		return false, newError(ErrorCodeHardwareUnavailable, "hardware keystore not attached", keyID, nil)
	}
	ok, err := m.keystore.Verify(ctx, keyID, payload, signature)
	if err != nil {
		code := ErrorCodeVerificationFailed
		if errors.Is(err, cryptohw.ErrKeyNotFound) {
			code = ErrorCodeKeyNotFound
		}
		return false, newError(code, "failed to verify signature with hardware key", keyID, err)
	}
	return ok, nil
}
