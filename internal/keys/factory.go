package keys

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Context is the use case a key is needed for
type Context string

const (
	ContextOnboarding      Context = "onboarding"
	ContextSigning         Context = "signing"
	ContextVerification    Context = "verification"
	ContextPreVerification Context = "pre-verification"
)

// ContextAuto checks the hardware and falls back to software
const ContextAuto Context = ""

// ParseContext validates a use case name
func ParseContext(s string) (Context, error) {
	switch c := Context(s); c {
	case ContextAuto, ContextOnboarding, ContextSigning, ContextVerification, ContextPreVerification:
		return c, nil
	default:
		return "", fmt.Errorf("unknown key context %q", s)
	}
}

// Config selects a key manager
type Config struct {
	KeyID           string
	UseHardware     bool
	PreVerification bool
}

const hardwareCheckKey = "test-hardware-check"

// Factory chooses between the hardware and software managers
type Factory struct {
	hardware KeyManager
	software KeyManager
	logger   zerolog.Logger
}

// NewFactory creates a factory over both managers
func NewFactory(hardware, software KeyManager, logger zerolog.Logger) *Factory {
	return &Factory{
		hardware: hardware,
		software: software,
		logger:   logger.With().Str("component", "keys.factory").Logger(),
	}
}

// ForConfig returns the manager for config. Explicit hardware requests get
// the hardware manager, pre-verification always gets software, and
// otherwise hardware is checked with an Exists call and software is the
// fallback.
func (f *Factory) ForConfig(ctx context.Context, config Config) KeyManager {
	if config.UseHardware && !config.PreVerification {
		return f.hardware
	}
	if config.PreVerification {
		f.logger.Debug().Msg("using software key manager for pre-verification")
		return f.software
	}

	if _, err := f.hardware.Exists(ctx, config.KeyID); err != nil {
		f.logger.Info().Err(err).Str("code", Code(err)).Msg("hardware key manager not available, falling back to software")
		return f.software
	}
	return f.hardware
}

// ForContext returns the manager for a use case
func (f *Factory) ForContext(ctx context.Context, keyID string, use Context) KeyManager {
	if use == ContextAuto {
		return f.ForConfig(ctx, Config{KeyID: keyID})
	}
	return f.ForConfig(ctx, Config{
		KeyID:           keyID,
		UseHardware:     use != ContextPreVerification,
		PreVerification: use == ContextPreVerification,
	})
}

// HardwareAvailable checks the hardware manager
func (f *Factory) HardwareAvailable(ctx context.Context) bool {
	if _, err := f.hardware.Exists(ctx, hardwareCheckKey); err != nil {
		f.logger.Debug().Err(err).Msg("hardware key manager not available")
		return false
	}
	return true
}
