package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/eidwallet/eidwallet/internal/config"
	"github.com/eidwallet/eidwallet/internal/platform"
	"github.com/eidwallet/eidwallet/internal/plugin"
)

// Handle gives setup callbacks access to the application being built
type Handle struct {
	app          *App
	ctx          context.Context
	capabilities platform.Capabilities
}

// Plugin attaches factory to the running application
func (h *Handle) Plugin(factory plugin.Factory) error {
	return h.app.plugins.Attach(h.ctx, factory)
}

// Plugins returns the attached plugins
func (h *Handle) Plugins() plugin.Set {
	return h.app.plugins
}

// Command registers an additional UI command
func (h *Handle) Command(name string, fn CommandFunc) error {
	if h.app.handler != nil && slices.Contains(h.app.handler.Commands(), name) {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	return h.app.commands.Add(name, fn)
}

// Platform returns the detected platform
func (h *Handle) Platform() platform.Platform {
	return h.app.platform
}

// Capabilities returns the plugins offered on this platform: the builder's
// set on mobile and the empty set elsewhere
func (h *Handle) Capabilities() platform.Capabilities {
	if !h.app.platform.Mobile() {
		return platform.NoCapabilities()
	}
	return h.capabilities
}

// Config returns the application configuration
func (h *Handle) Config() *config.Config {
	return h.app.config
}

// Emit publishes an event to the UI
func (h *Handle) Emit(name string, payload any) error {
	return h.app.events.Emit(name, payload)
}

// Logger returns the application logger
func (h *Handle) Logger() zerolog.Logger {
	return h.app.logger
}

// Context returns a context cancelled when the application closes
func (h *Handle) Context() context.Context {
	return h.ctx
}
