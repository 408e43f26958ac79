// Package wallet composes the identity wallet application from the app host,
// its plugins and its commands.
package wallet

import (
	"github.com/eidwallet/eidwallet/internal/app"
	"github.com/eidwallet/eidwallet/internal/config"
	"github.com/eidwallet/eidwallet/internal/greet"
	"github.com/eidwallet/eidwallet/internal/platform"
	"github.com/eidwallet/eidwallet/internal/plugins/barcode"
	"github.com/eidwallet/eidwallet/internal/plugins/biometric"
	"github.com/eidwallet/eidwallet/internal/plugins/cryptohw"
	"github.com/eidwallet/eidwallet/internal/plugins/deeplink"
	"github.com/eidwallet/eidwallet/internal/plugins/opener"
	"github.com/eidwallet/eidwallet/internal/plugins/store"
)

// New returns the application builder: the opener, store and deep-link
// plugins, the mobile-only plugins attached during setup, the wallet
// services and the greet command.
func New(cfg *config.Config) *app.Builder {
	return app.Default().
		Plugin(opener.Init()).
		Plugin(store.NewBuilder().Build()).
		Plugin(deeplink.Init()).
		Capabilities(MobileCapabilities(cfg)).
		Setup(func(h *app.Handle) error {
			caps := h.Capabilities()
			if caps.Empty() {
				return nil
			}
			h.Logger().Debug().
				Str("kind", string(caps.Kind())).
				Int("plugins", len(caps.Factories())).
				Msg("attaching platform plugins")
			for _, f := range caps.Factories() {
				if err := h.Plugin(f); err != nil {
					return err
				}
			}
			return nil
		}).
		Setup(Services).
		InvokeHandler(app.Handlers(map[string]app.CommandFunc{
			greet.CommandName: greet.Command,
		}))
}

// MobileCapabilities returns the mobile plugin set. Native providers are
// supplied by the platform shell; with cfg.Simulate the in-process
// simulators stand in for them. Without either, attaching fails as
// UNAVAILABLE.
func MobileCapabilities(cfg *config.Config) platform.Capabilities {
	if cfg.Simulate {
		return platform.MobileCapabilities(
			biometric.Init(biometric.WithProvider(biometric.NewSimulator())),
			barcode.Init(barcode.WithScanner(barcode.NewSimulator())),
			cryptohw.Init(cryptohw.WithKeystore(cryptohw.NewSimulator())),
		)
	}
	return platform.MobileCapabilities(biometric.Init(), barcode.Init(), cryptohw.Init())
}
