package wallet

import (
	"fmt"

	"github.com/eidwallet/eidwallet/internal/app"
	"github.com/eidwallet/eidwallet/internal/identity"
	"github.com/eidwallet/eidwallet/internal/keys"
	"github.com/eidwallet/eidwallet/internal/plugins/barcode"
	"github.com/eidwallet/eidwallet/internal/plugins/cryptohw"
	"github.com/eidwallet/eidwallet/internal/plugins/store"
)

// IdentitiesChangedEvent is emitted with the identity list after every change
const IdentitiesChangedEvent = "identities://changed"

// Services registers the key and identity commands. It needs the store
// plugin; crypto-hw and barcode-scanner are used when attached.
func Services(h *app.Handle) error {
	logger := h.Logger()

	p, ok := h.Plugins().Get(store.Name)
	if !ok {
		return fmt.Errorf("wallet services need the %s plugin", store.Name)
	}
	st, ok := p.(*store.Plugin)
	if !ok {
		return fmt.Errorf("unexpected %s plugin type %T", store.Name, p)
	}

	var keystore cryptohw.Keystore
	if p, ok := h.Plugins().Get(cryptohw.Name); ok {
		if hw, ok := p.(*cryptohw.Plugin); ok {
			keystore = hw.Keystore()
		}
	}

	factory := keys.NewFactory(
		keys.NewHardwareManager(keystore, logger),
		keys.NewSoftwareManager(st.DB(), logger),
		logger,
	)
	for name, fn := range keys.Commands(factory) {
		if err := h.Command(name, fn); err != nil {
			return err
		}
	}

	var scanner identity.Scanner
	if _, ok := h.Plugins().Get(barcode.Name); ok {
		scanner = barcode.NewClient(h.Plugins())
	}

	manager := identity.NewManager(logger)
	flow := identity.NewScanFlow(scanner, manager)
	for name, fn := range identity.Commands(manager, flow) {
		if err := h.Command(name, fn); err != nil {
			return err
		}
	}

	updates, unsubscribe := manager.Subscribe()
	go func() {
		defer unsubscribe()
		<-updates // initial list
		for {
			select {
			case list, ok := <-updates:
				if !ok {
					return
				}
				if err := h.Emit(IdentitiesChangedEvent, list); err != nil {
					logger.Warn().Err(err).Msg("failed to emit identity change")
				}
			case <-h.Context().Done():
				return
			}
		}
	}()

	logger.Debug().
		Bool("hardwareKeys", keystore != nil).
		Bool("scanner", flow.Available()).
		Msg("wallet services registered")
	return nil
}
