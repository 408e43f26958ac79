package commands

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/eidwallet/eidwallet/internal/ipc"
	"github.com/eidwallet/eidwallet/internal/ui"
	"github.com/eidwallet/eidwallet/internal/wallet"
)

const shellEventBuffer = 16

// Shell launches the wallet and attaches the terminal UI to it in-process
func (c *Controller) Shell(ctx context.Context, opts ...tea.ProgramOption) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	cfg.IPC.Disabled = true

	a, err := wallet.New(cfg).Logger(log.Logger).Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	events := make(chan ipc.Event, shellEventBuffer)
	unsubscribe := a.Events().Subscribe(func(ev ipc.Event) {
		select {
		case events <- ev:
		default:
			log.Debug().Str("event", ev.Name).Msg("shell event dropped")
		}
	})
	defer unsubscribe()

	return ui.Run(ctx, cfg.ProductName, a, events, opts...)
}
