// Package commands contains the CLI commands for the application
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/eidwallet/eidwallet/internal/app"
	"github.com/eidwallet/eidwallet/internal/config"
	"github.com/eidwallet/eidwallet/internal/plugins/deeplink"
	"github.com/eidwallet/eidwallet/internal/wallet"
)

type Flags struct {
	LogLevel string
	Config   string
}

type Controller struct {
	Flags *Flags
	// Out receives command output. Defaults to stdout.
	Out io.Writer
}

// Run launches the wallet and serves the web UI until ctx is cancelled.
// urls are the deep links the process was started with.
func (c *Controller) Run(ctx context.Context, urls []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	return wallet.New(cfg).Logger(log.Logger).Args(urls).Run(ctx, cfg)
}

// OpenURL hands a deep link to the running instance
func (c *Controller) OpenURL(ctx context.Context, rawURL string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if err := deeplink.Deliver(cfg.InboxDir(), rawURL); err != nil {
		return fmt.Errorf("failed to deliver %s: %w", rawURL, err)
	}
	log.Debug().Str("url", rawURL).Str("inbox", cfg.InboxDir()).Msg("deep link delivered")
	return nil
}

// Plugins lists the attached plugins and their methods
func (c *Controller) Plugins(ctx context.Context) error {
	a, err := c.launch(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := c.output()
	for _, name := range a.Plugins().Names() {
		fmt.Fprintln(out, name)
		for _, m := range a.Plugins().Methods(name) {
			fmt.Fprintf(out, "  %s\t%s\n", m.Name, m.Description)
		}
	}
	for _, cmd := range a.Commands() {
		fmt.Fprintf(out, "command %s\n", cmd)
	}
	return nil
}

func (c *Controller) loadConfig() (*config.Config, error) {
	if c.Flags != nil && c.Flags.Config != "" {
		return config.LoadConfigFromPath(c.Flags.Config)
	}
	cfg, _, err := config.LoadConfig()
	return cfg, err
}

// launch builds the application for a one-shot command. The deep-link
// inbox is left to the long-running instance.
func (c *Controller) launch(ctx context.Context) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Plugins.DeepLink.Inbox = ""
	return wallet.New(cfg).Logger(log.Logger).Build(ctx, cfg)
}

func (c *Controller) output() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}
