package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/eidwallet/eidwallet/internal/commands"
	"github.com/eidwallet/eidwallet/internal/config"
	"github.com/eidwallet/eidwallet/internal/keys"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func keyFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:     "key-id",
			Usage:    "identifier of the key",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "context",
			Usage: "key context (onboarding, signing, verification, pre-verification); empty checks the hardware",
		},
	}, extra...)
}

func keyArgs(c *cli.Command) keys.CommandArgs {
	return keys.CommandArgs{
		KeyID:     c.String("key-id"),
		Context:   c.String("context"),
		Payload:   c.String("payload"),
		Signature: c.String("signature"),
	}
}

func main() {
	ctrl := &commands.Controller{
		Flags: &commands.Flags{},
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	payloadFlag := &cli.StringFlag{Name: "payload", Usage: "payload to sign or verify", Required: true}

	app := &cli.Command{
		Name:    "eidwallet",
		Usage:   "Identity wallet host: plugins, key management and the bridge the web UI talks to",
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "info",
				Destination: &ctrl.Flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to " + config.FileName,
				Sources:     cli.EnvVars(config.EnvConfigPath),
				Destination: &ctrl.Flags.Config,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}

			log.Logger = log.Level(level)

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Launch the wallet and serve the web UI bridge",
				ArgsUsage: "[deep-link-url...]",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Run(ctx, c.Args().Slice())
				},
			},
			{
				Name:      "greet",
				Usage:     "Invoke the greet command",
				ArgsUsage: "[name]",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Greet(ctx, c.Args().First())
				},
			},
			{
				Name:      "open-url",
				Usage:     "Hand a deep link to the running wallet",
				ArgsUsage: "<url>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return fmt.Errorf("expected exactly one url")
					}
					return ctrl.OpenURL(ctx, c.Args().First())
				},
			},
			{
				Name:  "plugins",
				Usage: "List attached plugins, their methods and the registered commands",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Plugins(ctx)
				},
			},
			{
				Name:  "keys",
				Usage: "Manage signing keys",
				Commands: []*cli.Command{
					{
						Name:  "generate",
						Usage: "Generate a key pair",
						Flags: keyFlags(),
						Action: func(ctx context.Context, c *cli.Command) error {
							return ctrl.Keys(ctx, keys.CommandGenerate, keyArgs(c))
						},
					},
					{
						Name:  "public",
						Usage: "Print the public key",
						Flags: keyFlags(),
						Action: func(ctx context.Context, c *cli.Command) error {
							return ctrl.Keys(ctx, keys.CommandPublic, keyArgs(c))
						},
					},
					{
						Name:  "sign",
						Usage: "Sign a payload",
						Flags: keyFlags(payloadFlag),
						Action: func(ctx context.Context, c *cli.Command) error {
							return ctrl.Keys(ctx, keys.CommandSign, keyArgs(c))
						},
					},
					{
						Name:  "verify",
						Usage: "Verify a signature",
						Flags: keyFlags(payloadFlag, &cli.StringFlag{Name: "signature", Usage: "base64 signature", Required: true}),
						Action: func(ctx context.Context, c *cli.Command) error {
							return ctrl.Keys(ctx, keys.CommandVerify, keyArgs(c))
						},
					},
				},
			},
			{
				Name:  "shell",
				Usage: "Launch the wallet with a terminal UI",
				Action: func(ctx context.Context, c *cli.Command) error {
					return ctrl.Shell(ctx)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("error while running eidwallet application")
	}
}
