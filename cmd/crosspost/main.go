package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"crosspost/internal/config"
	"crosspost/internal/crosspostdb"
	"crosspost/internal/list"
	"crosspost/internal/runner"
	"crosspost/internal/social"
	"crosspost/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "crosspost",
		Usage:   "Syndicate RSS feed items to Twitter and Mastodon",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to config file (default ~/.config/crosspost/config.yaml)"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level (trace, debug, info, warn, error)", Value: "info"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging (same as --log-level debug)"},
			&cli.StringFlag{Name: "log-file", Usage: "Write JSON logs to this file instead of the console"},
			&cli.StringFlag{Name: "metrics-file", Usage: "Write Prometheus metrics to this file after each run"},
		},
		Commands: []*cli.Command{
			{
				Name:  "syndicate",
				Usage: "Run a single syndication pass and exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Evaluate every item without publishing or recording"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					opts := runner.Options{
						DryRun:      c.Bool("dry-run"),
						LogLevel:    c.String("log-level"),
						Debug:       c.Bool("debug"),
						LogFile:     c.String("log-file"),
						MetricsFile: c.String("metrics-file"),
					}
					return runner.Syndicate(ctx, opts, config.Loader(c.String("config")))
				},
			},
			{
				Name:  "token",
				Usage: "Manage stored OAuth tokens",
				Commands: []*cli.Command{
					{
						Name:  "set",
						Usage: "Store the OAuth access and refresh token of a refreshable network",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "network", Required: true, Usage: "Network whose tokens are refreshed (twitter)"},
							&cli.StringFlag{Name: "access-token", Required: true},
							&cli.StringFlag{Name: "refresh-token", Required: true},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							err := runner.SetTokens(ctx, config.Loader(c.String("config")),
								c.String("network"), c.String("access-token"), c.String("refresh-token"))
							if err != nil {
								return err
							}
							fmt.Printf("tokens stored for %s\n", c.String("network"))
							return nil
						},
					},
				},
			},
			{
				Name:  "list",
				Usage: "List syndicated posts, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "network", Usage: "Only this network (twitter, mastodon)"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum rows", Value: 20},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					var network social.Network
					if v := c.String("network"); v != "" {
						n, err := social.ParseNetwork(v)
						if err != nil {
							return err
						}
						network = n
					}
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					if _, err := os.Stat(cfg.DB.Path); errors.Is(err, os.ErrNotExist) {
						fmt.Printf("crosspost database not found at %s\n", cfg.DB.Path)
						fmt.Println("Hint: Run 'crosspost syndicate' to create it, or set db.path in the config.")
						return nil
					}
					db, err := crosspostdb.Open(cfg.DB.Path)
					if err != nil {
						return err
					}
					defer db.Close()
					if err := crosspostdb.InitSchema(db); err != nil {
						return err
					}
					return list.Run(ctx, os.Stdout, crosspostdb.NewLedger(db), network, c.Int("limit"))
				},
			},
			{
				Name:  "config",
				Usage: "Manage the config file",
				Commands: []*cli.Command{
					{
						Name:  "init",
						Usage: "Write a starter config",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "force", Usage: "Replace an existing config (a backup is kept)"},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							path, err := config.WriteStarter(c.String("config"), config.Default(), c.Bool("force"))
							if err != nil {
								return err
							}
							fmt.Printf("config written to %s\n", path)
							return nil
						},
					},
				},
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Println(version.GetVersion())
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := app.Run(ctx, os.Args); err != nil {
		stop()
		logger.Fatal().Err(err).Msg("crosspost failed")
	}
}
