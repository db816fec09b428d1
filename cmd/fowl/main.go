package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/andreyvit/fowl"
	"github.com/andreyvit/fowl/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fowl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "fowl",
		Usage: "inspect and edit a fowl document store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (default: ./fowl.yaml if present)"},
			&cli.StringFlag{Name: "engine", Usage: "storage engine: bolt, badger or memory"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "bolt file or badger directory"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output format: json or yaml"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log every operation"},
		},
		Commands: []*cli.Command{
			getCommand,
			putCommand,
			createCommand,
			removeCommand,
			findCommand,
			queryCommand,
			addIndexCommand,
			checkCommand,
			statsCommand,
			dumpCommand,
		},
	}
}

// loadConfig applies command-line flags over the config file and environment.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("engine") {
		cfg.Engine = c.String("engine")
	}
	if c.IsSet("path") {
		cfg.Path = c.String("path")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	return cfg, cfg.Validate()
}

// withDB opens the configured store, runs fn and closes the store.
func withDB(c *cli.Context, fn func(db *fowl.DB, cfg *config.Config) error) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	kind, err := fowl.ParseEngineKind(cfg.Engine)
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	db, err := fowl.OpenPath(c.Context, kind, cfg.Path, fowl.Options{
		Logger:       logger,
		Verbose:      cfg.Verbose,
		IndexCleanup: cfg.Index.Cleanup,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	logger.WithFields(logrus.Fields{"engine": kind, "path": cfg.Path}).Debug("opened store")
	return fn(db, cfg)
}
