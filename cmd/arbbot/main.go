// Command arbbot runs the backrun-arbitrage pipeline described in
// SPEC_FULL.md: it loads a TOML config, builds the process topology
// (clients, blockchains, signers, channel graph), and runs every
// configured actor under a supervisor until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/flarelayer/arbbot/internal/bus"
	"github.com/flarelayer/arbbot/internal/config"
	"github.com/flarelayer/arbbot/internal/topology"
)

var gitVersion = "dev"

func main() {
	app := &cli.App{
		Name:    "arbbot",
		Usage:   "EVM backrun-arbitrage searcher",
		Version: gitVersion,
		Commands: []*cli.Command{
			runCommand,
			versionCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print the version and exit",
	Action: func(c *cli.Context) error {
		fmt.Println(gitVersion)
		return nil
	},
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "load a config and run the pipeline until interrupted",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "path to the TOML configuration file",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "verbosity",
			Usage: "log verbosity (0=crit, 5=trace)",
			Value: 3,
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "emit logs as JSON",
		},
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	setupLogging(c.Int("verbosity"), c.Bool("json"))

	logf := func(format string, args ...interface{}) { log.Debug(fmt.Sprintf(format, args...)) }
	if _, err := maxprocs.Set(maxprocs.Logger(logf)); err != nil {
		log.Warn("failed to set GOMAXPROCS from cgroup limits", "err", err)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("arbbot: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	top, err := topology.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("arbbot: building topology: %w", err)
	}

	sup := bus.NewSupervisor()
	if err := top.BuildActors(sup); err != nil {
		return fmt.Errorf("arbbot: wiring actors: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal, draining", "signal", sig)
		cancel()
	}()

	log.Info("arbbot started", "blockchains", len(cfg.Blockchains), "clients", len(cfg.Clients), "allow_broadcast", cfg.AllowBroadcast)
	sup.Run(ctx)

	if err := top.Close(); err != nil {
		log.Warn("topology shutdown", "err", err)
	}
	log.Info("arbbot stopped")
	return nil
}

func setupLogging(verbosity int, asJSON bool) {
	var handler slog.Handler
	if asJSON {
		handler = log.JSONHandler(os.Stderr)
	} else {
		handler = log.NewTerminalHandler(os.Stderr, false)
	}
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(log.FromLegacyLevel(verbosity))
	log.SetDefault(log.NewLogger(glogger))
}
