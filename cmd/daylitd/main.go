package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/daylitd/internal/cli"
	"github.com/julianstephens/daylitd/internal/cli/schedule"
	"github.com/julianstephens/daylitd/internal/cli/system"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	cli.Globals `embed:""`

	Init    system.InitCmd      `cmd:"" help:"Initialize daylitd storage."`
	Migrate system.MigrateCmd   `cmd:"" help:"Run database migrations."`
	Serve   system.ServeCmd     `cmd:"" help:"Serve the HTTP API and sweep the event log."`
	Sweep   system.SweepCmd     `cmd:"" help:"Run one event sweep and exit."`
	Publish schedule.PublishCmd `cmd:"" help:"Append an event to the log."`
	Day     schedule.DayCmd     `cmd:"" help:"Show a user's day: events, blocks and free slots."`
	Alerts  schedule.AlertsCmd  `cmd:"" help:"List a user's schedule alerts."`
	Keyring struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store a secret in the OS keyring."`
		Get    system.KeyringGetCmd    `cmd:"" help:"Show a stored secret, masked."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Delete a secret from the OS keyring."`
		Status system.KeyringStatusCmd `cmd:"" help:"Check OS keyring availability."`
	} `cmd:"" help:"Manage secrets in the OS keyring."`
}

// Commands that open the store themselves or never touch it.
var skipLoad = map[string]bool{"init": true, "migrate": true, "keyring": true}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("daylitd"),
		kong.Description("Schedule conflict detection and resolution daemon"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Configuration(cli.JSONC, cli.ConfigFile()),
		cli.Vars(),
	)

	if err := logger.Init(logger.Config{
		Debug:  CLI.Debug,
		LogDir: kong.ExpandPath(CLI.LogDir),
		JSON:   CLI.LogJSON,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	command := strings.Fields(ctx.Command())[0]
	var appCtx *cli.Context
	if command == "keyring" {
		appCtx = &cli.Context{}
	} else {
		var err error
		appCtx, err = cli.NewContext(CLI.Globals)
		if err != nil {
			errors.Fatalf("failed to open storage: %v", err)
		}
	}

	if !skipLoad[command] {
		if err := appCtx.Store.Load(context.Background()); err != nil {
			errors.Fatal(err)
		}
	}

	errors.Fatal(ctx.Run(appCtx))
}
