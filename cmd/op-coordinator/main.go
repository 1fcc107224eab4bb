package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum-optimism/optimism/op-service/metrics/doc"
	"github.com/ethereum/go-ethereum/log"

	"github.com/x2network/op-coordinator/flags"
	"github.com/x2network/op-coordinator/game"
	"github.com/x2network/op-coordinator/game/coordinator"
	"github.com/x2network/op-coordinator/metrics"
)

var (
	Version   = "v0.0.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	args := os.Args
	if err := run(args); err != nil {
		if errors.Is(err, coordinator.ErrRetriesExhausted) {
			log.Error("Resolution retry budget exhausted", "message", err)
			os.Exit(2)
		}
		log.Crit("Application failed", "message", err)
	}
}

func run(args []string) error {
	oplog.SetupDefaults()

	app := cli.NewApp()
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Version = opservice.FormatVersion(Version, GitCommit, GitDate, "")
	app.Name = "op-coordinator"
	app.Usage = "Dispute Game Lifecycle Coordinator"
	app.Description = "Drives output proposals through dispute resolution: window tracking, claim resolution, credit settlement and game type promotion"
	app.Action = cliapp.LifecycleCmd(game.Main(Version))
	app.Commands = []*cli.Command{
		RegisterGameTypeCommand,
		PromoteCommand,
		ListGamesCommand,
		GameStatusCommand,
		WaitGameCommand,
		{
			Name:        "doc",
			Subcommands: doc.NewSubcommands(metrics.NewMetrics()),
		},
	}

	ctx := ctxinterrupt.WithSignalWaiterMain(context.Background())
	return app.RunContext(ctx, args)
}
