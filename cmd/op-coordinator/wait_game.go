package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/clock"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/x2network/op-coordinator/flags"
	"github.com/x2network/op-coordinator/game/watcher"
)

func WaitGame(ctx *cli.Context) error {
	logger := setupLogger(ctx)
	gameType := uint32(ctx.Uint64(GameTypeFlag.Name))

	caller, err := newCaller(ctx, logger)
	if err != nil {
		return err
	}
	factory, err := newFactoryContract(ctx, caller)
	if err != nil {
		return err
	}

	w := watcher.NewWatcher(logger, clock.SystemClock, factory)
	game, err := w.WaitForProposal(ctx.Context, gameType, ctx.Duration(flags.ProposalTimeoutFlag.Name))
	if err != nil {
		return fmt.Errorf("failed waiting for proposal: %w", err)
	}
	fmt.Printf("Game: %v\n", game.Proxy)
	fmt.Printf("Index: %v\n", game.Index)
	fmt.Printf("Created: %v\n", time.Unix(int64(game.Timestamp), 0).Format(time.RFC3339))
	return nil
}

func waitGameFlags() []cli.Flag {
	cliFlags := []cli.Flag{
		flags.L1EthRpcFlag,
		flags.FactoryAddressFlag,
		GameTypeFlag,
		flags.ProposalTimeoutFlag,
	}
	cliFlags = append(cliFlags, oplog.CLIFlags(flags.EnvVarPrefix)...)
	return cliFlags
}

var WaitGameCommand = &cli.Command{
	Name:        "wait-game",
	Usage:       "Waits for a new game of the requested type to be created",
	Description: "Blocks until a game of the requested type is created after the command starts, then prints it",
	Action:      Interruptible(WaitGame),
	Flags:       waitGameFlags(),
}
